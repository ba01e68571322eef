package retraction

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/store"
	"go.uber.org/zap"
)

// mockDeleter records every delete and returns configurable results.
type mockDeleter struct {
	mu    sync.Mutex
	calls map[int]int
	err   error
	block bool // wait for the call context to expire
}

func newMockDeleter() *mockDeleter {
	return &mockDeleter{calls: make(map[int]int)}
}

func (m *mockDeleter) DeleteMessage(ctx context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	m.calls[messageID]++
	block, err := m.block, m.err
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *mockDeleter) count(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func (m *mockDeleter) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func pendingCount(t *testing.T, db *store.DB) int {
	t.Helper()
	p, err := db.PendingRetractions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(p)
}

func TestRegisterFiresAtDeadline(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	del := newMockDeleter()
	s := NewScheduler(db, del, b, zap.NewNop(), time.Second)
	defer s.Stop()

	ch, unsub := b.Subscribe("retraction.", 10)
	defer unsub()

	rec, err := s.Register(context.Background(), Registration{
		ChatID:     -100,
		MessageIDs: []int{1, 2, 3},
		DeleteAt:   time.Now().Add(100 * time.Millisecond),
		UserID:     42,
		Variant:    "classifieds",
		Category:   "SELL",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Fatal("empty retraction id")
	}
	if pendingCount(t, db) != 1 {
		t.Fatal("record not persisted before Register returned")
	}
	if del.total() != 0 {
		t.Fatal("deleted before the deadline")
	}

	waitFor(t, "record removal", func() bool { return pendingCount(t, db) == 0 })
	for _, id := range []int{1, 2, 3} {
		if got := del.count(id); got != 1 {
			t.Errorf("message %d deleted %d times, want 1", id, got)
		}
	}

	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("events = %v, want registered and fired", kinds)
		}
	}
	if kinds[0] != bus.KindRetractionRegistered || kinds[1] != bus.KindRetractionFired {
		t.Errorf("events = %v", kinds)
	}
}

func TestRegisterRejectsEmpty(t *testing.T) {
	s := NewScheduler(testDB(t), newMockDeleter(), nil, nil, time.Second)
	defer s.Stop()
	if _, err := s.Register(context.Background(), Registration{ChatID: 1}); !errors.Is(err, ErrNoMessages) {
		t.Errorf("err = %v, want ErrNoMessages", err)
	}
}

func TestDeleteFailureStillRemovesRecord(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	del := newMockDeleter()
	del.err = errors.New("message to delete not found")
	s := NewScheduler(db, del, b, zap.NewNop(), time.Second)
	defer s.Stop()

	ch, unsub := b.Subscribe(bus.KindRetractionDeleteFailed, 10)
	defer unsub()

	if _, err := s.Register(context.Background(), Registration{
		ChatID: 1, MessageIDs: []int{7, 8}, DeleteAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "record removal", func() bool { return pendingCount(t, db) == 0 })
	if del.count(7) != 1 || del.count(8) != 1 {
		t.Errorf("calls = %v, want one attempt per message and no retry", del.calls)
	}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			if p := evt.Payload.(bus.Retraction); p.MessageID != 7 && p.MessageID != 8 {
				t.Errorf("payload = %+v", p)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for delete_failed event")
		}
	}
}

func TestDeleteBoundedByCallTimeout(t *testing.T) {
	db := testDB(t)
	del := newMockDeleter()
	del.block = true
	s := NewScheduler(db, del, nil, zap.NewNop(), 20*time.Millisecond)
	defer s.Stop()

	if _, err := s.Register(context.Background(), Registration{
		ChatID: 1, MessageIDs: []int{1}, DeleteAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "record removal", func() bool { return pendingCount(t, db) == 0 })
}

// TestRestartFiresOverdueOnce simulates a crash after publishing: a fresh
// scheduler over the same database must delete the overdue post exactly once.
func TestRestartFiresOverdueOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	first := NewScheduler(db, newMockDeleter(), nil, zap.NewNop(), time.Second)
	if _, err := first.Register(ctx, Registration{ChatID: 1, MessageIDs: []int{10, 11}, DeleteAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	first.Stop()

	// Move the deadline into the past, as if the process slept through it.
	if _, err := db.Exec(`UPDATE retractions SET delete_at = ?`, past.UnixMilli()); err != nil {
		t.Fatal(err)
	}

	del := newMockDeleter()
	second := NewScheduler(db, del, nil, zap.NewNop(), time.Second)
	defer second.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}
	// A second reload while the first fire may be in flight must not re-arm it.
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "record removal", func() bool { return pendingCount(t, db) == 0 })
	time.Sleep(50 * time.Millisecond)
	if del.count(10) != 1 || del.count(11) != 1 {
		t.Errorf("calls = %v, want each message deleted once", del.calls)
	}
}

func TestStopKeepsRecords(t *testing.T) {
	db := testDB(t)
	del := newMockDeleter()
	s := NewScheduler(db, del, nil, zap.NewNop(), time.Second)

	if _, err := s.Register(context.Background(), Registration{
		ChatID: 1, MessageIDs: []int{1}, DeleteAt: time.Now().Add(150 * time.Millisecond),
	}); err != nil {
		t.Fatal(err)
	}
	if s.Armed() != 1 {
		t.Fatalf("Armed() = %d, want 1", s.Armed())
	}
	s.Stop()
	if s.Armed() != 0 {
		t.Errorf("Armed() after Stop = %d", s.Armed())
	}

	time.Sleep(300 * time.Millisecond)
	if del.total() != 0 {
		t.Error("stopped scheduler deleted a message")
	}
	pending, err := s.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestConcurrentRegister(t *testing.T) {
	db := testDB(t)
	del := newMockDeleter()
	s := NewScheduler(db, del, nil, zap.NewNop(), time.Second)
	defer s.Stop()

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Register(context.Background(), Registration{
				ChatID: 1, MessageIDs: []int{i}, DeleteAt: time.Now().Add(20 * time.Millisecond),
			})
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	waitFor(t, "all records removed", func() bool { return pendingCount(t, db) == 0 })
	for i := 0; i < n; i++ {
		if got := del.count(i); got != 1 {
			t.Errorf("message %d deleted %d times", i, got)
		}
	}
}

// flakyStore fails the first failures CompleteRetraction calls.
type flakyStore struct {
	*store.DB

	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) CompleteRetraction(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("database is locked")
	}
	return f.DB.CompleteRetraction(ctx, id, at)
}

func (f *flakyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestRemovalRetriesWithoutRepeatingDeletes(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failures: 2}
	del := newMockDeleter()
	s := NewScheduler(fs, del, bus.New(), zap.NewNop(), time.Second)
	s.retryDelay = 10 * time.Millisecond
	defer s.Stop()

	if _, err := s.Register(context.Background(), Registration{
		ChatID: 1, MessageIDs: []int{5, 6}, DeleteAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "record removal", func() bool { return pendingCount(t, db) == 0 })
	if got := fs.calls(); got != 3 {
		t.Errorf("CompleteRetraction calls = %d, want 3", got)
	}
	if del.count(5) != 1 || del.count(6) != 1 {
		t.Errorf("deletes = %v, want exactly one per message", del.calls)
	}
}

func TestRemovalGivesUpAndKeepsRecord(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failures: completeAttempts}
	s := NewScheduler(fs, newMockDeleter(), bus.New(), zap.NewNop(), time.Second)
	s.retryDelay = time.Millisecond
	defer s.Stop()

	if _, err := s.Register(context.Background(), Registration{
		ChatID: 1, MessageIDs: []int{9}, DeleteAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "all attempts", func() bool { return fs.calls() == completeAttempts })
	if pendingCount(t, db) != 1 {
		t.Error("record removed although every attempt failed")
	}
}
