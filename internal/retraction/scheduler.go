// Package retraction deletes published posts from the feed once their
// deadline passes. Records are durable, so a restart re-arms what is left.
package retraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/store"
	"go.uber.org/zap"
)

const (
	defaultCallTimeout = 10 * time.Second
	completeTimeout    = 5 * time.Second
	completeAttempts   = 5
	completeRetryDelay = 2 * time.Second
)

// ErrNoMessages is returned when a registration names no message to delete.
var ErrNoMessages = errors.New("retraction without message ids")

// Deleter removes one message from a chat.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Store is the durable side of the scheduler. *store.DB implements it.
type Store interface {
	InsertRetraction(ctx context.Context, r *store.Retraction, p *store.Publication) error
	PendingRetractions(ctx context.Context) ([]store.Retraction, error)
	CompleteRetraction(ctx context.Context, id string, at time.Time) error
}

// Registration is handed over right after a successful publish.
type Registration struct {
	ChatID     int64
	MessageIDs []int
	DeleteAt   time.Time

	UserID   int64
	Variant  string
	Category string
	Summary  string
}

// Scheduler owns one timer per pending retraction. Within a process each
// record fires at most once: the timer registry is claimed under the lock
// before any delete is attempted.
type Scheduler struct {
	db          Store
	deleter     Deleter
	bus         *bus.Bus
	logger      *zap.Logger
	callTimeout time.Duration
	now         func() time.Time
	retryDelay  time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight map[string]struct{}
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. callTimeout bounds every delete call.
func NewScheduler(db Store, deleter Deleter, b *bus.Bus, logger *zap.Logger, callTimeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:          db,
		deleter:     deleter,
		bus:         b,
		logger:      logger,
		callTimeout: callTimeout,
		now:         time.Now,
		retryDelay:  completeRetryDelay,
		timers:      make(map[string]*time.Timer),
		inflight:    make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register persists a retraction and arms its timer.
func (s *Scheduler) Register(ctx context.Context, reg Registration) (store.Retraction, error) {
	if len(reg.MessageIDs) == 0 {
		return store.Retraction{}, ErrNoMessages
	}
	now := s.now()
	rec := store.Retraction{
		ID:         uuid.NewString(),
		ChatID:     reg.ChatID,
		MessageIDs: append([]int(nil), reg.MessageIDs...),
		DeleteAt:   reg.DeleteAt,
		CreatedAt:  now,
	}
	pub := &store.Publication{
		UserID:      reg.UserID,
		Variant:     reg.Variant,
		Category:    reg.Category,
		Summary:     reg.Summary,
		PublishedAt: now,
	}
	if err := s.db.InsertRetraction(ctx, &rec, pub); err != nil {
		return store.Retraction{}, fmt.Errorf("persist retraction: %w", err)
	}

	s.arm(rec)
	s.logger.Info("retraction registered",
		zap.String("id", rec.ID),
		zap.Int64("chat_id", rec.ChatID),
		zap.Ints("message_ids", rec.MessageIDs),
		zap.Time("delete_at", rec.DeleteAt),
	)
	s.bus.Emit(bus.KindRetractionRegistered, bus.Retraction{ID: rec.ID, ChatID: rec.ChatID, DeleteAt: rec.DeleteAt})
	return rec, nil
}

// Start reloads every stored retraction and arms it. Deadlines already in
// the past fire immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.stopped = false
	}
	s.mu.Unlock()

	pending, err := s.db.PendingRetractions(ctx)
	if err != nil {
		return fmt.Errorf("load retractions: %w", err)
	}
	overdue := 0
	for _, r := range pending {
		if !r.DeleteAt.After(s.now()) {
			overdue++
		}
		s.arm(r)
	}
	s.logger.Info("retraction scheduler started", zap.Int("pending", len(pending)), zap.Int("overdue", overdue))
	return nil
}

// Stop disarms every timer and waits for in-flight deletions. Stored
// records are left untouched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

// Pending lists stored retractions, earliest deadline first.
func (s *Scheduler) Pending(ctx context.Context) ([]store.Retraction, error) {
	return s.db.PendingRetractions(ctx)
}

// Armed returns the number of timers waiting to fire.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) arm(r store.Retraction) {
	d := r.DeleteAt.Sub(s.now())
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.timers[r.ID]; ok {
		return
	}
	if _, ok := s.inflight[r.ID]; ok {
		return
	}
	s.timers[r.ID] = time.AfterFunc(d, func() { s.fire(r) })
}

// claim moves a record from armed to in-flight. It fails if the record was
// disarmed or already claimed.
func (s *Scheduler) claim(id string) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	if _, ok := s.timers[id]; !ok {
		return nil, false
	}
	delete(s.timers, id)
	s.inflight[id] = struct{}{}
	s.wg.Add(1)
	return s.ctx, true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Scheduler) fire(r store.Retraction) {
	ctx, ok := s.claim(r.ID)
	if !ok {
		return
	}
	defer s.release(r.ID)

	failed := 0
	for _, msgID := range r.MessageIDs {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := s.deleter.DeleteMessage(callCtx, r.ChatID, msgID)
		cancel()
		if err == nil {
			continue
		}
		failed++
		s.logger.Warn("failed to delete message",
			zap.String("retraction_id", r.ID),
			zap.Int64("chat_id", r.ChatID),
			zap.Int("message_id", msgID),
			zap.Error(err),
		)
		s.bus.Emit(bus.KindRetractionDeleteFailed, bus.Retraction{
			ID: r.ID, ChatID: r.ChatID, MessageID: msgID, DeleteAt: r.DeleteAt, Error: err.Error(),
		})
	}

	// Interrupted by shutdown: keep the record so the next start retries it.
	if ctx.Err() != nil {
		s.logger.Info("retraction interrupted by shutdown", zap.String("id", r.ID))
		return
	}

	if !s.complete(ctx, r.ID) {
		return
	}

	s.logger.Info("retraction fired",
		zap.String("id", r.ID),
		zap.Int("messages", len(r.MessageIDs)),
		zap.Int("failed", failed),
	)
	s.bus.Emit(bus.KindRetractionFired, bus.Retraction{ID: r.ID, ChatID: r.ChatID, DeleteAt: r.DeleteAt})
}

// complete removes a fired record, retrying storage errors so the deletes are
// not repeated at the next start. It gives up early on shutdown.
func (s *Scheduler) complete(ctx context.Context, id string) bool {
	for attempt := 1; ; attempt++ {
		doneCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
		err := s.db.CompleteRetraction(doneCtx, id, s.now())
		cancel()
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return true
		}
		if attempt == completeAttempts {
			s.logger.Error("failed to remove retraction, it will fire again on next start",
				zap.String("id", id), zap.Int("attempts", attempt), zap.Error(err))
			return false
		}
		s.logger.Warn("failed to remove retraction, retrying",
			zap.String("id", id), zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-time.After(s.retryDelay):
		case <-ctx.Done():
			return false
		}
	}
}
