package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/doska/internal/api"
	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/lock"
	"github.com/matheus3301/doska/internal/status"
	"github.com/matheus3301/doska/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestModuleGraphIsComplete(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{Instance: "test"}), fx.NopLogger); err != nil {
		t.Fatalf("fx graph error = %v", err)
	}
}

func TestServerLifecycle(t *testing.T) {
	// Short path keeps the socket under the 104-char limit on macOS.
	tmpDir, err := os.MkdirTemp("/tmp", "doska-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(tmpDir, "doska.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	b := bus.New()
	machine := status.NewMachine(b)
	admin := api.NewAdmin("test", machine, nil, nil, nil, db, b)

	socketPath := filepath.Join(tmpDir, "d.sock")
	// A leftover socket from a crashed daemon must not block startup.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(Params{Instance: "test", SocketPath: socketPath}, zap.NewNop(), admin)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	go func() { _ = srv.Start() }()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}

	c, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := machine.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}
	resp, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if got := resp.GetFields()["status"].GetStringValue(); got != string(status.Connecting) {
		t.Errorf("status = %q, want %q", got, status.Connecting)
	}
	if got := resp.GetFields()["pending_retractions"].GetNumberValue(); got != 0 {
		t.Errorf("pending_retractions = %v, want 0", got)
	}

	if _, err := c.CancelDraft(ctx, 1); err == nil {
		t.Error("CancelDraft() without dispatcher should fail")
	}

	srv.Stop(ctx)
	if _, err := os.Stat(socketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after Stop: %v", err)
	}
}
