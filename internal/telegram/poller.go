package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/matheus3301/doska/internal/status"
	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// OffsetStore persists the next update offset across restarts.
type OffsetStore interface {
	UpdateOffset(ctx context.Context) (int, error)
	SaveUpdateOffset(ctx context.Context, offset int) error
}

// Poller long-polls getUpdates and hands private-chat updates to a handler.
type Poller struct {
	adapter *Adapter
	offsets OffsetStore
	machine *status.Machine
	logger  *zap.Logger
	timeout int
}

// NewPoller creates a poller. timeout is the long-poll wait in seconds and
// must stay below the adapter's HTTP timeout.
func NewPoller(a *Adapter, offsets OffsetStore, machine *status.Machine, logger *zap.Logger, timeout int) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{adapter: a, offsets: offsets, machine: machine, logger: logger, timeout: timeout}
}

// Run polls until ctx is done. Transport errors move the daemon to DEGRADED
// and are retried with exponential backoff.
func (p *Poller) Run(ctx context.Context, handle func(Inbound)) {
	offset, err := p.offsets.UpdateOffset(ctx)
	if err != nil {
		p.logger.Warn("failed to load update offset, starting from the server's", zap.Error(err))
	}
	backoff := minBackoff

	for ctx.Err() == nil {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = p.timeout
		cfg.AllowedUpdates = []string{"message", "callback_query"}

		var updates []tgbotapi.Update
		err := do(ctx, func() (err error) {
			updates, err = p.adapter.api.GetUpdates(cfg)
			return err
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("getUpdates failed", zap.Error(err), zap.Duration("retry_in", backoff))
			p.setState(status.Degraded)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		p.setState(status.Polling)

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			in, ok := Parse(u)
			if !ok {
				continue
			}
			p.adapter.remember(in.UserID, in.Handle)
			handle(in)
		}
		if len(updates) > 0 {
			if err := p.offsets.SaveUpdateOffset(ctx, offset); err != nil {
				p.logger.Warn("failed to save update offset", zap.Int("offset", offset), zap.Error(err))
			}
		}
	}
}

func (p *Poller) setState(s status.State) {
	if p.machine == nil {
		return
	}
	if err := p.machine.Ensure(s); err != nil {
		p.logger.Debug("status transition skipped", zap.String("to", string(s)), zap.Error(err))
	}
}
