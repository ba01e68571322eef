// Package bot routes inbound updates to the conversation engine, one ordered
// mailbox per user, and sends the replies back.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/conversation"
	"github.com/matheus3301/doska/internal/metrics"
	"github.com/matheus3301/doska/internal/telegram"
	"go.uber.org/zap"
)

const (
	mailboxSize   = 32
	mailboxIdle   = time.Minute
	sweepInterval = time.Minute

	msgUnknownCommand = "Используйте /start, /info или /cancel."
)

// Transport sends replies to private chats.
type Transport interface {
	Reply(ctx context.Context, chatID int64, r conversation.Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Handles resolves a user's current public handle.
type Handles interface {
	Handle(userID int64) (string, bool)
}

// Options configures a Dispatcher.
type Options struct {
	Channel     string
	CallTimeout time.Duration
}

// Dispatcher serializes each user's updates through a dedicated goroutine.
// /cancel skips the queue so it is never stuck behind a slow publish.
type Dispatcher struct {
	engine    *conversation.Engine
	transport Transport
	handles   Handles
	bus       *bus.Bus
	logger    *zap.Logger
	opts      Options
	idle      time.Duration

	mu        sync.Mutex
	mailboxes map[int64]chan job
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(engine *conversation.Engine, t Transport, h Handles, b *bus.Bus, logger *zap.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		engine:    engine,
		transport: t,
		handles:   h,
		bus:       b,
		logger:    logger,
		opts:      opts,
		idle:      mailboxIdle,
		mailboxes: make(map[int64]chan job),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the idle-session sweeper until Stop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if n := d.engine.Sweep(now); n > 0 {
					d.logger.Info("swept idle sessions", zap.Int("count", n))
				}
				metrics.ActiveSessions.Set(float64(d.engine.Active()))
			case <-d.ctx.Done():
				return
			}
		}
	}()
}

// Stop abandons queued updates and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}

// job is one unit of work for a user's worker: an inbound update, or the
// confirmation of a cancel that already took effect.
type job struct {
	in      telegram.Inbound
	confirm bool
}

// Dispatch routes one inbound update. It never blocks on the user's worker.
func (d *Dispatcher) Dispatch(in telegram.Inbound) {
	if in.Command == telegram.CommandCancel {
		d.CancelUser(in.UserID, in.ChatID)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enqueueLocked(job{in: in}) {
		d.logger.Warn("mailbox full, dropping update", zap.Int64("user_id", in.UserID), zap.Int("update_id", in.UpdateID))
	}
}

// CancelUser discards the user's draft at once and queues the confirmation
// behind any reply the user's worker is still sending. It reports whether a
// draft existed.
func (d *Dispatcher) CancelUser(userID, chatID int64) bool {
	existed := d.engine.Cancel(userID)
	if existed {
		d.bus.Emit(bus.KindDraftCancelled, userID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	confirm := job{in: telegram.Inbound{UserID: userID, ChatID: chatID}, confirm: true}
	if d.ctx.Err() != nil || d.enqueueLocked(confirm) {
		return existed
	}
	d.logger.Warn("mailbox full, confirming cancel out of band", zap.Int64("user_id", userID))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reply(chatID, cancelledReply())
	}()
	return existed
}

// enqueueLocked hands j to the user's worker, starting one if needed. It
// reports false when the mailbox is full. A stopped dispatcher accepts and
// drops everything. d.mu must be held.
func (d *Dispatcher) enqueueLocked(j job) bool {
	if d.ctx.Err() != nil {
		return true
	}
	mb, ok := d.mailboxes[j.in.UserID]
	if !ok {
		mb = make(chan job, mailboxSize)
		d.mailboxes[j.in.UserID] = mb
		d.wg.Add(1)
		go d.run(j.in.UserID, mb)
	}
	select {
	case mb <- j:
		return true
	default:
		return false
	}
}

func cancelledReply() conversation.Reply {
	return conversation.Reply{Prompt: conversation.Cancelled(), Ended: true}
}

// Mailboxes returns the number of live per-user workers.
func (d *Dispatcher) Mailboxes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

func (d *Dispatcher) run(userID int64, mb chan job) {
	defer d.wg.Done()
	idle := time.NewTimer(d.idle)
	defer idle.Stop()

	for {
		select {
		case j := <-mb:
			if j.confirm {
				d.reply(j.in.ChatID, cancelledReply())
			} else {
				d.handle(j.in)
			}
			idle.Reset(d.idle)
		case <-idle.C:
			d.mu.Lock()
			if len(mb) == 0 {
				delete(d.mailboxes, userID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idle)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handle(in telegram.Inbound) {
	if in.CallbackID != "" {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.CallTimeout)
		if err := d.transport.AnswerCallback(ctx, in.CallbackID); err != nil {
			d.logger.Debug("failed to answer callback", zap.Error(err))
		}
		cancel()
	}

	var r conversation.Reply
	switch in.Command {
	case "":
		var err error
		r, err = d.engine.Advance(d.ctx, in.UserID, in.Event)
		if err != nil {
			d.logger.Error("failed to advance conversation", zap.Int64("user_id", in.UserID), zap.Error(err))
		}
	case telegram.CommandStart:
		handle, _ := d.handles.Handle(in.UserID)
		r = d.engine.Start(in.UserID, in.ChatID, handle)
	case telegram.CommandInfo:
		text, html := conversation.Info(d.engine.Variant(), d.opts.Channel)
		r = conversation.Reply{Prompt: text, HTML: html}
	default:
		r = conversation.Reply{Prompt: msgUnknownCommand}
	}
	d.reply(in.ChatID, r)
}

func (d *Dispatcher) reply(chatID int64, r conversation.Reply) {
	if r.Empty() {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.CallTimeout)
	defer cancel()
	if err := d.transport.Reply(ctx, chatID, r); err != nil {
		d.logger.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
