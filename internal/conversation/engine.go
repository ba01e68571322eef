// Package conversation drives the question/answer dialogue that turns user
// input into a listing draft and hands finished drafts to a Publisher.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/doska/internal/compose"
	"github.com/matheus3301/doska/internal/listing"
	"go.uber.org/zap"
)

const (
	dateLayout      = "2006-01-02"
	defaultDateDays = 7
)

// Publisher takes a finished draft to the feed.
type Publisher interface {
	Publish(ctx context.Context, d *listing.Draft) error
}

// Config parameterizes the dialogue for one bot instance.
type Config struct {
	Variant   listing.Variant
	Preview   bool // classifieds only, rides always preview
	Channel   string
	BotHandle string

	Presets  []listing.Route
	Prices   []int
	DateDays int

	SessionTTL time.Duration
	Location   *time.Location
}

// Engine owns every active session. Events for one user are serialized by
// the session mutex; /cancel never waits on it.
type Engine struct {
	cfg    Config
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
}

type session struct {
	mu     sync.Mutex
	userID int64
	handle string
	state  State
	draft  *listing.Draft

	lastSeen  atomic.Int64
	cancelled atomic.Bool
}

// NewEngine creates an engine publishing through pub.
func NewEngine(cfg Config, pub Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DateDays <= 0 {
		cfg.DateDays = defaultDateDays
	}
	return &Engine{
		cfg:      cfg,
		pub:      pub,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[int64]*session),
	}
}

// Variant returns the flow this engine runs.
func (e *Engine) Variant() listing.Variant { return e.cfg.Variant }

// Start opens a fresh session for the user, replacing any previous one, and
// returns the first question.
func (e *Engine) Start(userID, chatID int64, handle string) Reply {
	s := &session{userID: userID, handle: handle}
	s.lastSeen.Store(e.now().UnixNano())
	e.reset(s, chatID)

	e.mu.Lock()
	if old, ok := e.sessions[userID]; ok {
		old.cancelled.Store(true)
	}
	e.sessions[userID] = s
	e.mu.Unlock()

	e.logger.Debug("session started", zap.Int64("user_id", userID), zap.String("variant", string(e.cfg.Variant)))

	r := e.prompt(s)
	r.Prompt = Intro(e.cfg.Variant, e.cfg.Channel) + "\n\n" + r.Prompt
	return r
}

// Advance feeds one event to the user's session.
func (e *Engine) Advance(ctx context.Context, userID int64, ev Event) (Reply, error) {
	s := e.lookup(userID)
	if s == nil {
		e.logger.Debug("event without session", zap.Int64("user_id", userID), zap.Stringer("kind", ev.Kind()))
		return Reply{Ignored: true}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled.Load() {
		return Reply{Ignored: true, Ended: true}, nil
	}
	s.lastSeen.Store(e.now().UnixNano())

	st, ok := transitions[s.state][ev.Kind()]
	if !ok {
		return e.reject(s, rejectionFor(s.state)), nil
	}
	r, err := st(e, ctx, s, ev)
	if !r.Terminal && s.cancelled.Load() {
		return Reply{Ignored: true, Ended: true}, nil
	}
	return r, err
}

// Cancel discards the user's draft. It reports whether a session existed.
func (e *Engine) Cancel(userID int64) bool {
	e.mu.Lock()
	s, ok := e.sessions[userID]
	if ok {
		delete(e.sessions, userID)
	}
	e.mu.Unlock()

	if ok {
		s.cancelled.Store(true)
		e.logger.Debug("session cancelled", zap.Int64("user_id", userID))
	}
	return ok
}

// Sweep drops sessions idle for longer than the configured TTL.
func (e *Engine) Sweep(now time.Time) int {
	if e.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-e.cfg.SessionTTL).UnixNano()

	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, s := range e.sessions {
		if s.lastSeen.Load() < cutoff {
			s.cancelled.Store(true)
			delete(e.sessions, id)
			n++
		}
	}
	return n
}

// Active returns the number of open sessions.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// StateOf returns the state of the user's session.
func (e *Engine) StateOf(userID int64) (State, bool) {
	s := e.lookup(userID)
	if s == nil {
		return Idle, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

func (e *Engine) lookup(userID int64) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[userID]
}

// end removes s unless a newer session already replaced it.
func (e *Engine) end(s *session) {
	e.mu.Lock()
	if cur, ok := e.sessions[s.userID]; ok && cur == s {
		delete(e.sessions, s.userID)
	}
	e.mu.Unlock()
}

func (e *Engine) reset(s *session, chatID int64) {
	s.draft = listing.New(e.cfg.Variant, s.userID, chatID)
	if e.cfg.Variant == listing.Rides {
		s.state = AwaitingRole
	} else {
		s.state = AwaitingCategory
	}
}

func (e *Engine) previewEnabled() bool {
	return e.cfg.Variant == listing.Rides || e.cfg.Preview
}

func (e *Engine) composeOptions() compose.Options {
	return compose.Options{BotHandle: e.cfg.BotHandle}
}

func (e *Engine) today() time.Time {
	now := e.now().In(e.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.cfg.Location)
}

// finish validates the draft one last time and publishes it. The session is
// over whatever the outcome.
func (e *Engine) finish(ctx context.Context, s *session) (Reply, error) {
	if s.cancelled.Load() {
		return Reply{Ignored: true, Ended: true}, nil
	}
	if err := s.draft.Validate(); err != nil {
		e.logger.Warn("draft failed validation at publish", zap.Int64("user_id", s.userID), zap.Error(err))
		e.end(s)
		return Reply{Prompt: validationMessage(err) + "\n\n/start", Rejected: true, Ended: true}, nil
	}

	s.state = Terminal
	err := e.pub.Publish(ctx, s.draft)
	e.end(s)
	if err != nil {
		return Reply{Prompt: msgPublishError, Ended: true}, fmt.Errorf("publish listing for user %d: %w", s.userID, err)
	}

	e.logger.Info("listing published",
		zap.Int64("user_id", s.userID),
		zap.String("category", string(s.draft.Category)),
		zap.Int("photos", len(s.draft.Photos)),
	)
	return Reply{Prompt: published(e.cfg.Variant, e.cfg.Channel), Terminal: true, Ended: true}, nil
}

func validationMessage(err error) string {
	if errors.Is(err, listing.ErrEmptyListing) {
		return rejectEmpty
	}
	return msgIncomplete
}

func (e *Engine) reject(s *session, reason string) Reply {
	r := e.prompt(s)
	r.Prompt = reason + "\n\n" + r.Prompt
	r.Rejected = true
	return r
}
