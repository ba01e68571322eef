// Package telegram is the bot API transport: it posts and deletes feed
// messages, answers users and turns inbound updates into dialogue events.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/matheus3301/doska/internal/conversation"
	"github.com/matheus3301/doska/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyGroup is returned when a photo group has no photos.
var ErrEmptyGroup = errors.New("photo group without photos")

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Options configures the adapter.
type Options struct {
	Token         string
	HTTPTimeout   time.Duration
	RatePerSecond float64
	Burst         int
}

// Adapter wraps the bot API client. Outbound calls are paced by a token
// bucket; inbound updates feed a cache of public handles.
type Adapter struct {
	api     botAPI
	self    string
	limiter *rate.Limiter
	logger  *zap.Logger

	mu      sync.RWMutex
	handles map[int64]string
}

// NewAdapter authenticates against the bot API and returns an adapter.
func NewAdapter(opts Options, logger *zap.Logger) (*Adapter, error) {
	if opts.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	client := &http.Client{Timeout: opts.HTTPTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	a := newAdapter(bot, opts, logger)
	a.self = bot.Self.UserName
	return a, nil
}

func newAdapter(api botAPI, opts Options, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Adapter{
		api:     api,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		handles: make(map[int64]string),
	}
}

// Self returns the bot's own username.
func (a *Adapter) Self() string { return a.self }

// Handle returns the public handle last seen for a user.
func (a *Adapter) Handle(userID int64) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.handles[userID]
	return h, ok
}

func (a *Adapter) remember(userID int64, handle string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if handle == "" {
		delete(a.handles, userID)
		return
	}
	a.handles[userID] = handle
}

// SendText posts a text message and returns its id.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, html bool) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if html {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	var sent tgbotapi.Message
	err := a.call(ctx, "sendMessage", func() (err error) {
		sent, err = a.api.Send(msg)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendPhotoGroup posts up to ten photos with the caption on the first one and
// returns every resulting message id.
func (a *Adapter) SendPhotoGroup(ctx context.Context, chatID int64, photos []string, caption string) ([]int, error) {
	switch len(photos) {
	case 0:
		return nil, ErrEmptyGroup
	case 1:
		// Media groups need at least two items.
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(photos[0]))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		var sent tgbotapi.Message
		err := a.call(ctx, "sendPhoto", func() (err error) {
			sent, err = a.api.Send(photo)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("send photo: %w", err)
		}
		return []int{sent.MessageID}, nil
	}

	media := make([]any, 0, len(photos))
	for i, ref := range photos {
		p := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(ref))
		if i == 0 {
			p.Caption = caption
			p.ParseMode = tgbotapi.ModeHTML
		}
		media = append(media, p)
	}
	var sent []tgbotapi.Message
	err := a.call(ctx, "sendMediaGroup", func() (err error) {
		sent, err = a.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("send media group: %w", err)
	}
	ids := make([]int, len(sent))
	for i, m := range sent {
		ids[i] = m.MessageID
	}
	return ids, nil
}

// DeleteMessage removes one message from a chat.
func (a *Adapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := a.call(ctx, "deleteMessage", func() error {
		_, err := a.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return err
	})
	if err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

// Reply shows a dialogue reply, with its inline keyboard, in a private chat.
func (a *Adapter) Reply(ctx context.Context, chatID int64, r conversation.Reply) error {
	if r.Empty() {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, r.Prompt)
	if r.HTML {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	if kb := keyboard(r.Keyboard); kb != nil {
		msg.ReplyMarkup = *kb
	}
	err := a.call(ctx, "sendMessage", func() error {
		_, err := a.api.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	return a.call(ctx, "answerCallbackQuery", func() error {
		_, err := a.api.Request(tgbotapi.NewCallback(callbackID, ""))
		return err
	})
}

func keyboard(rows [][]conversation.Key) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, k := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(k.Label, k.Token))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}

// call paces fn through the limiter and abandons it when ctx is done. The
// bot API client has no context support; its HTTP timeout bounds the
// abandoned request.
func (a *Adapter) call(ctx context.Context, method string, fn func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := do(ctx, fn)
	metrics.ObserveAPICall(method, start, err)
	if err != nil && !isBenign(err) {
		a.logger.Debug("bot api call failed", zap.String("method", method), zap.Error(err))
	}
	return err
}

func do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isBenign reports errors that only mean the target is already gone.
func isBenign(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, "message to delete not found")
	}
	return false
}
