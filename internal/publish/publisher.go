// Package publish takes a finished draft to the feed and schedules its
// retraction.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/compose"
	"github.com/matheus3301/doska/internal/expiry"
	"github.com/matheus3301/doska/internal/listing"
	"github.com/matheus3301/doska/internal/retraction"
	"github.com/matheus3301/doska/internal/store"
	"go.uber.org/zap"
)

// Transport posts to and deletes from the feed chat.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, html bool) (int, error)
	SendPhotoGroup(ctx context.Context, chatID int64, photos []string, caption string) ([]int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Registrar records a published post for later deletion.
type Registrar interface {
	Register(ctx context.Context, reg retraction.Registration) (store.Retraction, error)
}

// Options configures a Publisher.
type Options struct {
	FeedChatID  int64
	BotHandle   string
	CallTimeout time.Duration
}

// Publisher renders, posts, plans and registers one listing at a time.
type Publisher struct {
	transport Transport
	planner   *expiry.Planner
	registrar Registrar
	bus       *bus.Bus
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewPublisher creates a publisher for the configured feed chat.
func NewPublisher(t Transport, planner *expiry.Planner, r Registrar, b *bus.Bus, logger *zap.Logger, opts Options) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	return &Publisher{
		transport: t,
		planner:   planner,
		registrar: r,
		bus:       b,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Publish posts d to the feed and registers its retraction. When the
// registration cannot be stored the post is taken down again, so nothing
// stays in the feed without a deadline.
func (p *Publisher) Publish(ctx context.Context, d *listing.Draft) error {
	post := compose.Compose(d, compose.Options{BotHandle: p.opts.BotHandle})
	publishedAt := p.now()

	ids, err := p.send(ctx, post)
	if err != nil {
		p.logger.Error("failed to publish listing", zap.Int64("user_id", d.UserID), zap.Error(err))
		p.bus.Emit(bus.KindListingPublishFailed, bus.PublishFailed{
			UserID: d.UserID, Variant: string(d.Variant), Error: err.Error(),
		})
		return fmt.Errorf("send post: %w", err)
	}

	deleteAt := p.planner.ForDraft(d, publishedAt)
	rec, err := p.registrar.Register(ctx, retraction.Registration{
		ChatID:     p.opts.FeedChatID,
		MessageIDs: ids,
		DeleteAt:   deleteAt,
		UserID:     d.UserID,
		Variant:    string(d.Variant),
		Category:   string(d.Category),
		Summary:    d.Summary(),
	})
	if err != nil {
		p.logger.Error("failed to register retraction, withdrawing post", zap.Ints("message_ids", ids), zap.Error(err))
		p.withdraw(ctx, ids)
		p.bus.Emit(bus.KindListingPublishFailed, bus.PublishFailed{
			UserID: d.UserID, Variant: string(d.Variant), Error: err.Error(),
		})
		return fmt.Errorf("register retraction: %w", err)
	}

	p.logger.Info("listing posted",
		zap.String("retraction_id", rec.ID),
		zap.Int64("user_id", d.UserID),
		zap.Ints("message_ids", ids),
		zap.Time("delete_at", deleteAt),
	)
	p.bus.Emit(bus.KindListingPublished, bus.Published{
		RetractionID: rec.ID,
		UserID:       d.UserID,
		Variant:      string(d.Variant),
		Category:     string(d.Category),
		Messages:     len(ids),
		DeleteAt:     deleteAt,
	})
	return nil
}

func (p *Publisher) send(ctx context.Context, post compose.Post) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	if !post.HasPhotos() {
		id, err := p.transport.SendText(ctx, p.opts.FeedChatID, post.Caption, true)
		if err != nil {
			return nil, err
		}
		return []int{id}, nil
	}
	return p.transport.SendPhotoGroup(ctx, p.opts.FeedChatID, post.Photos, post.Caption)
}

func (p *Publisher) withdraw(ctx context.Context, ids []int) {
	for _, id := range ids {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CallTimeout)
		if err := p.transport.DeleteMessage(callCtx, p.opts.FeedChatID, id); err != nil {
			p.logger.Warn("failed to withdraw message", zap.Int("message_id", id), zap.Error(err))
		}
		cancel()
	}
}
