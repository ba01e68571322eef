package api

import (
	"context"
	"time"

	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/conversation"
	"github.com/matheus3301/doska/internal/retraction"
	"github.com/matheus3301/doska/internal/status"
	"github.com/matheus3301/doska/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// Canceller discards a user's draft the way /cancel does.
type Canceller interface {
	CancelUser(userID, chatID int64) bool
}

// Admin implements AdminServer.
type Admin struct {
	instance  string
	startedAt time.Time
	machine   *status.Machine
	engine    *conversation.Engine
	canceller Canceller
	scheduler *retraction.Scheduler
	db        *store.DB
	bus       *bus.Bus
}

// NewAdmin creates the admin service.
func NewAdmin(instance string, machine *status.Machine, engine *conversation.Engine, c Canceller, s *retraction.Scheduler, db *store.DB, b *bus.Bus) *Admin {
	return &Admin{
		instance:  instance,
		startedAt: time.Now(),
		machine:   machine,
		engine:    engine,
		canceller: c,
		scheduler: s,
		db:        db,
		bus:       b,
	}
}

func (a *Admin) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	fields := map[string]any{
		"instance":     a.instance,
		"status":       string(a.machine.Current()),
		"status_since": a.machine.Since().UTC().Format(time.RFC3339),
		"uptime_ms":    time.Since(a.startedAt).Milliseconds(),
		"bus_dropped":  a.bus.Dropped(),
	}
	if a.engine != nil {
		fields["variant"] = string(a.engine.Variant())
		fields["active_drafts"] = a.engine.Active()
	}
	if a.scheduler != nil {
		fields["armed_timers"] = a.scheduler.Armed()
	}
	if a.db != nil {
		pending, err := a.db.PendingRetractions(ctx)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "pending retractions: %v", err)
		}
		fields["pending_retractions"] = len(pending)
		n, err := a.db.CountPublishedSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "count publications: %v", err)
		}
		fields["published_24h"] = n
	}
	return structpb.NewStruct(fields)
}

func (a *Admin) ListRetractions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if a.db == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "store not initialized")
	}
	limit := int(in.GetFields()["limit"].GetNumberValue())
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	pending, err := a.db.PendingRetractions(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "pending retractions: %v", err)
	}
	recent, err := a.db.RecentPublications(ctx, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "recent publications: %v", err)
	}

	pendingList := make([]any, 0, len(pending))
	for _, r := range pending {
		ids := make([]any, 0, len(r.MessageIDs))
		for _, id := range r.MessageIDs {
			ids = append(ids, id)
		}
		pendingList = append(pendingList, map[string]any{
			"id":          r.ID,
			"chat_id":     r.ChatID,
			"message_ids": ids,
			"delete_at":   r.DeleteAt.UTC().Format(time.RFC3339),
		})
	}
	recentList := make([]any, 0, len(recent))
	for _, p := range recent {
		item := map[string]any{
			"retraction_id": p.RetractionID,
			"user_id":       p.UserID,
			"variant":       p.Variant,
			"category":      p.Category,
			"summary":       p.Summary,
			"published_at":  p.PublishedAt.UTC().Format(time.RFC3339),
		}
		if p.Retracted() {
			item["retracted_at"] = p.RetractedAt.UTC().Format(time.RFC3339)
		}
		recentList = append(recentList, item)
	}

	return structpb.NewStruct(map[string]any{
		"pending": pendingList,
		"recent":  recentList,
	})
}

func (a *Admin) CancelDraft(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if a.canceller == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "dispatcher not initialized")
	}
	userID := int64(in.GetFields()["user_id"].GetNumberValue())
	if userID <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user_id is required")
	}
	// Private chats share the user's id.
	cancelled := a.canceller.CancelUser(userID, userID)
	return structpb.NewStruct(map[string]any{"cancelled": cancelled})
}
