package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by prefix,
// e.g. "retraction." receives every scheduler event.
const (
	KindStatusChanged = "daemon.status_changed"

	KindListingPublished     = "listing.published"
	KindListingPublishFailed = "listing.publish_failed"
	KindDraftCancelled       = "draft.cancelled"

	KindRetractionRegistered   = "retraction.registered"
	KindRetractionFired        = "retraction.fired"
	KindRetractionDeleteFailed = "retraction.delete_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Published describes a listing that reached the feed.
type Published struct {
	RetractionID string
	UserID       int64
	Variant      string
	Category     string
	Messages     int
	DeleteAt     time.Time
}

// PublishFailed describes a listing the transport refused.
type PublishFailed struct {
	UserID  int64
	Variant string
	Error   string
}

// Retraction identifies a scheduler record in retraction.* events.
type Retraction struct {
	ID        string
	ChatID    int64
	MessageID int // set on delete_failed only
	DeleteAt  time.Time
	Error     string
}
