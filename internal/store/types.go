package store

import "time"

// Retraction is a published post waiting to be deleted from the feed.
type Retraction struct {
	ID         string
	ChatID     int64
	MessageIDs []int
	DeleteAt   time.Time
	CreatedAt  time.Time
}

// Publication is the audit row written alongside a retraction.
type Publication struct {
	RetractionID string
	UserID       int64
	Variant      string
	Category     string
	Summary      string
	PublishedAt  time.Time
	RetractedAt  *time.Time
}

// Retracted reports whether the post was already taken down.
func (p Publication) Retracted() bool { return p.RetractedAt != nil }
