// Package expiry computes when a published listing must be retracted.
//
// Structured ride slots get a deadline tied to the slot itself; everything
// else (classifieds, manual ride times, malformed input) gets a flat window
// from the publish time. Plan never fails.
package expiry

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/matheus3301/doska/internal/listing"
)

const (
	// DefaultZone is the civil zone the feed operates in.
	DefaultZone = "Asia/Novosibirsk"
	// DefaultFallback is the flat lifetime for listings without a usable slot.
	DefaultFallback = 48 * time.Hour

	dateLayout    = "2006-01-02"
	slotSeparator = " - "
)

// Planner computes retraction deadlines in a single fixed zone.
type Planner struct {
	loc      *time.Location
	fallback time.Duration
}

// NewPlanner returns a planner for loc. A zero fallback means DefaultFallback.
func NewPlanner(loc *time.Location, fallback time.Duration) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	return &Planner{loc: loc, fallback: fallback}
}

// LoadZone resolves an IANA zone name, defaulting to DefaultZone when empty.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	return time.LoadLocation(name)
}

// Location returns the planner's zone.
func (p *Planner) Location() *time.Location { return p.loc }

// Flat returns now plus the fallback window.
func (p *Planner) Flat(now time.Time) time.Time {
	return now.In(p.loc).Add(p.fallback)
}

// Plan returns the deadline for a slot on an ISO date. Anything that is not a
// well-formed "HH:00 - HH:00" slot on a valid date falls back to Flat(now).
func (p *Planner) Plan(date, slot string, now time.Time) time.Time {
	start, end, ok := ParseSlot(slot)
	if !ok {
		return p.Flat(now)
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), p.loc)
	if err != nil {
		return p.Flat(now)
	}

	if IsHourly(start, end) {
		// start+2 lands on hour 24 only for the 22:00 slot; that one has no
		// same-date deadline and takes the flat window.
		if start+2 == 24 {
			return p.Flat(now)
		}
		return at(day, (start+2)%24, p.loc)
	}
	hour := end + 1
	if hour > 23 {
		return at(day.AddDate(0, 0, 1), 0, p.loc)
	}
	return at(day, hour, p.loc)
}

// ForDraft picks the rule that applies to a finalized draft.
func (p *Planner) ForDraft(d *listing.Draft, now time.Time) time.Time {
	if d.Variant != listing.Rides || d.TimeManual {
		return p.Flat(now)
	}
	return p.Plan(d.Date, d.Time, now)
}

// IsHourly reports whether a slot spans exactly one hour, wrapping 23 to 0.
func IsHourly(start, end int) bool {
	return end == (start+1)%24
}

// ParseSlot parses "HH:00 - HH:00" into its start and end hours.
func ParseSlot(s string) (start, end int, ok bool) {
	left, right, found := strings.Cut(s, slotSeparator)
	if !found || strings.Contains(right, slotSeparator) {
		return 0, 0, false
	}
	if start, ok = parseHour(left); !ok {
		return 0, 0, false
	}
	if end, ok = parseHour(right); !ok {
		return 0, 0, false
	}
	return start, end, true
}

// FormatSlot renders hours as a slot label.
func FormatSlot(start, end int) string {
	return twoDigits(start) + ":00" + slotSeparator + twoDigits(end) + ":00"
}

func parseHour(s string) (int, bool) {
	hh, mm, found := strings.Cut(s, ":")
	if !found || !numeric(hh) || len(hh) > 2 || mm != "00" {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func at(day time.Time, hour int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
}
