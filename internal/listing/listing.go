// Package listing holds the in-progress listing draft and its validation rules.
package listing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// MaxPhotos bounds the photos attached to a single listing.
	MaxPhotos = 3
	// MaxBody bounds classifieds text in UTF-16 code units, the unit the
	// platform measures captions in. The caption limit is 1024; the rest is
	// left for the header, contact and footer.
	MaxBody = 800
	// MaxComment bounds a ride comment, in runes.
	MaxComment = 200
	// MaxPrice bounds a manually entered ride price.
	MaxPrice = 5000
)

var (
	// ErrEmptyListing means the draft has neither body text nor photos.
	ErrEmptyListing = errors.New("listing has neither text nor photos")
	// ErrIncomplete means a structured ride field is missing.
	ErrIncomplete = errors.New("listing is incomplete")
	// ErrBodyTooLong means the text would not fit in a photo caption.
	ErrBodyTooLong = errors.New("listing text is too long")
	// ErrPhotoLimit means the draft already carries MaxPhotos photos.
	ErrPhotoLimit = errors.New("photo limit reached")
	// ErrInvalidPrice means a manual price is not a number in 1..MaxPrice.
	ErrInvalidPrice = errors.New("price must be a number between 1 and 5000")
)

// Variant selects which intake flow a bot instance runs.
type Variant string

const (
	Classifieds Variant = "classifieds"
	Rides       Variant = "rides"
)

// ParseVariant validates a configured variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case Classifieds, Rides:
		return v, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// Category is the listing kind chosen at the first step.
type Category string

const (
	Sell      Category = "SELL"
	Buy       Category = "BUY"
	Exchange  Category = "EXCHANGE"
	Service   Category = "SERVICE"
	Misc      Category = "MISC"
	Driver    Category = "DRIVER"
	Passenger Category = "PASSENGER"
)

var categoriesByVariant = map[Variant][]Category{
	Classifieds: {Sell, Buy, Exchange, Service, Misc},
	Rides:       {Driver, Passenger},
}

// Categories returns the categories offered by a variant, in display order.
func Categories(v Variant) []Category {
	return categoriesByVariant[v]
}

// Allowed reports whether c can be chosen in variant v.
func (c Category) Allowed(v Variant) bool {
	for _, allowed := range categoriesByVariant[v] {
		if allowed == c {
			return true
		}
	}
	return false
}

// ContactMode says how readers of the post reach the author.
type ContactMode int

const (
	Unspecified ContactMode = iota
	ByHandle
	ByPhone
)

func (m ContactMode) String() string {
	switch m {
	case ByHandle:
		return "handle"
	case ByPhone:
		return "phone"
	default:
		return "unspecified"
	}
}

// Contact is the resolved contact of the author.
type Contact struct {
	Mode  ContactMode
	Value string // "@handle" or canonical phone; empty when Unspecified
}

// Route is a ride's origin and destination.
type Route struct {
	Origin      string
	Destination string
}

// Price is a driver's fare: either a number of rubles or the ticket-price literal.
type Price struct {
	Amount int
	Ticket bool
}

// Set reports whether a price was chosen.
func (p Price) Set() bool { return p.Ticket || p.Amount > 0 }

// Draft is a listing being assembled through the conversation.
type Draft struct {
	UserID   int64
	ChatID   int64
	Variant  Variant
	Category Category

	Body   string
	Photos []string

	Route      Route
	Date       string // ISO calendar date, YYYY-MM-DD
	Time       string // "HH:00 - HH:00" slot or free text
	TimeManual bool
	Price      Price
	Seats      int
	Comment    string

	Contact Contact
}

// New returns an empty draft for a user.
func New(v Variant, userID, chatID int64) *Draft {
	return &Draft{UserID: userID, ChatID: chatID, Variant: v}
}

// AddPhoto appends a media reference. It reports whether the draft is now full.
func (d *Draft) AddPhoto(ref string) (bool, error) {
	if len(d.Photos) >= MaxPhotos {
		return true, ErrPhotoLimit
	}
	d.Photos = append(d.Photos, ref)
	return len(d.Photos) >= MaxPhotos, nil
}

// SetBody stores trimmed listing text, rejecting text longer than MaxBody.
func (d *Draft) SetBody(s string) error {
	s = strings.TrimSpace(s)
	if BodyLength(s) > MaxBody {
		return ErrBodyTooLong
	}
	d.Body = s
	return nil
}

// BodyLength measures s in UTF-16 code units.
func BodyLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// HasContent reports whether a classifieds draft carries text or photos.
func (d *Draft) HasContent() bool {
	return strings.TrimSpace(d.Body) != "" || len(d.Photos) > 0
}

// SetComment stores a ride comment truncated to MaxComment runes.
func (d *Draft) SetComment(s string) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxComment {
		s = string([]rune(s)[:MaxComment])
	}
	d.Comment = s
}

// IsDriver reports whether a ride draft was started by a driver.
func (d *Draft) IsDriver() bool { return d.Category == Driver }

// Validate checks that the draft may be published.
func (d *Draft) Validate() error {
	if !d.Category.Allowed(d.Variant) {
		return fmt.Errorf("%w: category %q", ErrIncomplete, d.Category)
	}
	if d.Variant == Classifieds {
		if !d.HasContent() {
			return ErrEmptyListing
		}
		return nil
	}
	switch {
	case d.Route.Origin == "" || d.Route.Destination == "":
		return fmt.Errorf("%w: route", ErrIncomplete)
	case d.Date == "":
		return fmt.Errorf("%w: date", ErrIncomplete)
	case strings.TrimSpace(d.Time) == "":
		return fmt.Errorf("%w: time", ErrIncomplete)
	case d.Seats <= 0:
		return fmt.Errorf("%w: seats", ErrIncomplete)
	case d.IsDriver() && !d.Price.Set():
		return fmt.Errorf("%w: price", ErrIncomplete)
	}
	return nil
}

// Summary is a short one-line description kept with the publication record.
func (d *Draft) Summary() string {
	if d.Variant == Rides {
		return fmt.Sprintf("%s — %s %s %s", d.Route.Origin, d.Route.Destination, d.Date, d.Time)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(d.Body), "\n")
	if utf8.RuneCountInString(line) > 100 {
		line = string([]rune(line)[:100])
	}
	if line == "" && len(d.Photos) > 0 {
		line = fmt.Sprintf("[%d photo(s)]", len(d.Photos))
	}
	return line
}

// ParsePrice validates a manually typed price.
func ParsePrice(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidPrice
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalidPrice
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > MaxPrice {
		return 0, ErrInvalidPrice
	}
	return n, nil
}
