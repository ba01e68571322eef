package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/doska/internal/compose"
	"github.com/matheus3301/doska/internal/expiry"
	"github.com/matheus3301/doska/internal/listing"
	"github.com/matheus3301/doska/internal/phone"
)

type step func(e *Engine, ctx context.Context, s *session, ev Event) (Reply, error)

// transitions lists, per state, the event kinds it accepts. Anything absent
// is rejected and the state re-prompted.
var transitions = map[State]map[EventKind]step{
	AwaitingCategory: {ButtonEvent: (*Engine).onCategory},
	AwaitingText: {
		TextEvent:   (*Engine).onBody,
		ButtonEvent: (*Engine).onSkipBody,
	},
	AwaitingPhotos: {
		PhotoEvent:  (*Engine).onPhoto,
		ButtonEvent: (*Engine).onSkipPhotos,
	},

	AwaitingRole:        {ButtonEvent: (*Engine).onRole},
	AwaitingRoute:       {ButtonEvent: (*Engine).onRoute},
	AwaitingOrigin:      {TextEvent: (*Engine).onOrigin},
	AwaitingDestination: {TextEvent: (*Engine).onDestination},
	AwaitingDate:        {ButtonEvent: (*Engine).onDate},
	AwaitingTime:        {ButtonEvent: (*Engine).onTime},
	AwaitingManualTime:  {TextEvent: (*Engine).onManualTime},
	AwaitingPrice:       {ButtonEvent: (*Engine).onPrice},
	AwaitingManualPrice: {TextEvent: (*Engine).onManualPrice},
	AwaitingSeats:       {ButtonEvent: (*Engine).onSeats},
	AwaitingComment: {
		TextEvent:   (*Engine).onComment,
		ButtonEvent: (*Engine).onSkipComment,
	},

	AwaitingContactMethod: {ButtonEvent: (*Engine).onContactMethod},
	AwaitingPhone:         {TextEvent: (*Engine).onPhone},
	AwaitingPreview:       {ButtonEvent: (*Engine).onPreview},
}

func rejectionFor(st State) string {
	switch st {
	case AwaitingPhotos:
		return rejectNotPhoto
	case AwaitingText, AwaitingComment, AwaitingOrigin, AwaitingDestination,
		AwaitingManualTime, AwaitingManualPrice, AwaitingPhone:
		return rejectNotText
	default:
		return rejectButton
	}
}

// prompt renders the question for the session's current state.
func (e *Engine) prompt(s *session) Reply {
	d := s.draft
	switch s.state {
	case AwaitingCategory:
		return Reply{Prompt: promptCategory, Keyboard: categoryKeyboard()}
	case AwaitingText:
		return Reply{Prompt: promptText, Keyboard: skipKeyboard("⏭️ Пропустить", TokenSkipText)}
	case AwaitingPhotos:
		p := promptPhotos
		if n := len(d.Photos); n > 0 {
			p = fmt.Sprintf(msgPhotoAdded, n, listing.MaxPhotos)
		}
		return Reply{Prompt: p, Keyboard: skipKeyboard("⏭️ Пропустить / продолжить", TokenSkipPhotos)}

	case AwaitingRole:
		return Reply{Prompt: promptRole, Keyboard: roleKeyboard()}
	case AwaitingRoute:
		return Reply{Prompt: promptRoute, Keyboard: routeKeyboard(e.cfg.Presets)}
	case AwaitingOrigin:
		return Reply{Prompt: promptOrigin}
	case AwaitingDestination:
		return Reply{Prompt: promptDestination}
	case AwaitingDate:
		return Reply{Prompt: promptDate, Keyboard: dateKeyboard(e.today(), e.cfg.DateDays)}
	case AwaitingTime:
		date, err := time.ParseInLocation(dateLayout, d.Date, e.cfg.Location)
		if err != nil {
			date = e.today()
		}
		return Reply{Prompt: promptTime, Keyboard: timeKeyboard(date, e.now())}
	case AwaitingManualTime:
		return Reply{Prompt: promptManualTime}
	case AwaitingPrice:
		return Reply{Prompt: promptPrice, Keyboard: priceKeyboard(e.cfg.Prices)}
	case AwaitingManualPrice:
		return Reply{Prompt: promptManualPrice}
	case AwaitingSeats:
		if d.IsDriver() {
			return Reply{Prompt: promptDriverSeats, Keyboard: seatsKeyboard(maxDriverSeats)}
		}
		return Reply{Prompt: promptRiderSeats, Keyboard: seatsKeyboard(maxRiderSeats)}
	case AwaitingComment:
		return Reply{Prompt: promptComment, Keyboard: skipKeyboard("⏭️ Пропустить", TokenSkipComment)}

	case AwaitingContactMethod:
		return Reply{Prompt: promptContact, Keyboard: contactKeyboard(e.cfg.Variant)}
	case AwaitingPhone:
		return Reply{Prompt: promptPhone}
	case AwaitingPreview:
		text := promptPreview + "\n\n" + compose.Preview(d, e.composeOptions())
		if n := len(d.Photos); n > 0 {
			text += fmt.Sprintf("\n\n🖼️ Фото: %d", n)
		}
		return Reply{Prompt: text, Keyboard: previewKeyboard(), HTML: true}
	}
	return Reply{Ignored: true}
}

func (e *Engine) moveTo(s *session, st State) (Reply, error) {
	s.state = st
	return e.prompt(s), nil
}

// Classifieds.

func (e *Engine) onCategory(_ context.Context, s *session, ev Event) (Reply, error) {
	c := listing.Category(ev.(Button).Token)
	if !c.Allowed(e.cfg.Variant) {
		return e.reject(s, rejectStaleButton), nil
	}
	s.draft.Category = c
	return e.moveTo(s, AwaitingText)
}

func (e *Engine) onBody(_ context.Context, s *session, ev Event) (Reply, error) {
	body := ev.(Text).Body
	if err := s.draft.SetBody(body); err != nil {
		n := listing.BodyLength(strings.TrimSpace(body))
		return e.reject(s, fmt.Sprintf(rejectLongBody, n, listing.MaxBody)), nil
	}
	return e.moveTo(s, AwaitingPhotos)
}

func (e *Engine) onSkipBody(_ context.Context, s *session, ev Event) (Reply, error) {
	if ev.(Button).Token != TokenSkipText {
		return e.reject(s, rejectStaleButton), nil
	}
	s.draft.Body = ""
	return e.moveTo(s, AwaitingPhotos)
}

func (e *Engine) onPhoto(_ context.Context, s *session, ev Event) (Reply, error) {
	full, err := s.draft.AddPhoto(ev.(Photo).MediaRef)
	if err != nil || full {
		return e.moveTo(s, AwaitingContactMethod)
	}
	return e.prompt(s), nil
}

func (e *Engine) onSkipPhotos(_ context.Context, s *session, ev Event) (Reply, error) {
	if ev.(Button).Token != TokenSkipPhotos {
		return e.reject(s, rejectStaleButton), nil
	}
	if !s.draft.HasContent() {
		return e.reject(s, rejectEmpty), nil
	}
	return e.moveTo(s, AwaitingContactMethod)
}

// Rides.

func (e *Engine) onRole(_ context.Context, s *session, ev Event) (Reply, error) {
	switch ev.(Button).Token {
	case TokenRoleDriver:
		s.draft.Category = listing.Driver
	case TokenRolePassenger:
		s.draft.Category = listing.Passenger
	default:
		return e.reject(s, rejectStaleButton), nil
	}
	return e.moveTo(s, AwaitingRoute)
}

func (e *Engine) onRoute(_ context.Context, s *session, ev Event) (Reply, error) {
	tok := ev.(Button).Token
	if tok == TokenRouteManual {
		return e.moveTo(s, AwaitingOrigin)
	}
	i, err := strconv.Atoi(strings.TrimPrefix(tok, TokenRoutePrefix))
	if !strings.HasPrefix(tok, TokenRoutePrefix) || err != nil || i < 0 || i >= len(e.cfg.Presets) {
		return e.reject(s, rejectStaleButton), nil
	}
	s.draft.Route = e.cfg.Presets[i]
	return e.moveTo(s, AwaitingDate)
}

func (e *Engine) onOrigin(_ context.Context, s *session, ev Event) (Reply, error) {
	v := strings.TrimSpace(ev.(Text).Body)
	if v == "" {
		return e.reject(s, rejectBlank), nil
	}
	s.draft.Route.Origin = v
	return e.moveTo(s, AwaitingDestination)
}

func (e *Engine) onDestination(_ context.Context, s *session, ev Event) (Reply, error) {
	v := strings.TrimSpace(ev.(Text).Body)
	if v == "" {
		return e.reject(s, rejectBlank), nil
	}
	s.draft.Route.Destination = v
	return e.moveTo(s, AwaitingDate)
}

func (e *Engine) onDate(_ context.Context, s *session, ev Event) (Reply, error) {
	tok := ev.(Button).Token
	if !strings.HasPrefix(tok, TokenDatePrefix) {
		return e.reject(s, rejectStaleButton), nil
	}
	date, err := time.ParseInLocation(dateLayout, strings.TrimPrefix(tok, TokenDatePrefix), e.cfg.Location)
	if err != nil {
		return e.reject(s, rejectStaleButton), nil
	}
	today := e.today()
	if date.Before(today) || !date.Before(today.AddDate(0, 0, e.cfg.DateDays)) {
		return e.reject(s, rejectStaleButton), nil
	}
	s.draft.Date = date.Format(dateLayout)
	return e.moveTo(s, AwaitingTime)
}

func (e *Engine) onTime(_ context.Context, s *session, ev Event) (Reply, error) {
	tok := ev.(Button).Token
	if tok == TokenTimeManual {
		return e.moveTo(s, AwaitingManualTime)
	}
	start, end, ok := parseSlotToken(tok)
	if !ok {
		return e.reject(s, rejectStaleButton), nil
	}
	date, err := time.ParseInLocation(dateLayout, s.draft.Date, e.cfg.Location)
	if err == nil && slotStarted(date, start, e.now()) {
		return e.reject(s, rejectPastSlot), nil
	}
	s.draft.Time = expiry.FormatSlot(start, end)
	s.draft.TimeManual = false
	return e.afterTime(s)
}

func (e *Engine) onManualTime(_ context.Context, s *session, ev Event) (Reply, error) {
	v := strings.TrimSpace(ev.(Text).Body)
	if v == "" {
		return e.reject(s, rejectBlankTime), nil
	}
	s.draft.Time = v
	s.draft.TimeManual = true
	return e.afterTime(s)
}

func (e *Engine) afterTime(s *session) (Reply, error) {
	if s.draft.IsDriver() {
		return e.moveTo(s, AwaitingPrice)
	}
	return e.moveTo(s, AwaitingSeats)
}

func (e *Engine) onPrice(_ context.Context, s *session, ev Event) (Reply, error) {
	switch tok := ev.(Button).Token; tok {
	case TokenPriceTicket:
		s.draft.Price = listing.Price{Ticket: true}
	case TokenPriceManual:
		return e.moveTo(s, AwaitingManualPrice)
	default:
		n, err := strconv.Atoi(strings.TrimPrefix(tok, TokenPricePrefix))
		if !strings.HasPrefix(tok, TokenPricePrefix) || err != nil || !e.presetPrice(n) {
			return e.reject(s, rejectStaleButton), nil
		}
		s.draft.Price = listing.Price{Amount: n}
	}
	return e.moveTo(s, AwaitingSeats)
}

func (e *Engine) presetPrice(n int) bool {
	for _, p := range e.cfg.Prices {
		if p == n {
			return true
		}
	}
	return false
}

func (e *Engine) onManualPrice(_ context.Context, s *session, ev Event) (Reply, error) {
	raw := strings.TrimSpace(ev.(Text).Body)
	n, err := listing.ParsePrice(raw)
	if err != nil {
		if raw == "" || phone.Digits(raw) != raw {
			return e.reject(s, rejectPriceDigits), nil
		}
		return e.reject(s, rejectPriceRange), nil
	}
	s.draft.Price = listing.Price{Amount: n}
	return e.moveTo(s, AwaitingSeats)
}

func (e *Engine) onSeats(_ context.Context, s *session, ev Event) (Reply, error) {
	tok := ev.(Button).Token
	n, err := strconv.Atoi(strings.TrimPrefix(tok, TokenSeatsPrefix))
	limit := maxRiderSeats
	if s.draft.IsDriver() {
		limit = maxDriverSeats
	}
	if !strings.HasPrefix(tok, TokenSeatsPrefix) || err != nil || n < 1 || n > limit {
		return e.reject(s, rejectStaleButton), nil
	}
	s.draft.Seats = n
	return e.moveTo(s, AwaitingComment)
}

func (e *Engine) onComment(_ context.Context, s *session, ev Event) (Reply, error) {
	s.draft.SetComment(ev.(Text).Body)
	return e.moveTo(s, AwaitingContactMethod)
}

func (e *Engine) onSkipComment(_ context.Context, s *session, ev Event) (Reply, error) {
	if ev.(Button).Token != TokenSkipComment {
		return e.reject(s, rejectStaleButton), nil
	}
	s.draft.Comment = ""
	return e.moveTo(s, AwaitingContactMethod)
}

// Shared tail.

func (e *Engine) onContactMethod(ctx context.Context, s *session, ev Event) (Reply, error) {
	switch ev.(Button).Token {
	case TokenContactHandle:
		if s.handle == "" {
			s.state = AwaitingPhone
			r := e.prompt(s)
			r.Prompt = msgNoHandle + "\n\n" + r.Prompt
			return r, nil
		}
		s.draft.Contact = listing.Contact{Mode: listing.ByHandle, Value: "@" + strings.TrimPrefix(s.handle, "@")}
	case TokenContactPhone:
		return e.moveTo(s, AwaitingPhone)
	case TokenContactSkip:
		s.draft.Contact = listing.Contact{}
	default:
		return e.reject(s, rejectStaleButton), nil
	}
	return e.afterContact(ctx, s)
}

func (e *Engine) onPhone(ctx context.Context, s *session, ev Event) (Reply, error) {
	p, err := phone.Normalize(ev.(Text).Body)
	if err != nil {
		return e.reject(s, rejectPhone), nil
	}
	s.draft.Contact = listing.Contact{Mode: listing.ByPhone, Value: p}
	return e.afterContact(ctx, s)
}

func (e *Engine) afterContact(ctx context.Context, s *session) (Reply, error) {
	if e.previewEnabled() {
		return e.moveTo(s, AwaitingPreview)
	}
	return e.finish(ctx, s)
}

func (e *Engine) onPreview(ctx context.Context, s *session, ev Event) (Reply, error) {
	switch ev.(Button).Token {
	case TokenPublish:
		return e.finish(ctx, s)
	case TokenEdit:
		e.reset(s, s.draft.ChatID)
		r := e.prompt(s)
		r.Prompt = msgRestart + "\n\n" + r.Prompt
		return r, nil
	case TokenDiscard:
		e.end(s)
		s.state = Idle
		return Reply{Prompt: msgDiscarded, Ended: true}, nil
	}
	return e.reject(s, rejectStaleButton), nil
}

// parseSlotToken reads "time_HH:00_HH:00" and accepts only hourly slots.
func parseSlotToken(tok string) (start, end int, ok bool) {
	rest, found := strings.CutPrefix(tok, TokenTimePrefix)
	if !found {
		return 0, 0, false
	}
	from, to, found := strings.Cut(rest, "_")
	if !found {
		return 0, 0, false
	}
	start, end, ok = expiry.ParseSlot(from + " - " + to)
	if !ok || !expiry.IsHourly(start, end) || start < firstSlotHour {
		return 0, 0, false
	}
	return start, end, true
}

func slotStarted(date time.Time, hour int, now time.Time) bool {
	start := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, date.Location())
	return !now.Before(start)
}
