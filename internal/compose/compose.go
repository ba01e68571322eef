// Package compose renders a finalized draft into the HTML body of a feed post.
package compose

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/matheus3301/doska/internal/listing"
)

const (
	Separator      = "=========="
	NotSpecified   = "Не указан"
	TicketPrice    = "По цене билета"
	spoilerOpen    = "<tg-spoiler>"
	spoilerClose   = "</tg-spoiler>"
	zeroWidthSpace = "\u200b"
)

// Options carries the instance-level values the post needs.
type Options struct {
	BotHandle string // without the leading @
}

// Post is a rendered listing. Caption goes on the first photo when Photos is
// not empty, otherwise it is sent as a standalone text message.
type Post struct {
	Caption string
	Photos  []string
}

// HasPhotos reports whether the post is sent as a media group.
func (p Post) HasPhotos() bool { return len(p.Photos) > 0 }

type header struct {
	title string
	item  string
}

var headers = map[listing.Category]header{
	listing.Sell:      {"🔴 Продам", "🛍️"},
	listing.Buy:       {"🟢 Куплю", "📥"},
	listing.Exchange:  {"🔵 Обменяю", "🔄"},
	listing.Service:   {"🟡 Услуги", "🔧"},
	listing.Misc:      {"🟣 Разное", "📦"},
	listing.Driver:    {"🚗 <b>Водитель</b>", ""},
	listing.Passenger: {"👤 <b>Пассажир</b>", ""},
}

// Compose renders d. The section order is fixed: header, body, contact,
// separator, footer.
func Compose(d *listing.Draft, opts Options) Post {
	h, ok := headers[d.Category]
	if !ok {
		h = header{"❓ Объявление", "❓"}
	}

	lines := []string{zeroWidthSpace, h.title}
	if body := bodyLines(d, h); len(body) > 0 {
		lines = append(lines, "")
		lines = append(lines, body...)
	}
	lines = append(lines, "", "📞 Контакт: "+Spoiler(contactText(d.Contact)))
	lines = append(lines, "", Separator, footer(d.Variant, opts.BotHandle))

	photos := d.Photos
	if len(photos) > listing.MaxPhotos {
		photos = photos[:listing.MaxPhotos]
	}
	return Post{
		Caption: strings.Join(lines, "\n"),
		Photos:  append([]string(nil), photos...),
	}
}

// Preview renders the post the way the author sees it before confirming.
func Preview(d *listing.Draft, opts Options) string {
	return Compose(d, opts).Caption
}

// Spoiler wraps already-escaped text in the platform's concealment marker.
func Spoiler(s string) string {
	return spoilerOpen + s + spoilerClose
}

func bodyLines(d *listing.Draft, h header) []string {
	if d.Variant != listing.Rides {
		body := strings.TrimSpace(d.Body)
		if body == "" {
			return nil
		}
		return []string{h.item + " " + html.EscapeString(body)}
	}

	lines := []string{
		fmt.Sprintf("📍 %s — %s", html.EscapeString(d.Route.Origin), html.EscapeString(d.Route.Destination)),
		"📅 " + formatDate(d.Date),
		"🕗 " + html.EscapeString(d.Time),
	}
	if d.IsDriver() {
		lines = append(lines, fmt.Sprintf("👤 Мест: %d", d.Seats))
		if d.Price.Ticket {
			lines = append(lines, "💰 Цена: "+TicketPrice)
		} else {
			lines = append(lines, fmt.Sprintf("💰 Цена: %d ₽", d.Price.Amount))
		}
	} else {
		lines = append(lines, fmt.Sprintf("👤 Нужно мест: %d", d.Seats))
	}
	if d.Comment != "" {
		lines = append(lines, "💬 "+html.EscapeString(d.Comment))
	}
	return lines
}

func contactText(c listing.Contact) string {
	if c.Mode == listing.Unspecified || c.Value == "" {
		return NotSpecified
	}
	return html.EscapeString(c.Value)
}

func footer(v listing.Variant, handle string) string {
	handle = strings.TrimPrefix(handle, "@")
	if v == listing.Rides {
		return "📌 Создать поездку — @" + handle
	}
	return "📌 Разместите свое объявление — @" + handle
}

func formatDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return html.EscapeString(iso)
	}
	return t.Format("02.01.2006")
}
