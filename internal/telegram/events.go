package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/matheus3301/doska/internal/conversation"
)

// Commands understood in private chats.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
	CommandInfo   = "info"
)

// Inbound is one update from a private chat, reduced to what the
// dispatcher needs.
type Inbound struct {
	UpdateID   int
	UserID     int64
	ChatID     int64
	Handle     string
	Command    string
	Event      conversation.Event
	CallbackID string
}

// Parse converts an update. It reports false for updates the bot does not
// handle: channel posts, group chats and unsupported message kinds.
func Parse(u tgbotapi.Update) (Inbound, bool) {
	in := Inbound{UpdateID: u.UpdateID}

	if cq := u.CallbackQuery; cq != nil {
		if cq.From == nil {
			return in, false
		}
		in.UserID = cq.From.ID
		in.Handle = cq.From.UserName
		in.ChatID = cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			if !cq.Message.Chat.IsPrivate() {
				return in, false
			}
			in.ChatID = cq.Message.Chat.ID
		}
		in.CallbackID = cq.ID
		in.Event = conversation.Button{Token: cq.Data}
		return in, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return in, false
	}
	in.UserID = msg.From.ID
	in.Handle = msg.From.UserName
	in.ChatID = msg.Chat.ID

	switch {
	case msg.IsCommand():
		in.Command = msg.Command()
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		in.Event = conversation.Photo{MediaRef: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Text != "":
		in.Event = conversation.Text{Body: msg.Text}
	default:
		return in, false
	}
	return in, true
}
