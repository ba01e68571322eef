package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/matheus3301/doska/internal/conversation"
	"github.com/matheus3301/doska/internal/status"
	"go.uber.org/zap"
)

// fakeAPI records outbound calls and replays scripted update batches.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	requests []tgbotapi.Chattable
	err      error
	block    chan struct{}
	nextID   int

	batches   [][]tgbotapi.Update
	pollErrs  []error
	offsets   []int
	exhausted chan struct{}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.groups = append(f.groups, cfg)
	out := make([]tgbotapi.Message, len(cfg.Media))
	for i := range out {
		f.nextID++
		out[i] = tgbotapi.Message{MessageID: f.nextID}
	}
	return out, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, cfg.Offset)
	if len(f.pollErrs) > 0 {
		err := f.pollErrs[0]
		f.pollErrs = f.pollErrs[1:]
		return nil, err
	}
	if len(f.batches) == 0 {
		if f.exhausted != nil {
			close(f.exhausted)
			f.exhausted = nil
		}
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func TestSendTextUsesHTML(t *testing.T) {
	api := &fakeAPI{}
	a := newAdapter(api, Options{}, zap.NewNop())

	id, err := a.SendText(context.Background(), -100, "<b>x</b>", true)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	msg := api.sent[0].(tgbotapi.MessageConfig)
	if msg.ParseMode != tgbotapi.ModeHTML || msg.ChatID != -100 {
		t.Errorf("message = %+v", msg)
	}
}

func TestSendPhotoGroup(t *testing.T) {
	t.Run("single photo is a captioned photo", func(t *testing.T) {
		api := &fakeAPI{}
		a := newAdapter(api, Options{}, zap.NewNop())
		ids, err := a.SendPhotoGroup(context.Background(), -100, []string{"f1"}, "cap")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 1 || len(api.groups) != 0 {
			t.Fatalf("ids = %v, groups = %d", ids, len(api.groups))
		}
		photo := api.sent[0].(tgbotapi.PhotoConfig)
		if photo.Caption != "cap" || photo.ParseMode != tgbotapi.ModeHTML {
			t.Errorf("photo = %+v", photo)
		}
	})

	t.Run("caption only on first item", func(t *testing.T) {
		api := &fakeAPI{}
		a := newAdapter(api, Options{}, zap.NewNop())
		ids, err := a.SendPhotoGroup(context.Background(), -100, []string{"f1", "f2", "f3"}, "cap")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 3 {
			t.Fatalf("ids = %v", ids)
		}
		media := api.groups[0].Media
		first := media[0].(tgbotapi.InputMediaPhoto)
		second := media[1].(tgbotapi.InputMediaPhoto)
		if first.Caption != "cap" || second.Caption != "" {
			t.Errorf("captions = %q, %q", first.Caption, second.Caption)
		}
	})

	t.Run("empty", func(t *testing.T) {
		a := newAdapter(&fakeAPI{}, Options{}, zap.NewNop())
		if _, err := a.SendPhotoGroup(context.Background(), 1, nil, ""); !errors.Is(err, ErrEmptyGroup) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestCallHonorsContext(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	defer close(api.block)
	a := newAdapter(api, Options{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.SendText(ctx, 1, "x", false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestDeleteMessageWrapsError(t *testing.T) {
	api := &fakeAPI{err: &tgbotapi.Error{Code: 400, Message: "Bad Request: message to delete not found"}}
	a := newAdapter(api, Options{}, zap.NewNop())

	err := a.DeleteMessage(context.Background(), 1, 5)
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Errorf("err = %v", err)
	}
}

func TestReplyRendersKeyboard(t *testing.T) {
	api := &fakeAPI{}
	a := newAdapter(api, Options{}, zap.NewNop())

	r := conversation.Reply{
		Prompt:   "pick",
		Keyboard: [][]conversation.Key{{{Label: "A", Token: "a"}, {Label: "B", Token: "b"}}, {{Label: "C", Token: "c"}}},
	}
	if err := a.Reply(context.Background(), 7, r); err != nil {
		t.Fatal(err)
	}
	msg := api.sent[0].(tgbotapi.MessageConfig)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup = %T", msg.ReplyMarkup)
	}
	if len(kb.InlineKeyboard) != 2 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard = %+v", kb.InlineKeyboard)
	}
	if d := kb.InlineKeyboard[1][0].CallbackData; d == nil || *d != "c" {
		t.Errorf("callback data = %v", d)
	}

	if err := a.Reply(context.Background(), 7, conversation.Reply{Ignored: true}); err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 1 {
		t.Error("ignored reply was sent")
	}
}

type memOffsets struct {
	mu    sync.Mutex
	value int
}

func (m *memOffsets) UpdateOffset(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *memOffsets) SaveUpdateOffset(_ context.Context, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	return nil
}

func TestPollerDeliversAndPersistsOffset(t *testing.T) {
	api := &fakeAPI{
		pollErrs: []error{errors.New("connection reset")},
		batches: [][]tgbotapi.Update{{
			privateText(10, 1, "ivan", "привет"),
			{UpdateID: 11, ChannelPost: &tgbotapi.Message{Text: "feed"}},
			privateText(12, 2, "", "/start"),
		}},
		exhausted: make(chan struct{}),
	}
	offsets := &memOffsets{value: 10}
	machine := status.NewMachine(nil)
	if err := machine.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}
	a := newAdapter(api, Options{}, zap.NewNop())
	p := NewPoller(a, offsets, machine, zap.NewNop(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	var got []Inbound
	done := make(chan struct{})
	exhausted := api.exhausted
	go func() {
		defer close(done)
		p.Run(ctx, func(in Inbound) { got = append(got, in) })
	}()

	select {
	case <-exhausted:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not drain the batches")
	}
	cancel()
	<-done

	if len(got) != 2 {
		t.Fatalf("delivered %d updates, want 2", len(got))
	}
	if got[1].Command != CommandStart {
		t.Errorf("second update = %+v", got[1])
	}
	if offsets.value != 13 {
		t.Errorf("saved offset = %d, want 13", offsets.value)
	}
	if api.offsets[0] != 10 {
		t.Errorf("first poll offset = %d, want stored 10", api.offsets[0])
	}
	if h, ok := a.Handle(1); !ok || h != "ivan" {
		t.Errorf("Handle(1) = %q, %v", h, ok)
	}
	if _, ok := a.Handle(2); ok {
		t.Error("user without handle cached")
	}
	if machine.Current() != status.Polling {
		t.Errorf("state = %s, want POLLING", machine.Current())
	}
}

func privateText(updateID int, userID int64, handle, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: handle},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
		Text: text,
	}
	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{UpdateID: updateID, Message: msg}
}
