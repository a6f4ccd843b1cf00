package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskbot/internal/conversation"
	"taskbot/internal/models"
)

// Note: tgbotapi.BotAPI talks to Telegram directly, so tests swap in a
// recording sender and never touch the network

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeSink struct {
	events []conversation.Event
}

func (s *fakeSink) Dispatch(ev conversation.Event) bool {
	s.events = append(s.events, ev)
	return true
}

func newTestBot(allowed ...int64) (*Bot, *fakeSender, *fakeSink) {
	sender := &fakeSender{}
	sink := &fakeSink{}
	allowedUsers := make(map[int64]bool)
	for _, id := range allowed {
		allowedUsers[id] = true
	}
	return &Bot{
		api:          nil, // Not needed for translation tests
		sender:       sender,
		sink:         sink,
		allowedUsers: allowedUsers,
		logger:       zap.NewNop(),
	}, sender, sink
}

func command(text string) *tgbotapi.Message {
	name := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 123, FirstName: "Ivan", UserName: "ivan"},
		Chat:     &tgbotapi.Chat{ID: 456},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func message() *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 123, FirstName: "Ivan"},
		Chat: &tgbotapi.Chat{ID: 456},
	}
}

func TestToEvent_Commands(t *testing.T) {
	tests := []struct {
		text string
		want conversation.EventKind
	}{
		{"/start", conversation.EventStart},
		{"/help", conversation.EventHelp},
		{"/cancel", conversation.EventCancel},
		{"/confirm", conversation.EventConfirm},
		{"/undo", conversation.EventRemoveLast},
		{"/last", conversation.EventHistory},
		{"/menu", conversation.EventMenu},
		{"/unknown", conversation.EventHelp},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ev, ok := toEvent(tgbotapi.Update{Message: command(tt.text)})
			if !ok {
				t.Fatal("Expected an event")
			}
			if ev.Kind != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, ev.Kind)
			}
			if ev.ConversationID != 456 {
				t.Errorf("Expected conversation 456, got %d", ev.ConversationID)
			}
			if ev.Author.UserID != 123 || ev.Author.UserName != "ivan" {
				t.Errorf("Unexpected author %+v", ev.Author)
			}
		})
	}
}

func TestToEvent_Callbacks(t *testing.T) {
	tests := []struct {
		data     string
		want     conversation.EventKind
		category string
	}{
		{"cat:q2", conversation.EventCategory, "q2"},
		{"act:confirm", conversation.EventConfirm, ""},
		{"act:cancel", conversation.EventCancel, ""},
		{"act:remove_last", conversation.EventRemoveLast, ""},
		{"act:menu", conversation.EventMenu, ""},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			ev, ok := toEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
				ID:      "cb",
				From:    &tgbotapi.User{ID: 123},
				Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 456}},
				Data:    tt.data,
			}})
			if !ok {
				t.Fatal("Expected an event")
			}
			if ev.Kind != tt.want || ev.CategoryKey != tt.category {
				t.Errorf("Expected %s/%q, got %s/%q", tt.want, tt.category, ev.Kind, ev.CategoryKey)
			}
			if ev.ConversationID != 456 {
				t.Errorf("Expected conversation 456, got %d", ev.ConversationID)
			}
		})
	}

	if _, ok := toEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 1}, Data: "stale:thing"}}); ok {
		t.Error("Unknown callback data must be ignored")
	}
}

func TestToEvent_Text(t *testing.T) {
	msg := message()
	msg.Text = "Printer is broken"

	ev, ok := toEvent(tgbotapi.Update{Message: msg})
	if !ok || ev.Kind != conversation.EventText || ev.Text != "Printer is broken" {
		t.Fatalf("Unexpected event %+v", ev)
	}

	msg.Text = "   "
	if _, ok := toEvent(tgbotapi.Update{Message: msg}); ok {
		t.Error("Blank text must be ignored")
	}
}

func TestToEvent_Files(t *testing.T) {
	tests := []struct {
		name      string
		configure func(m *tgbotapi.Message)
		media     models.MediaKind
		fileID    string
		fileName  string
		size      int64
	}{
		{
			name: "document",
			configure: func(m *tgbotapi.Message) {
				m.Document = &tgbotapi.Document{FileID: "doc", FileUniqueID: "u1", FileName: "report.pdf", FileSize: 100}
			},
			media: models.MediaDocument, fileID: "doc", fileName: "report.pdf", size: 100,
		},
		{
			name: "unnamed document",
			configure: func(m *tgbotapi.Message) {
				m.Document = &tgbotapi.Document{FileID: "doc", FileUniqueID: "u1"}
			},
			media: models.MediaDocument, fileID: "doc", fileName: "document_u1",
		},
		{
			name: "largest photo",
			configure: func(m *tgbotapi.Message) {
				m.Photo = []tgbotapi.PhotoSize{
					{FileID: "small", FileUniqueID: "s", Width: 90, Height: 90, FileSize: 10},
					{FileID: "big", FileUniqueID: "b", Width: 1280, Height: 960, FileSize: 300},
					{FileID: "mid", FileUniqueID: "m", Width: 320, Height: 240, FileSize: 50},
				}
			},
			media: models.MediaPhoto, fileID: "big", fileName: "photo_b.jpg", size: 300,
		},
		{
			name: "video",
			configure: func(m *tgbotapi.Message) {
				m.Video = &tgbotapi.Video{FileID: "vid", FileUniqueID: "v"}
			},
			media: models.MediaVideo, fileID: "vid", fileName: "video_v.mp4",
		},
		{
			name: "audio",
			configure: func(m *tgbotapi.Message) {
				m.Audio = &tgbotapi.Audio{FileID: "aud", FileUniqueID: "a"}
			},
			media: models.MediaAudio, fileID: "aud", fileName: "audio_a.mp3",
		},
		{
			name: "voice",
			configure: func(m *tgbotapi.Message) {
				m.Voice = &tgbotapi.Voice{FileID: "voc", FileUniqueID: "o", FileSize: 7}
			},
			media: models.MediaVoice, fileID: "voc", fileName: "voice_o.ogg", size: 7,
		},
		{
			name: "sticker",
			configure: func(m *tgbotapi.Message) {
				m.Sticker = &tgbotapi.Sticker{FileID: "st", FileUniqueID: "k"}
			},
			media: models.MediaSticker, fileID: "st", fileName: "sticker_k.webp",
		},
		{
			name: "animated sticker",
			configure: func(m *tgbotapi.Message) {
				m.Sticker = &tgbotapi.Sticker{FileID: "st", FileUniqueID: "k", IsAnimated: true}
			},
			media: models.MediaSticker, fileID: "st", fileName: "sticker_k.tgs",
		},
		{
			name: "location",
			configure: func(m *tgbotapi.Message) {
				m.Location = &tgbotapi.Location{Latitude: 1, Longitude: 2}
			},
			media: models.MediaUnsupported, fileName: "location",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := message()
			msg.Caption = "see attached"
			tt.configure(msg)

			ev, ok := toEvent(tgbotapi.Update{Message: msg})
			if !ok {
				t.Fatal("Expected an event")
			}
			if ev.Kind != conversation.EventFile {
				t.Fatalf("Expected file event, got %s", ev.Kind)
			}
			if ev.Text != "see attached" {
				t.Errorf("Expected caption as text, got %q", ev.Text)
			}
			f := ev.File
			if f.Media != tt.media || f.FileID != tt.fileID || f.Name != tt.fileName || f.Size != tt.size {
				t.Errorf("Unexpected file ref %+v", f)
			}
			if f.Kind != models.RefRemote {
				t.Errorf("Expected remote ref, got %s", f.Kind)
			}
		})
	}
}

func TestHandleUpdate_Allowlist(t *testing.T) {
	bot, sender, sink := newTestBot(999)

	bot.HandleUpdate(tgbotapi.Update{Message: command("/start")})

	if len(sink.events) != 0 {
		t.Errorf("Expected no dispatched events, got %d", len(sink.events))
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected a rejection message, got %d messages", len(sender.sent))
	}

	bot.allowedUsers[123] = true
	bot.HandleUpdate(tgbotapi.Update{Message: command("/start")})
	if len(sink.events) != 1 || sink.events[0].Kind != conversation.EventStart {
		t.Errorf("Expected start event, got %+v", sink.events)
	}
}

func TestHandleUpdate_EmptyAllowlistAdmitsEveryone(t *testing.T) {
	bot, _, sink := newTestBot()
	bot.HandleUpdate(tgbotapi.Update{Message: command("/help")})
	if len(sink.events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(sink.events))
	}
}

func TestHandleUpdate_AnswersCallbacks(t *testing.T) {
	bot, sender, sink := newTestBot()
	bot.HandleUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 123},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 456}},
		Data:    "act:confirm",
	}})

	if len(sender.requests) != 1 {
		t.Errorf("Expected callback answer, got %d requests", len(sender.requests))
	}
	if len(sink.events) != 1 || sink.events[0].Kind != conversation.EventConfirm {
		t.Errorf("Expected confirm event, got %+v", sink.events)
	}
}

func TestReply_RendersInlineKeyboard(t *testing.T) {
	bot, sender, _ := newTestBot()

	err := bot.Reply(context.Background(), 456, conversation.Reply{
		Text: "Выберите категорию:",
		Buttons: [][]conversation.Button{
			{{Label: "Вопрос 1", Data: "cat:q1"}, {Label: "Вопрос 2", Data: "cat:q2"}},
			{{Label: "Другое", Data: "cat:other"}},
		},
	})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("Expected MessageConfig, got %T", sender.sent[0])
	}
	if msg.ChatID != 456 || msg.Text != "Выберите категорию:" {
		t.Errorf("Unexpected message %+v", msg)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("Expected inline keyboard, got %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("Unexpected keyboard layout %+v", markup.InlineKeyboard)
	}
	if data := *markup.InlineKeyboard[1][0].CallbackData; data != "cat:other" {
		t.Errorf("Expected cat:other, got %s", data)
	}
}

func TestHTTPServer_Webhook(t *testing.T) {
	bot, _, sink := newTestBot()
	mux := http.NewServeMux()
	NewHTTPServer(bot, "s3cret", true).RegisterRoutes(mux)

	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":123,"first_name":"Ivan"},"chat":{"id":456,"type":"private"},"date":0,"text":"hello"}}`

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"wrong method", http.MethodGet, "/telegram-webhook?secret=s3cret", http.StatusMethodNotAllowed},
		{"missing secret", http.MethodPost, "/telegram-webhook", http.StatusForbidden},
		{"wrong secret", http.MethodPost, "/telegram-webhook?secret=nope", http.StatusForbidden},
		{"valid", http.MethodPost, "/telegram-webhook?secret=s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}

	if len(sink.events) != 1 || sink.events[0].Text != "hello" {
		t.Errorf("Expected exactly one dispatched text event, got %+v", sink.events)
	}

	req := httptest.NewRequest(http.MethodPost, "/telegram-webhook?secret=s3cret", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHTTPServer_Status(t *testing.T) {
	bot, _, _ := newTestBot()
	mux := http.NewServeMux()
	NewHTTPServer(bot, "", false).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("Unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), "mode: polling") {
		t.Errorf("Unexpected index response %q", rec.Body.String())
	}
}
