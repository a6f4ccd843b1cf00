package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskbot/internal/conversation"
	"taskbot/internal/models"
)

// HandleUpdate checks the sender against the allowlist and dispatches the update
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.answerCallback(update.CallbackQuery.ID)
	}

	from := sentFrom(update)
	if from == nil {
		return
	}
	if !b.isAllowed(from.ID) {
		b.logger.Warn("Unauthorized access attempt",
			zap.Int64("user_id", from.ID),
			zap.String("username", from.UserName),
			zap.String("first_name", from.FirstName),
			zap.String("last_name", from.LastName),
		)
		if update.Message != nil {
			b.sendText(update.Message.Chat.ID, "Извините, у вас нет доступа к этому боту.")
		}
		return
	}

	ev, ok := toEvent(update)
	if !ok {
		return
	}
	if b.sink == nil || !b.sink.Dispatch(ev) {
		b.logger.Warn("Event dropped", zap.Int64("conversation_id", ev.ConversationID), zap.Stringer("event", ev.Kind))
	}
}

func sentFrom(update tgbotapi.Update) *tgbotapi.User {
	switch {
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From
	}
	return nil
}

// toEvent translates a Telegram update into a conversation event
func toEvent(update tgbotapi.Update) (conversation.Event, bool) {
	if q := update.CallbackQuery; q != nil {
		return callbackEvent(q)
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return conversation.Event{}, false
	}
	ev := conversation.Event{ConversationID: msg.Chat.ID, Author: author(msg.From)}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			ev.Kind = conversation.EventStart
		case "cancel":
			ev.Kind = conversation.EventCancel
		case "confirm":
			ev.Kind = conversation.EventConfirm
		case "undo":
			ev.Kind = conversation.EventRemoveLast
		case "last":
			ev.Kind = conversation.EventHistory
		case "menu":
			ev.Kind = conversation.EventMenu
		default:
			ev.Kind = conversation.EventHelp
		}
		return ev, true
	}

	if ref, ok := fileRef(msg); ok {
		ev.Kind = conversation.EventFile
		ev.File = ref
		ev.Text = msg.Caption
		return ev, true
	}

	if strings.TrimSpace(msg.Text) != "" {
		ev.Kind = conversation.EventText
		ev.Text = msg.Text
		return ev, true
	}
	return conversation.Event{}, false
}

func callbackEvent(q *tgbotapi.CallbackQuery) (conversation.Event, bool) {
	if q.From == nil {
		return conversation.Event{}, false
	}
	ev := conversation.Event{ConversationID: q.From.ID, Author: author(q.From)}
	if q.Message != nil && q.Message.Chat != nil {
		ev.ConversationID = q.Message.Chat.ID
	}

	switch data := q.Data; {
	case strings.HasPrefix(data, conversation.CallbackCategoryPrefix):
		ev.Kind = conversation.EventCategory
		ev.CategoryKey = strings.TrimPrefix(data, conversation.CallbackCategoryPrefix)
	case data == conversation.CallbackConfirm:
		ev.Kind = conversation.EventConfirm
	case data == conversation.CallbackCancel:
		ev.Kind = conversation.EventCancel
	case data == conversation.CallbackRemoveLast:
		ev.Kind = conversation.EventRemoveLast
	case data == conversation.CallbackMenu:
		ev.Kind = conversation.EventMenu
	default:
		return conversation.Event{}, false
	}
	return ev, true
}

func author(u *tgbotapi.User) models.Author {
	if u == nil {
		return models.Author{}
	}
	return models.Author{UserID: u.ID, UserName: u.UserName, FirstName: u.FirstName, LastName: u.LastName}
}

// fileRef extracts the attachment of a message. Content kinds that cannot
// become a task attachment yield a ref with MediaUnsupported.
func fileRef(msg *tgbotapi.Message) (models.FileRef, bool) {
	ref := models.FileRef{Kind: models.RefRemote}

	switch {
	case msg.Document != nil:
		d := msg.Document
		ref.Media, ref.FileID, ref.UniqueID, ref.Size = models.MediaDocument, d.FileID, d.FileUniqueID, int64(d.FileSize)
		ref.Name = d.FileName
		if ref.Name == "" {
			ref.Name = "document_" + d.FileUniqueID
		}
	case len(msg.Photo) > 0:
		p := largestPhoto(msg.Photo)
		ref.Media, ref.FileID, ref.UniqueID, ref.Size = models.MediaPhoto, p.FileID, p.FileUniqueID, int64(p.FileSize)
		ref.Name = fmt.Sprintf("photo_%s.jpg", p.FileUniqueID)
	case msg.Video != nil:
		v := msg.Video
		ref.Media, ref.FileID, ref.UniqueID, ref.Size = models.MediaVideo, v.FileID, v.FileUniqueID, int64(v.FileSize)
		ref.Name = v.FileName
		if ref.Name == "" {
			ref.Name = fmt.Sprintf("video_%s.mp4", v.FileUniqueID)
		}
	case msg.Audio != nil:
		a := msg.Audio
		ref.Media, ref.FileID, ref.UniqueID, ref.Size = models.MediaAudio, a.FileID, a.FileUniqueID, int64(a.FileSize)
		ref.Name = fmt.Sprintf("audio_%s.mp3", a.FileUniqueID)
	case msg.Voice != nil:
		v := msg.Voice
		ref.Media, ref.FileID, ref.UniqueID, ref.Size = models.MediaVoice, v.FileID, v.FileUniqueID, int64(v.FileSize)
		ref.Name = fmt.Sprintf("voice_%s.ogg", v.FileUniqueID)
	case msg.Sticker != nil:
		s := msg.Sticker
		ref.Media, ref.FileID, ref.UniqueID, ref.Size = models.MediaSticker, s.FileID, s.FileUniqueID, int64(s.FileSize)
		ext := ".webp"
		if s.IsAnimated {
			ext = ".tgs"
		}
		ref.Name = "sticker_" + s.FileUniqueID + ext
	case msg.VideoNote != nil:
		ref.Media, ref.Name = models.MediaUnsupported, "video_note"
	case msg.Location != nil, msg.Venue != nil:
		ref.Media, ref.Name = models.MediaUnsupported, "location"
	case msg.Contact != nil:
		ref.Media, ref.Name = models.MediaUnsupported, "contact"
	case msg.Poll != nil:
		ref.Media, ref.Name = models.MediaUnsupported, "poll"
	default:
		return models.FileRef{}, false
	}
	return ref, true
}

// largestPhoto picks the highest resolution variant of a photo
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}
