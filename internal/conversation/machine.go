package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskbot/internal/catalog"
	"taskbot/internal/drafts"
	"taskbot/internal/fetcher"
	"taskbot/internal/models"
	"taskbot/internal/submission"
)

const historyLimit = 5

// Submitter turns a confirmed draft into a task
type Submitter interface {
	Submit(ctx context.Context, d *models.Draft) (*submission.Result, error)
}

// Prefetcher downloads a file as soon as it is accepted
type Prefetcher interface {
	Fetch(ctx context.Context, ref models.FileRef) (models.FileRef, error)
}

// History lists past submissions of a conversation
type History interface {
	RecentSubmissions(ctx context.Context, conversationID int64, limit int) ([]models.Submission, error)
}

// Options configures a Machine
type Options struct {
	MaxFileSize int64
	// Prefetch, when set, downloads files on arrival instead of on confirm
	Prefetch Prefetcher
	// History, when set, backs the history command
	History History
}

// Machine drives the draft of each conversation from chat events.
// Events of one conversation must be delivered one at a time, in order.
type Machine struct {
	drafts    *drafts.Store
	catalog   *catalog.Catalog
	replier   Replier
	submitter Submitter
	opts      Options
	logger    *zap.Logger
}

// NewMachine creates a conversation state machine
func NewMachine(store *drafts.Store, cat *catalog.Catalog, replier Replier, submitter Submitter, opts Options, logger *zap.Logger) *Machine {
	return &Machine{
		drafts:    store,
		catalog:   cat,
		replier:   replier,
		submitter: submitter,
		opts:      opts,
		logger:    logger.Named("conversation"),
	}
}

// State reports the current state of a conversation
func (m *Machine) State(conversationID int64) State {
	d, _ := m.drafts.Get(conversationID)
	return stateOf(d)
}

// Handle applies one event to its conversation
func (m *Machine) Handle(ctx context.Context, ev Event) {
	m.logger.Debug("Handling event",
		zap.Int64("conversation_id", ev.ConversationID),
		zap.Stringer("event", ev.Kind),
		zap.Stringer("state", m.State(ev.ConversationID)),
	)

	switch ev.Kind {
	case EventStart:
		m.handleStart(ctx, ev)
	case EventHelp:
		m.reply(ctx, ev.ConversationID, Reply{Text: helpText})
	case EventCategory:
		m.handleCategory(ctx, ev)
	case EventText:
		m.handleText(ctx, ev)
	case EventFile:
		m.handleFile(ctx, ev)
	case EventRemoveLast:
		m.handleRemoveLast(ctx, ev)
	case EventConfirm:
		m.handleConfirm(ctx, ev)
	case EventCancel, EventMenu:
		m.handleCancel(ctx, ev)
	case EventHistory:
		m.handleHistory(ctx, ev)
	default:
		m.logger.Warn("Unknown event kind", zap.Int("kind", int(ev.Kind)))
	}
}

func (m *Machine) handleStart(ctx context.Context, ev Event) {
	m.replace(models.NewDraft(ev.ConversationID, ev.Author, models.Category{}))
	m.reply(ctx, ev.ConversationID, Reply{Text: welcomeText, Buttons: m.categoryMenu()})
}

func (m *Machine) handleCategory(ctx context.Context, ev Event) {
	cat, ok := m.catalog.Lookup(ev.CategoryKey)
	if !ok {
		m.reply(ctx, ev.ConversationID, Reply{Text: "Неизвестная категория. Выберите из списка:", Buttons: m.categoryMenu()})
		return
	}
	m.selectCategory(ctx, ev, cat)
}

// selectCategory fills the category of an uncategorized draft in place,
// and starts a fresh draft otherwise
func (m *Machine) selectCategory(ctx context.Context, ev Event, cat models.Category) {
	err := m.drafts.Update(ev.ConversationID, func(d *models.Draft) error {
		if !d.Category.IsZero() {
			return errCategorySet
		}
		d.Category = cat
		return nil
	})
	if err != nil {
		m.replace(models.NewDraft(ev.ConversationID, ev.Author, cat))
	}

	d, _ := m.drafts.Get(ev.ConversationID)
	text := fmt.Sprintf("Категория: %s.\n\nОпишите задачу текстом и/или приложите файлы "+
		"(документ, фото, видео, аудио, голосовое, стикер). Когда всё готово, нажмите «Отправить».", cat.Title)
	if d != nil && (len(d.Lines) > 0 || len(d.Files) > 0) {
		text += "\n\n" + summary(d)
	}
	m.reply(ctx, ev.ConversationID, Reply{Text: text, Buttons: draftActions()})
}

var errCategorySet = errors.New("category already set")

func (m *Machine) handleText(ctx context.Context, ev Event) {
	d, ok := m.drafts.Get(ev.ConversationID)
	state := stateOf(d)

	if state != StateCollecting {
		if cat, found := m.catalog.ByTitle(ev.Text); found {
			m.selectCategory(ctx, ev, cat)
			return
		}
	}
	if !ok {
		m.reply(ctx, ev.ConversationID, Reply{Text: "Сначала выберите категорию:", Buttons: m.categoryMenu()})
		return
	}

	if err := m.drafts.Update(ev.ConversationID, func(d *models.Draft) error {
		d.AppendText(ev.Text)
		return nil
	}); err != nil {
		m.expired(ctx, ev.ConversationID)
		return
	}

	if state == StateAwaitingCategory {
		m.reply(ctx, ev.ConversationID, Reply{Text: "Текст сохранён. Выберите категорию:", Buttons: m.categoryMenu()})
		return
	}
	m.reply(ctx, ev.ConversationID, Reply{Text: "✏️ Текст добавлен.", Buttons: draftActions()})
}

func (m *Machine) handleFile(ctx context.Context, ev Event) {
	d, ok := m.drafts.Get(ev.ConversationID)
	if !ok {
		m.reply(ctx, ev.ConversationID, Reply{Text: "Сначала выберите категорию:", Buttons: m.categoryMenu()})
		return
	}

	ref := ev.File
	if !ref.Media.Supported() {
		m.reply(ctx, ev.ConversationID, Reply{Text: "⚠️ Этот тип вложений не поддерживается. " +
			"Можно прикрепить документ, фото, видео, аудио, голосовое сообщение или стикер."})
		return
	}
	if m.opts.MaxFileSize > 0 && ref.Size > m.opts.MaxFileSize {
		m.reply(ctx, ev.ConversationID, Reply{Text: tooLargeText(m.opts.MaxFileSize)})
		return
	}

	if m.opts.Prefetch != nil {
		fetched, err := m.opts.Prefetch.Fetch(ctx, ref)
		if err != nil {
			m.logger.Warn("Failed to download file",
				zap.Int64("conversation_id", ev.ConversationID),
				zap.String("file_id", ref.FileID),
				zap.Error(err),
			)
			if errors.Is(err, fetcher.ErrTooLarge) {
				m.reply(ctx, ev.ConversationID, Reply{Text: tooLargeText(m.opts.MaxFileSize)})
			} else {
				m.reply(ctx, ev.ConversationID, Reply{Text: "❌ Не удалось загрузить файл, попробуйте ещё раз."})
			}
			return
		}
		ref = fetched
	}

	count := 0
	err := m.drafts.Update(ev.ConversationID, func(d *models.Draft) error {
		d.AddFile(ref)
		d.AppendText(ev.Text)
		count = len(d.Files)
		return nil
	})
	if err != nil {
		m.releaseFile(ref)
		m.expired(ctx, ev.ConversationID)
		return
	}

	text := fmt.Sprintf("📎 Файл «%s» добавлен (всего файлов: %d).", ref.Name, count)
	buttons := draftActions()
	if stateOf(d) == StateAwaitingCategory {
		text += "\nВыберите категорию:"
		buttons = m.categoryMenu()
	}
	m.reply(ctx, ev.ConversationID, Reply{Text: text, Buttons: buttons})
}

func (m *Machine) handleRemoveLast(ctx context.Context, ev Event) {
	var removed models.FileRef
	err := m.drafts.Update(ev.ConversationID, func(d *models.Draft) error {
		var err error
		removed, err = d.RemoveLastFile()
		return err
	})
	switch {
	case errors.Is(err, drafts.ErrNoDraft):
		m.expired(ctx, ev.ConversationID)
		return
	case errors.Is(err, models.ErrNoFiles):
		m.reply(ctx, ev.ConversationID, Reply{Text: "Нет файлов для удаления.", Buttons: draftActions()})
		return
	}

	m.releaseFile(removed)
	m.reply(ctx, ev.ConversationID, Reply{Text: fmt.Sprintf("🗑 Файл «%s» удалён.", removed.Name), Buttons: draftActions()})
}

func (m *Machine) handleConfirm(ctx context.Context, ev Event) {
	d, ok := m.drafts.Get(ev.ConversationID)
	if !ok {
		m.expired(ctx, ev.ConversationID)
		return
	}

	switch err := d.Validate(); {
	case errors.Is(err, models.ErrNoCategory):
		m.reply(ctx, ev.ConversationID, Reply{Text: "Сначала выберите категорию:", Buttons: m.categoryMenu()})
		return
	case errors.Is(err, models.ErrEmptyDraft):
		m.reply(ctx, ev.ConversationID, Reply{Text: "Заявка пуста: добавьте описание или файл.", Buttons: draftActions()})
		return
	}

	// Removing the draft first makes a second confirm see an expired session
	d, ok = m.drafts.Take(ev.ConversationID)
	if !ok {
		m.expired(ctx, ev.ConversationID)
		return
	}
	defer m.releaseDraft(d)

	m.reply(ctx, ev.ConversationID, Reply{Text: "⏳ Создаю задачу…"})

	res, err := m.submitter.Submit(ctx, d)
	if err != nil {
		m.logger.Error("Submission failed", zap.Int64("conversation_id", ev.ConversationID), zap.Error(err))
		m.reply(ctx, ev.ConversationID, Reply{
			Text:    "❌ Не удалось создать задачу. Попробуйте позже.",
			Buttons: m.categoryMenu(),
		})
		return
	}

	m.reply(ctx, ev.ConversationID, Reply{Text: resultText(res), Buttons: m.categoryMenu()})
}

func (m *Machine) handleCancel(ctx context.Context, ev Event) {
	d, ok := m.drafts.Take(ev.ConversationID)
	if ok {
		m.releaseDraft(d)
	}

	text := "Главное меню. Выберите категорию:"
	if ev.Kind == EventCancel {
		text = "Заявка отменена. Выберите категорию:"
		if !ok {
			text = "Нет активной заявки. Выберите категорию:"
		}
	}
	m.reply(ctx, ev.ConversationID, Reply{Text: text, Buttons: m.categoryMenu()})
}

func (m *Machine) handleHistory(ctx context.Context, ev Event) {
	if m.opts.History == nil {
		m.reply(ctx, ev.ConversationID, Reply{Text: "История заявок не ведётся."})
		return
	}

	subs, err := m.opts.History.RecentSubmissions(ctx, ev.ConversationID, historyLimit)
	if err != nil {
		m.logger.Error("Failed to load history", zap.Int64("conversation_id", ev.ConversationID), zap.Error(err))
		m.reply(ctx, ev.ConversationID, Reply{Text: "Не удалось загрузить историю."})
		return
	}
	if len(subs) == 0 {
		m.reply(ctx, ev.ConversationID, Reply{Text: "Заявок пока нет."})
		return
	}

	var b strings.Builder
	b.WriteString("Последние заявки:\n\n")
	for i, s := range subs {
		status := "✅"
		if !s.Success {
			status = "❌"
		}
		title := s.Category
		if cat, ok := m.catalog.Lookup(s.Category); ok {
			title = cat.Title
		}
		fmt.Fprintf(&b, "%d. %s %s — %s", i+1, status, s.CreatedAt.Local().Format("2006-01-02 15:04"), title)
		if s.TaskID != "" {
			fmt.Fprintf(&b, " (задача %s)", s.TaskID)
		}
		b.WriteString("\n")
	}
	m.reply(ctx, ev.ConversationID, Reply{Text: b.String()})
}

// expired tells the user the draft is gone and shows the menu
func (m *Machine) expired(ctx context.Context, conversationID int64) {
	m.reply(ctx, conversationID, Reply{
		Text:    "Сессия истекла. Выберите категорию, чтобы начать заново:",
		Buttons: m.categoryMenu(),
	})
}

// replace installs a draft and releases the one it displaced
func (m *Machine) replace(d *models.Draft) {
	if prev := m.drafts.Put(d); prev != nil {
		m.releaseDraft(prev)
	}
}

func (m *Machine) releaseDraft(d *models.Draft) {
	if err := d.Release(); err != nil {
		m.logger.Error("Failed to release draft files", zap.Int64("conversation_id", d.ConversationID), zap.Error(err))
	}
}

func (m *Machine) releaseFile(f models.FileRef) {
	if err := f.Release(); err != nil {
		m.logger.Error("Failed to release file", zap.String("path", f.Path), zap.Error(err))
	}
}

func (m *Machine) reply(ctx context.Context, conversationID int64, r Reply) {
	if err := m.replier.Reply(ctx, conversationID, r); err != nil {
		m.logger.Warn("Failed to send reply", zap.Int64("conversation_id", conversationID), zap.Error(err))
	}
}

// categoryMenu lays out category buttons two per row
func (m *Machine) categoryMenu() [][]Button {
	var rows [][]Button
	var current []Button
	categories := m.catalog.All()
	for i, cat := range categories {
		current = append(current, Button{Label: cat.Title, Data: CallbackCategoryPrefix + cat.Key})
		if len(current) == 2 || i == len(categories)-1 {
			rows = append(rows, current)
			current = nil
		}
	}
	return rows
}

func draftActions() [][]Button {
	return [][]Button{
		{{Label: "✅ Отправить", Data: CallbackConfirm}},
		{{Label: "🗑 Удалить последний файл", Data: CallbackRemoveLast}},
		{{Label: "❌ Отмена", Data: CallbackCancel}, {Label: "🏠 Меню", Data: CallbackMenu}},
	}
}
