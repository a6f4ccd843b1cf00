package conversation

import (
	"fmt"
	"strings"

	"taskbot/internal/models"
	"taskbot/internal/submission"
)

const welcomeText = "👋 Здравствуйте! Я помогу создать задачу в Bitrix24.\n\n" +
	"Выберите категорию, затем опишите задачу и приложите файлы."

const helpText = "Как создать задачу:\n" +
	"1. Выберите категорию.\n" +
	"2. Отправьте описание текстом и/или файлы.\n" +
	"3. Нажмите «Отправить».\n\n" +
	"Команды:\n" +
	"/start — начать заново\n" +
	"/confirm — отправить заявку\n" +
	"/undo — удалить последний файл\n" +
	"/cancel — отменить заявку\n" +
	"/last — последние заявки\n" +
	"/help — эта справка"

func tooLargeText(limit int64) string {
	return fmt.Sprintf("⚠️ Файл слишком большой. Максимальный размер: %d МБ.", limit>>20)
}

// summary describes what a draft holds so far
func summary(d *models.Draft) string {
	var parts []string
	if n := len(d.Lines); n > 0 {
		parts = append(parts, fmt.Sprintf("сообщений: %d", n))
	}
	if n := len(d.Files); n > 0 {
		parts = append(parts, fmt.Sprintf("файлов: %d", n))
	}
	return "В заявке уже есть " + strings.Join(parts, ", ") + "."
}

func resultText(res *submission.Result) string {
	var b strings.Builder
	b.WriteString("✅ Задача создана")
	if res.TaskID != "" {
		fmt.Fprintf(&b, " (№ %s)", res.TaskID)
	}
	b.WriteString(".")
	if n := len(res.AttachmentIDs); n > 0 {
		fmt.Fprintf(&b, "\nПрикреплено файлов: %d.", n)
	}
	if len(res.FailedFiles) > 0 {
		fmt.Fprintf(&b, "\n⚠️ Не удалось прикрепить: %s.", strings.Join(res.FailedFiles, ", "))
	}
	b.WriteString("\n\nМожно создать новую задачу:")
	return b.String()
}
