package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskbot/internal/bitrix"
	"taskbot/internal/models"
	"taskbot/internal/storage"
)

// ErrTaskFailed is returned when the task itself could not be created
var ErrTaskFailed = errors.New("task creation failed")

const maxTitleRunes = 80

// Materializer yields the bytes of a file reference for the duration of fn
type Materializer interface {
	Acquire(ctx context.Context, ref models.FileRef, fn func(name string, r io.Reader) error) error
}

// Uploader stores one file and returns its attachment id
type Uploader interface {
	UploadFile(ctx context.Context, name string, r io.Reader) (int64, error)
}

// TaskCreator posts the final task
type TaskCreator interface {
	CreateTask(ctx context.Context, task models.Task) (string, error)
}

// Options configures a Submitter
type Options struct {
	Workdays int
	Location *time.Location
}

// Result describes a finished submission
type Result struct {
	SubmissionID  string
	TaskID        string
	AttachmentIDs []int64
	FailedFiles   []string
}

// Submitter turns a confirmed draft into a task
type Submitter struct {
	files    Materializer
	uploader Uploader
	tasks    TaskCreator
	journal  storage.Journal
	workdays int
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Submitter
func New(files Materializer, uploader Uploader, tasks TaskCreator, journal storage.Journal, opts Options, logger *zap.Logger) *Submitter {
	if journal == nil {
		journal = storage.Nop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Submitter{
		files:    files,
		uploader: uploader,
		tasks:    tasks,
		journal:  journal,
		workdays: opts.Workdays,
		location: opts.Location,
		now:      time.Now,
		logger:   logger.Named("submission"),
	}
}

// Submit uploads the draft files, creates the task and journals the outcome.
// A file that fails to upload is skipped; only a failed task creation is an error.
// The submitter takes ownership of the draft's temp files.
func (s *Submitter) Submit(ctx context.Context, d *models.Draft) (*Result, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	res := &Result{SubmissionID: uuid.NewString()}
	logger := s.logger.With(
		zap.String("submission_id", res.SubmissionID),
		zap.Int64("conversation_id", d.ConversationID),
		zap.String("category", d.Category.Key),
	)
	logger.Info("Submitting draft", zap.Int("files", len(d.Files)), zap.Int("lines", len(d.Lines)))

	for _, f := range d.Files {
		id, err := s.upload(ctx, f)
		if err != nil {
			logger.Warn("Attachment skipped",
				zap.String("file", f.Name),
				zap.String("ref", f.Kind.String()),
				zap.Error(err),
			)
			res.FailedFiles = append(res.FailedFiles, f.Name)
			continue
		}
		res.AttachmentIDs = append(res.AttachmentIDs, id)
	}

	task := models.Task{
		Title:         BuildTitle(d),
		Description:   BuildDescription(d),
		ResponsibleID: d.Category.ResponsibleID,
		Deadline:      bitrix.AddWorkdays(s.now().In(s.location), s.workdays),
		AttachmentIDs: res.AttachmentIDs,
	}

	taskID, err := s.tasks.CreateTask(ctx, task)
	s.record(ctx, d, res, taskID, err == nil, logger)
	if err != nil {
		logger.Error("Task creation failed", zap.Error(err))
		return res, fmt.Errorf("%w: %v", ErrTaskFailed, err)
	}

	res.TaskID = taskID
	logger.Info("Draft submitted",
		zap.String("task_id", taskID),
		zap.Int("attached", len(res.AttachmentIDs)),
		zap.Int("failed", len(res.FailedFiles)),
	)
	return res, nil
}

func (s *Submitter) upload(ctx context.Context, f models.FileRef) (int64, error) {
	var id int64
	err := s.files.Acquire(ctx, f, func(name string, r io.Reader) error {
		var err error
		id, err = s.uploader.UploadFile(ctx, name, r)
		return err
	})
	return id, err
}

func (s *Submitter) record(ctx context.Context, d *models.Draft, res *Result, taskID string, ok bool, logger *zap.Logger) {
	err := s.journal.RecordSubmission(ctx, models.Submission{
		ID:                res.SubmissionID,
		ConversationID:    d.ConversationID,
		Category:          d.Category.Key,
		ResponsibleID:     d.Category.ResponsibleID,
		TaskID:            taskID,
		Attachments:       len(res.AttachmentIDs),
		FailedAttachments: len(res.FailedFiles),
		Success:           ok,
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to record submission", zap.Error(err))
	}
}

// BuildTitle makes the task title from the category and the first line of text
func BuildTitle(d *models.Draft) string {
	first := ""
	for _, line := range d.Lines {
		if line = strings.TrimSpace(line); line != "" {
			first = strings.SplitN(line, "\n", 2)[0]
			break
		}
	}
	if first == "" {
		return d.Category.Title + ": вложения"
	}
	if utf8.RuneCountInString(first) > maxTitleRunes {
		first = string([]rune(first)[:maxTitleRunes-1]) + "…"
	}
	return d.Category.Title + ": " + first
}

// BuildDescription makes the task description from the text and the author
func BuildDescription(d *models.Draft) string {
	var b strings.Builder
	if text := d.Text(); text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	b.WriteString("Категория: ")
	b.WriteString(d.Category.Title)
	if name := d.Author.DisplayName(); name != "" {
		fmt.Fprintf(&b, "\nАвтор: %s, Telegram ID %d", name, d.Author.UserID)
	}
	return b.String()
}
