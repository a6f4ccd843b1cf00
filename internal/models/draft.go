package models

import (
	"errors"
	"strings"
	"time"
)

// Draft is the task being collected in one conversation
type Draft struct {
	ConversationID int64
	Author         Author
	Category       Category
	Lines          []string
	Files          []FileRef
	CreatedAt      time.Time
}

// NewDraft creates an empty draft for a conversation
func NewDraft(conversationID int64, author Author, category Category) *Draft {
	return &Draft{
		ConversationID: conversationID,
		Author:         author,
		Category:       category,
		CreatedAt:      time.Now(),
	}
}

// AppendText adds a line to the description. Blank input is ignored.
func (d *Draft) AppendText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	d.Lines = append(d.Lines, text)
}

// Text returns the description lines joined in arrival order
func (d *Draft) Text() string {
	return strings.Join(d.Lines, "\n")
}

// AddFile appends a file reference
func (d *Draft) AddFile(f FileRef) {
	d.Files = append(d.Files, f)
}

// RemoveLastFile pops the most recently added file
func (d *Draft) RemoveLastFile() (FileRef, error) {
	if len(d.Files) == 0 {
		return FileRef{}, ErrNoFiles
	}
	last := d.Files[len(d.Files)-1]
	d.Files = d.Files[:len(d.Files)-1]
	return last, nil
}

// Validate checks that the draft can be submitted
func (d *Draft) Validate() error {
	if d.Category.IsZero() {
		return ErrNoCategory
	}
	if len(d.Lines) == 0 && len(d.Files) == 0 {
		return ErrEmptyDraft
	}
	return nil
}

// Release deletes every local temp file held by the draft
func (d *Draft) Release() error {
	var errs []error
	for _, f := range d.Files {
		if err := f.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clone returns a copy that shares no slices with the original
func (d *Draft) Clone() *Draft {
	c := *d
	c.Lines = append([]string(nil), d.Lines...)
	c.Files = append([]FileRef(nil), d.Files...)
	return &c
}
