package models

import (
	"errors"
	"time"
)

var (
	// ErrNoCategory is returned when a draft without a category is confirmed
	ErrNoCategory = errors.New("category is not selected")
	// ErrEmptyDraft is returned when a draft has neither text nor files
	ErrEmptyDraft = errors.New("draft has no text and no files")
	// ErrNoFiles is returned when removing a file from a draft without files
	ErrNoFiles = errors.New("draft has no files")
)

// Category is a request category with the responsible party assigned to it
type Category struct {
	Key           string `yaml:"key"`
	Title         string `yaml:"title"`
	ResponsibleID int64  `yaml:"responsible_id"`
}

// IsZero reports whether the category is unset
func (c Category) IsZero() bool {
	return c.Key == ""
}

// Author identifies the chat user a draft belongs to
type Author struct {
	UserID    int64
	UserName  string
	FirstName string
	LastName  string
}

// DisplayName returns the best human-readable name of the author
func (a Author) DisplayName() string {
	name := a.FirstName
	if a.LastName != "" {
		if name != "" {
			name += " "
		}
		name += a.LastName
	}
	if a.UserName != "" {
		if name == "" {
			return "@" + a.UserName
		}
		return name + " (@" + a.UserName + ")"
	}
	return name
}

// Task is the payload sent to the task tracker
type Task struct {
	Title         string
	Description   string
	ResponsibleID int64
	CreatedBy     int64
	Deadline      time.Time
	AttachmentIDs []int64
}

// Submission records the outcome of one confirmed draft
type Submission struct {
	ID                string
	ConversationID    int64
	Category          string
	ResponsibleID     int64
	TaskID            string
	Attachments       int
	FailedAttachments int
	Success           bool
	CreatedAt         time.Time
}
