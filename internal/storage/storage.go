package storage

import (
	"context"

	"taskbot/internal/models"
)

// Journal records the outcome of confirmed drafts
type Journal interface {
	// RecordSubmission stores one submission outcome, successful or not
	RecordSubmission(ctx context.Context, s models.Submission) error

	// RecentSubmissions returns the newest submissions of a conversation, newest first
	RecentSubmissions(ctx context.Context, conversationID int64, limit int) ([]models.Submission, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Nop is a Journal that keeps nothing
type Nop struct{}

func (Nop) RecordSubmission(context.Context, models.Submission) error { return nil }

func (Nop) RecentSubmissions(context.Context, int64, int) ([]models.Submission, error) {
	return nil, nil
}

func (Nop) Initialize(context.Context) error { return nil }

func (Nop) Close() error { return nil }
