package stubs

import (
	"context"
	"sort"
	"sync"

	"taskbot/internal/models"
)

// MemoryJournal is an in-memory implementation of the Journal interface
type MemoryJournal struct {
	mu          sync.RWMutex
	submissions []models.Submission
}

// NewMemoryJournal creates an empty in-memory journal
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		submissions: make([]models.Submission, 0),
	}
}

// Initialize is a no-op for the in-memory journal
func (m *MemoryJournal) Initialize(ctx context.Context) error {
	return nil
}

// RecordSubmission appends a submission
func (m *MemoryJournal) RecordSubmission(ctx context.Context, s models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submissions = append(m.submissions, s)
	return nil
}

// RecentSubmissions returns the last submissions of a conversation
func (m *MemoryJournal) RecentSubmissions(ctx context.Context, conversationID int64, limit int) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Submission
	for _, s := range m.submissions {
		if s.ConversationID == conversationID {
			result = append(result, s)
		}
	}

	// Newest first
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// All returns every recorded submission in insertion order
func (m *MemoryJournal) All() []models.Submission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Submission(nil), m.submissions...)
}

// Close is a no-op for the in-memory journal
func (m *MemoryJournal) Close() error {
	return nil
}
