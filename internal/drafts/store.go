package drafts

import (
	"errors"
	"sync"

	"taskbot/internal/models"
)

// ErrNoDraft is returned when a conversation has no active draft
var ErrNoDraft = errors.New("no active draft")

// Store keeps one draft per conversation in memory.
// Callbacks passed to Update run under the store lock and must not block.
type Store struct {
	mu     sync.RWMutex
	drafts map[int64]*models.Draft
}

// NewStore creates an empty draft store
func NewStore() *Store {
	return &Store{
		drafts: make(map[int64]*models.Draft),
	}
}

// Put installs a draft and returns the one it replaced, if any.
// The caller owns the returned draft and must release its files.
func (s *Store) Put(d *models.Draft) *models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.drafts[d.ConversationID]
	s.drafts[d.ConversationID] = d
	return prev
}

// Get returns a copy of the conversation's draft
func (s *Store) Get(conversationID int64) (*models.Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[conversationID]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Update mutates the conversation's draft in place
func (s *Store) Update(conversationID int64, fn func(d *models.Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[conversationID]
	if !ok {
		return ErrNoDraft
	}
	return fn(d)
}

// Take removes the conversation's draft and hands it to the caller
func (s *Store) Take(conversationID int64) (*models.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[conversationID]
	if ok {
		delete(s.drafts, conversationID)
	}
	return d, ok
}

// Len returns the number of active drafts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// LocalPaths returns the temp files referenced by live drafts
func (s *Store) LocalPaths() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make(map[string]struct{})
	for _, d := range s.drafts {
		for _, f := range d.Files {
			if f.Kind == models.RefLocal {
				paths[f.Path] = struct{}{}
			}
		}
	}
	return paths
}
