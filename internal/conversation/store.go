// Package conversation holds the ordered, append-only conversation log.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diogo/voxchat/internal/models"
)

// Observer is notified once per appended entry, in append order.
// Observers must not append to the store they observe.
type Observer func(entry models.MessageEntry)

// Store is the source of truth for what the chat view renders.
// Entries are never mutated or removed once appended; the single exception
// is the transient recording placeholder (see DismissPlaceholder).
type Store struct {
	mu        sync.RWMutex
	entries   []models.MessageEntry
	observers map[int]Observer
	nextObs   int

	// notifyMu serializes observer callbacks so they see appends in order
	notifyMu sync.Mutex
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		observers: make(map[int]Observer),
		now:       time.Now,
	}
}

// Append adds entry to the end of the log and notifies observers.
// Missing ID, status and timestamp are filled in. It always succeeds.
func (s *Store) Append(entry models.MessageEntry) models.MessageEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.StatusNormal
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if obs, ok := s.observers[i]; ok {
			observers = append(observers, obs)
		}
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(entry)
	}
	return entry
}

// Subscribe registers fn for append notifications and returns a function
// that removes it
func (s *Store) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// DismissPlaceholder removes the recording placeholder with the given ID.
// Entries with any other status are left in place and false is returned.
func (s *Store) DismissPlaceholder(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID != id {
			continue
		}
		if !e.IsPlaceholder() {
			return false
		}
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
		return true
	}
	return false
}

// Entries returns a copy of the log in display order
func (s *Store) Entries() []models.MessageEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MessageEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Last returns the most recent entry authored by role
func (s *Store) Last(role models.Role) (models.MessageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Role == role && s.entries[i].Status == models.StatusNormal {
			return s.entries[i], true
		}
	}
	return models.MessageEntry{}, false
}

// LastWithAudio returns the most recent entry carrying an audio reference
func (s *Store) LastWithAudio() (models.MessageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].HasAudio() {
			return s.entries[i], true
		}
	}
	return models.MessageEntry{}, false
}
