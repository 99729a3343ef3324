package storage

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/thanhnp/dispenser-tracker/internal/notifier"
)

const showClosedKey = "showClosedDispensers"

// PreferenceStore holds the "show closed dispensers" flag
type PreferenceStore struct {
	db         KV
	mu         sync.RWMutex
	showClosed bool
	notifier   *notifier.Notifier[bool]
}

// NewPreferenceStore creates a PreferenceStore and loads the persisted flag.
// The flag defaults to true.
func NewPreferenceStore(db KV) (*PreferenceStore, error) {
	s := &PreferenceStore{
		db:         db,
		showClosed: true,
		notifier:   notifier.New[bool](),
	}

	data, err := db.Get(CFPreferences, []byte(showClosedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if data != nil {
		v, err := strconv.ParseBool(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", showClosedKey, err)
		}
		s.showClosed = v
	}
	return s, nil
}

// ShowClosed returns whether closed dispensers are shown
func (s *PreferenceStore) ShowClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showClosed
}

// SetShowClosed persists v and publishes it
func (s *PreferenceStore) SetShowClosed(v bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(v)
}

// ToggleShowClosed flips the flag
func (s *PreferenceStore) ToggleShowClosed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(!s.showClosed)
}

func (s *PreferenceStore) set(v bool) (bool, error) {
	if err := s.db.Put(CFPreferences, []byte(showClosedKey), []byte(strconv.FormatBool(v))); err != nil {
		return s.showClosed, fmt.Errorf("failed to write %s: %w", showClosedKey, err)
	}
	s.showClosed = v
	s.notifier.Publish(v)
	return v, nil
}

// Subscribe returns a channel receiving the flag after each change
func (s *PreferenceStore) Subscribe() (<-chan bool, func()) {
	return s.notifier.Subscribe()
}
