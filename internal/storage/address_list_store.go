package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/thanhnp/dispenser-tracker/internal/notifier"
	"github.com/thanhnp/dispenser-tracker/pkg/validation"
)

// Validation errors returned by AddressListStore.Add
var (
	ErrDuplicateAddress = errors.New("address already in your list of dispensers")
	ErrInvalidAddress   = errors.New("address is not a valid bitcoin address")
)

const addressListKey = "dispenserAddresses"

// KV is the subset of PebbleDB the stores depend on
type KV interface {
	Put(cf string, key, value []byte) error
	Get(cf string, key []byte) ([]byte, error)
}

// AddressListStore holds the ordered list of tracked dispenser addresses.
// Every mutation writes the full list to the database and then publishes it.
type AddressListStore struct {
	db        KV
	mu        sync.RWMutex
	addresses []string
	notifier  *notifier.Notifier[[]string]
}

// NewAddressListStore creates an AddressListStore and loads the persisted list
func NewAddressListStore(db KV) (*AddressListStore, error) {
	s := &AddressListStore{
		db:       db,
		notifier: notifier.New[[]string](),
	}

	addresses, err := s.load()
	if err != nil {
		return nil, err
	}
	s.addresses = addresses
	return s, nil
}

func (s *AddressListStore) load() ([]string, error) {
	data, err := s.db.Get(CFAddressList, []byte(addressListKey))
	if err != nil {
		return nil, fmt.Errorf("failed to read address list: %w", err)
	}
	if data == nil {
		return []string{}, nil
	}

	var addresses []string
	if err := json.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address list: %w", err)
	}
	if addresses == nil {
		addresses = []string{}
	}
	return addresses, nil
}

func (s *AddressListStore) save(addresses []string) error {
	data, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("failed to marshal address list: %w", err)
	}
	if err := s.db.Put(CFAddressList, []byte(addressListKey), data); err != nil {
		return fmt.Errorf("failed to write address list: %w", err)
	}
	return nil
}

// Get returns the tracked addresses in insertion order
func (s *AddressListStore) Get() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.addresses)
}

// Contains reports whether address is tracked
func (s *AddressListStore) Contains(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.addresses, address) >= 0
}

// Add appends address to the list. It fails with ErrDuplicateAddress when the
// address is already tracked and with ErrInvalidAddress when it is not a
// valid Bitcoin address; the list is left unchanged in both cases.
func (s *AddressListStore) Add(address string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.addresses, address) >= 0 {
		return clone(s.addresses), ErrDuplicateAddress
	}
	if err := validation.ValidateAddress(address); err != nil {
		return clone(s.addresses), fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	next := append(clone(s.addresses), address)
	if err := s.save(next); err != nil {
		return clone(s.addresses), err
	}

	s.addresses = next
	s.notifier.Publish(clone(next))
	return clone(next), nil
}

// Remove deletes every occurrence of address. Removing an address that is
// not tracked is a no-op.
func (s *AddressListStore) Remove(address string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.addresses, address) < 0 {
		return clone(s.addresses), nil
	}

	next := make([]string, 0, len(s.addresses))
	for _, a := range s.addresses {
		if a != address {
			next = append(next, a)
		}
	}

	if err := s.save(next); err != nil {
		return clone(s.addresses), err
	}

	s.addresses = next
	s.notifier.Publish(clone(next))
	return clone(next), nil
}

// Subscribe returns a channel receiving the full list after each mutation
func (s *AddressListStore) Subscribe() (<-chan []string, func()) {
	return s.notifier.Subscribe()
}

func indexOf(list []string, value string) int {
	for i, v := range list {
		if v == value {
			return i
		}
	}
	return -1
}

func clone(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
