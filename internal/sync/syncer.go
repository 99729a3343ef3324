package sync

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/dispenser-tracker/internal/models"
	"github.com/thanhnp/dispenser-tracker/internal/query"
)

// AddressSource is the tracked address list the Syncer follows
type AddressSource interface {
	Get() []string
	Subscribe() (<-chan []string, func())
}

// Querier is the part of the query layer the Syncer drives
type Querier interface {
	GetBalance(ctx context.Context, address string) query.Result[int64]
	GetDispensers(ctx context.Context, addresses []string) query.Result[[]models.Dispenser]
	RefreshDispensers(ctx context.Context, addresses []string) error
	Invalidate(address string)
}

// Syncer keeps the query caches in line with the tracked address list.
// Removed addresses are evicted, added addresses are prefetched and, when
// interval is positive, the dispensers of every tracked address are
// refreshed on a ticker.
type Syncer struct {
	addresses AddressSource
	querier   Querier
	interval  time.Duration

	mu          sync.Mutex
	known       map[string]struct{}
	running     bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewSyncer creates a new Syncer. An interval of zero disables periodic
// refreshes.
func NewSyncer(addresses AddressSource, querier Querier, interval time.Duration) *Syncer {
	return &Syncer{
		addresses: addresses,
		querier:   querier,
		interval:  interval,
		known:     make(map[string]struct{}),
	}
}

// Start prefetches the tracked addresses and begins following changes
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)

	// Subscribe before reading the list so no change is missed
	changes, unsubscribe := s.addresses.Subscribe()
	s.unsubscribe = unsubscribe

	current := s.addresses.Get()
	for _, a := range current {
		s.known[a] = struct{}{}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.prefetch(ctx, current)
	}()

	s.wg.Add(1)
	go s.watch(ctx, changes)

	if s.interval > 0 {
		s.wg.Add(1)
		go s.poll(ctx)
	}

	log.Infof("[Sync] Following %d tracked addresses", len(current))
	return nil
}

// Stop stops the background work and waits for it to finish
func (s *Syncer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.unsubscribe()
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// watch applies address list changes until ctx is done
func (s *Syncer) watch(ctx context.Context, changes <-chan []string) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-changes:
			if !ok {
				return
			}
			s.handleChange(ctx, list)
		}
	}
}

func (s *Syncer) handleChange(ctx context.Context, list []string) {
	next := make(map[string]struct{}, len(list))
	var added []string
	for _, a := range list {
		next[a] = struct{}{}
	}

	s.mu.Lock()
	for a := range s.known {
		if _, ok := next[a]; !ok {
			s.querier.Invalidate(a)
			log.WithField("address", a).Debug("[Sync] Evicted removed address")
		}
	}
	for _, a := range list {
		if _, ok := s.known[a]; !ok {
			added = append(added, a)
		}
	}
	s.known = next
	s.mu.Unlock()

	s.prefetch(ctx, added)
}

// prefetch warms the caches for addresses
func (s *Syncer) prefetch(ctx context.Context, addresses []string) {
	if len(addresses) == 0 {
		return
	}

	if res := s.querier.GetDispensers(ctx, addresses); !res.HasData() {
		log.WithError(res.Err).Warn("[Sync] Dispenser prefetch failed")
	}
	for _, a := range addresses {
		if ctx.Err() != nil {
			return
		}
		s.querier.GetBalance(ctx, a)
	}
	log.Debugf("[Sync] Prefetched %d addresses", len(addresses))
}

// poll refreshes the dispensers of every tracked address on a ticker
func (s *Syncer) poll(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Syncer) refresh(ctx context.Context) {
	addresses := s.addresses.Get()
	if len(addresses) == 0 {
		return
	}

	if err := s.querier.RefreshDispensers(ctx, addresses); err != nil {
		log.WithError(err).Warn("[Sync] Dispenser refresh failed")
		return
	}
	log.Debugf("[Sync] Refreshed dispensers of %d addresses", len(addresses))
}
