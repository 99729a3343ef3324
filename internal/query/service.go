package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/thanhnp/dispenser-tracker/internal/models"
)

// DispenserSource returns the dispensers opened from any of the given
// addresses, ordered by ascending satoshi rate.
type DispenserSource interface {
	GetDispensers(ctx context.Context, addresses []string) ([]models.Dispenser, error)
}

// BalanceSource lists the unspent outputs of an address
type BalanceSource interface {
	ListUnspent(ctx context.Context, address string) ([]models.UTXO, error)
}

// Options tunes the Service caches and retries
type Options struct {
	CacheSize    int
	DispenserTTL time.Duration
	Retry        RetryPolicy
}

// DefaultOptions returns the options used when the config has no overrides
func DefaultOptions() Options {
	return Options{
		CacheSize:    1024,
		DispenserTTL: time.Minute,
		Retry:        DefaultRetryPolicy(),
	}
}

// Service fetches balances and dispensers per address. Balances are cached
// for the life of the process once fetched; dispensers for DispenserTTL.
// Failures are logged and returned as StatusError results, never cached.
//
// Upstream fetches are shared between concurrent callers and run detached
// from their contexts; a caller that gives up only stops waiting.
type Service struct {
	dispensers DispenserSource
	balances   BalanceSource
	retry      RetryPolicy

	balanceCache   *lru.Cache[string, int64]
	dispenserCache *expirable.LRU[string, []models.Dispenser]
	group          singleflight.Group

	// generations is bumped by Invalidate; a fetch only fills the cache
	// when the generation it started under is still current.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewService creates a Service on top of the given sources
func NewService(dispensers DispenserSource, balances BalanceSource, opts Options) (*Service, error) {
	if opts.CacheSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", opts.CacheSize)
	}

	balanceCache, err := lru.New[string, int64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance cache: %w", err)
	}

	return &Service{
		dispensers:     dispensers,
		balances:       balances,
		retry:          opts.Retry,
		balanceCache:   balanceCache,
		dispenserCache: expirable.NewLRU[string, []models.Dispenser](opts.CacheSize, nil, opts.DispenserTTL),
		generations:    make(map[string]uint64),
	}, nil
}

// GetBalance returns the sum of the unspent output values of address in
// satoshis.
func (s *Service) GetBalance(ctx context.Context, address string) Result[int64] {
	if total, ok := s.balanceCache.Get(address); ok {
		return Result[int64]{Value: total, Status: StatusOK}
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("balance:"+address, func() (any, error) {
		if total, ok := s.balanceCache.Get(address); ok {
			return total, nil
		}

		gen := s.generation(address)
		var utxos []models.UTXO
		err := s.retry.Do(fetchCtx, "balance "+address, func() error {
			var err error
			utxos, err = s.balances.ListUnspent(fetchCtx, address)
			return err
		})
		if err != nil {
			return nil, err
		}

		total := models.SumValues(utxos)
		s.cacheBalance(address, total, gen)
		return total, nil
	})

	v, err := wait[int64](ctx, ch)
	if err != nil {
		log.WithError(err).WithField("address", address).Warn("[Query] Balance fetch failed")
		return failed[int64](err)
	}

	return Result[int64]{Value: v, Status: StatusOK}
}

// GetDispensers returns the dispensers of addresses. Addresses without a
// fresh cache entry are fetched in a single upstream request. The records
// keep the upstream order (ascending satoshi rate).
func (s *Service) GetDispensers(ctx context.Context, addresses []string) Result[[]models.Dispenser] {
	addresses = dedupe(addresses)

	perAddress := make(map[string][]models.Dispenser, len(addresses))
	var missing []string
	for _, a := range addresses {
		if records, ok := s.dispenserCache.Get(a); ok {
			perAddress[a] = records
		} else {
			missing = append(missing, a)
		}
	}

	if len(missing) > 0 {
		fetched, err := s.fetchDispensers(ctx, missing)
		if err != nil {
			log.WithError(err).WithField("addresses", missing).Warn("[Query] Dispenser fetch failed")
			return failed[[]models.Dispenser](err)
		}
		for a, records := range fetched {
			perAddress[a] = records
		}
	}

	merged := mergeByRate(addresses, perAddress)
	if len(merged) == 0 {
		return Result[[]models.Dispenser]{Value: merged, Status: StatusEmpty}
	}
	return Result[[]models.Dispenser]{Value: merged, Status: StatusOK}
}

// RefreshDispensers refetches the dispensers of addresses regardless of
// cache freshness.
func (s *Service) RefreshDispensers(ctx context.Context, addresses []string) error {
	addresses = dedupe(addresses)
	if len(addresses) == 0 {
		return nil
	}
	_, err := s.fetchDispensers(ctx, addresses)
	return err
}

// Invalidate drops every cache entry of address. Fetches already in flight
// for it still answer their callers but no longer fill the cache.
func (s *Service) Invalidate(address string) {
	s.mu.Lock()
	s.generations[address]++
	s.balanceCache.Remove(address)
	s.dispenserCache.Remove(address)
	s.mu.Unlock()

	s.group.Forget("balance:" + address)
}

func (s *Service) generation(address string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[address]
}

func (s *Service) cacheBalance(address string, total int64, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[address] != gen {
		log.WithField("address", address).Debug("[Query] Dropping balance of an invalidated address")
		return
	}
	s.balanceCache.Add(address, total)
}

func (s *Service) cacheDispensers(perAddress map[string][]models.Dispenser, gens map[string]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for a, list := range perAddress {
		if s.generations[a] != gens[a] {
			log.WithField("address", a).Debug("[Query] Dropping dispensers of an invalidated address")
			continue
		}
		s.dispenserCache.Add(a, list)
	}
}

// wait blocks until the shared fetch answers or ctx is done
func wait[T any](ctx context.Context, ch <-chan singleflight.Result) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// fetchDispensers performs one batched upstream request and caches the
// records of each requested address separately.
func (s *Service) fetchDispensers(ctx context.Context, addresses []string) (map[string][]models.Dispenser, error) {
	key := "dispensers:" + strings.Join(addresses, ",")

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		gens := make(map[string]uint64, len(addresses))
		for _, a := range addresses {
			gens[a] = s.generation(a)
		}

		var records []models.Dispenser
		err := s.retry.Do(fetchCtx, "dispensers", func() error {
			var err error
			records, err = s.dispensers.GetDispensers(fetchCtx, addresses)
			return err
		})
		if err != nil {
			return nil, err
		}

		perAddress := make(map[string][]models.Dispenser, len(addresses))
		for _, a := range addresses {
			perAddress[a] = []models.Dispenser{}
		}
		for _, d := range records {
			if _, ok := perAddress[d.Source]; !ok {
				log.WithField("source", d.Source).Debug("[Query] Ignoring dispenser of an address that was not requested")
				continue
			}
			perAddress[d.Source] = append(perAddress[d.Source], d)
		}

		s.cacheDispensers(perAddress, gens)
		return perAddress, nil
	})

	return wait[map[string][]models.Dispenser](ctx, ch)
}

// mergeByRate concatenates the per-address records in address order and
// restores ascending satoshi rate order across addresses. Each list is
// already sorted, so a stable sort keeps their relative order.
func mergeByRate(addresses []string, perAddress map[string][]models.Dispenser) []models.Dispenser {
	merged := []models.Dispenser{}
	for _, a := range addresses {
		merged = append(merged, perAddress[a]...)
	}
	if len(addresses) > 1 {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].SatoshiRate < merged[j].SatoshiRate
		})
	}
	return merged
}

func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
