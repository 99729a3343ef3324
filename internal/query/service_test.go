package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/dispenser-tracker/internal/models"
)

const (
	addrA = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	addrB = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

type fakeDispensers struct {
	mu      sync.Mutex
	records map[string][]models.Dispenser
	err     error
	calls   [][]string
}

func (f *fakeDispensers) GetDispensers(_ context.Context, addresses []string) ([]models.Dispenser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), addresses...))
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Dispenser{}
	for _, a := range addresses {
		out = append(out, f.records[a]...)
	}
	return out, nil
}

func (f *fakeDispensers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeBalances struct {
	mu    sync.Mutex
	utxos map[string][]models.UTXO
	errs  map[string]error
	calls map[string]int
}

func (f *fakeBalances) ListUnspent(_ context.Context, address string) ([]models.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[address]++
	if err := f.errs[address]; err != nil {
		return nil, err
	}
	return f.utxos[address], nil
}

func (f *fakeBalances) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func newTestService(t *testing.T, d DispenserSource, b BalanceSource) *Service {
	t.Helper()
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{MaxRetries: 0, Unit: time.Millisecond, Cap: time.Millisecond}
	svc, err := NewService(d, b, opts)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRejectsBadCacheSize(t *testing.T) {
	_, err := NewService(&fakeDispensers{}, &fakeBalances{}, Options{CacheSize: 0})
	assert.Error(t, err)
}

func TestGetBalanceSumsAndCaches(t *testing.T) {
	balances := &fakeBalances{utxos: map[string][]models.UTXO{
		addrA: {{TxID: "a", Value: 500}, {TxID: "b", Value: 1500}},
	}}
	svc := newTestService(t, &fakeDispensers{}, balances)

	res := svc.GetBalance(context.Background(), addrA)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(2000), res.Value)

	res = svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, int64(2000), res.Value)
	assert.Equal(t, 1, balances.callCount(addrA))
}

func TestGetBalanceNoUTXOs(t *testing.T) {
	svc := newTestService(t, &fakeDispensers{}, &fakeBalances{})

	res := svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(0), res.Value)
	assert.True(t, res.HasData())
}

func TestGetBalanceFailureIsNotCached(t *testing.T) {
	balances := &fakeBalances{errs: map[string]error{addrA: errors.New("network down")}}
	svc := newTestService(t, &fakeDispensers{}, balances)

	res := svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, StatusError, res.Status)
	assert.False(t, res.HasData())
	assert.Error(t, res.Err)

	balances.mu.Lock()
	balances.errs = nil
	balances.utxos = map[string][]models.UTXO{addrA: {{Value: 42}}}
	balances.mu.Unlock()

	res = svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(42), res.Value)
	assert.Equal(t, 2, balances.callCount(addrA))
}

func TestGetBalancePerAddressIsolation(t *testing.T) {
	balances := &fakeBalances{
		utxos: map[string][]models.UTXO{addrB: {{Value: 7}}},
		errs:  map[string]error{addrA: errors.New("boom")},
	}
	svc := newTestService(t, &fakeDispensers{}, balances)

	assert.Equal(t, StatusError, svc.GetBalance(context.Background(), addrA).Status)
	res := svc.GetBalance(context.Background(), addrB)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(7), res.Value)
}

func TestGetBalanceRetries(t *testing.T) {
	balances := &fakeBalances{errs: map[string]error{addrA: errors.New("flaky")}}
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{MaxRetries: 3, Unit: time.Millisecond, Cap: 2 * time.Millisecond}
	svc, err := NewService(&fakeDispensers{}, balances, opts)
	require.NoError(t, err)

	res := svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 4, balances.callCount(addrA))
}

func TestGetDispensersStatuses(t *testing.T) {
	dispensers := &fakeDispensers{records: map[string][]models.Dispenser{
		addrA: {{TxHash: "h1", Source: addrA, SatoshiRate: 100}},
	}}
	svc := newTestService(t, dispensers, &fakeBalances{})

	res := svc.GetDispensers(context.Background(), []string{addrA})
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Value, 1)

	res = svc.GetDispensers(context.Background(), []string{addrB})
	assert.Equal(t, StatusEmpty, res.Status)
	assert.NotNil(t, res.Value)
	assert.Empty(t, res.Value)
	assert.True(t, res.HasData())

	dispensers.err = errors.New("unreachable")
	svc.Invalidate(addrA)
	res = svc.GetDispensers(context.Background(), []string{addrA})
	assert.Equal(t, StatusError, res.Status)
	assert.False(t, res.HasData())
}

func TestGetDispensersBatchesMissingAddresses(t *testing.T) {
	dispensers := &fakeDispensers{records: map[string][]models.Dispenser{
		addrA: {
			{TxHash: "a1", Source: addrA, SatoshiRate: 100},
			{TxHash: "a2", Source: addrA, SatoshiRate: 900},
		},
		addrB: {{TxHash: "b1", Source: addrB, SatoshiRate: 500}},
	}}
	svc := newTestService(t, dispensers, &fakeBalances{})

	res := svc.GetDispensers(context.Background(), []string{addrA, addrB, addrA})
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, 1, dispensers.callCount())
	assert.Equal(t, []string{addrA, addrB}, dispensers.calls[0])

	var hashes []string
	for _, d := range res.Value {
		hashes = append(hashes, d.TxHash)
	}
	assert.Equal(t, []string{"a1", "b1", "a2"}, hashes)

	// Both addresses are now cached
	svc.GetDispensers(context.Background(), []string{addrB})
	svc.GetDispensers(context.Background(), []string{addrA})
	assert.Equal(t, 1, dispensers.callCount())
}

func TestGetDispensersFetchesOnlyUncached(t *testing.T) {
	dispensers := &fakeDispensers{records: map[string][]models.Dispenser{
		addrB: {{TxHash: "b1", Source: addrB, SatoshiRate: 500}},
	}}
	svc := newTestService(t, dispensers, &fakeBalances{})

	svc.GetDispensers(context.Background(), []string{addrA})
	svc.GetDispensers(context.Background(), []string{addrA, addrB})

	require.Equal(t, 2, dispensers.callCount())
	assert.Equal(t, []string{addrB}, dispensers.calls[1])
}

func TestGetDispensersResultIsACopy(t *testing.T) {
	dispensers := &fakeDispensers{records: map[string][]models.Dispenser{
		addrA: {{TxHash: "a1", Source: addrA, Status: 0}},
	}}
	svc := newTestService(t, dispensers, &fakeBalances{})

	res := svc.GetDispensers(context.Background(), []string{addrA})
	res.Value[0].Status = models.DispenserStatusClosed

	res = svc.GetDispensers(context.Background(), []string{addrA})
	assert.Equal(t, 0, res.Value[0].Status)
}

func TestRefreshDispensersBypassesCache(t *testing.T) {
	dispensers := &fakeDispensers{records: map[string][]models.Dispenser{
		addrA: {{TxHash: "a1", Source: addrA, Status: 0}},
	}}
	svc := newTestService(t, dispensers, &fakeBalances{})

	svc.GetDispensers(context.Background(), []string{addrA})

	dispensers.mu.Lock()
	dispensers.records[addrA] = []models.Dispenser{{TxHash: "a1", Source: addrA, Status: models.DispenserStatusClosed}}
	dispensers.mu.Unlock()

	require.NoError(t, svc.RefreshDispensers(context.Background(), []string{addrA}))
	res := svc.GetDispensers(context.Background(), []string{addrA})
	assert.True(t, res.Value[0].IsClosed())
	assert.Equal(t, 2, dispensers.callCount())

	assert.NoError(t, svc.RefreshDispensers(context.Background(), nil))
	assert.Equal(t, 2, dispensers.callCount())
}

func TestInvalidateDropsBalance(t *testing.T) {
	balances := &fakeBalances{utxos: map[string][]models.UTXO{addrA: {{Value: 1}}}}
	svc := newTestService(t, &fakeDispensers{}, balances)

	svc.GetBalance(context.Background(), addrA)
	svc.Invalidate(addrA)
	svc.GetBalance(context.Background(), addrA)

	assert.Equal(t, 2, balances.callCount(addrA))
}

func TestGetBalanceConcurrentCallersShareFetch(t *testing.T) {
	balances := &fakeBalances{utxos: map[string][]models.UTXO{addrA: {{Value: 10}}}}
	svc := newTestService(t, &fakeDispensers{}, balances)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := svc.GetBalance(context.Background(), addrA)
			assert.Equal(t, int64(10), res.Value)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, balances.callCount(addrA), 16)
	assert.GreaterOrEqual(t, balances.callCount(addrA), 1)
}

// gatedBalances blocks every ListUnspent until release is closed
type gatedBalances struct {
	fakeBalances
	started chan struct{}
	release chan struct{}
}

func newGatedBalances(utxos map[string][]models.UTXO) *gatedBalances {
	return &gatedBalances{
		fakeBalances: fakeBalances{utxos: utxos},
		started:      make(chan struct{}, 16),
		release:      make(chan struct{}),
	}
}

func (g *gatedBalances) ListUnspent(ctx context.Context, address string) ([]models.UTXO, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fakeBalances.ListUnspent(ctx, address)
}

// gatedDispensers blocks every GetDispensers until release is closed
type gatedDispensers struct {
	fakeDispensers
	started chan struct{}
	release chan struct{}
}

func (g *gatedDispensers) GetDispensers(ctx context.Context, addresses []string) ([]models.Dispenser, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fakeDispensers.GetDispensers(ctx, addresses)
}

func TestGetBalanceCallerCancelDoesNotFailOthers(t *testing.T) {
	balances := newGatedBalances(map[string][]models.UTXO{addrA: {{Value: 500}, {Value: 1500}}})
	svc := newTestService(t, &fakeDispensers{}, balances)

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan Result[int64], 1)
	go func() { resA <- svc.GetBalance(ctxA, addrA) }()
	<-balances.started

	resB := make(chan Result[int64], 1)
	go func() { resB <- svc.GetBalance(context.Background(), addrA) }()

	cancelA()
	select {
	case res := <-resA:
		assert.Equal(t, StatusError, res.Status)
		assert.ErrorIs(t, res.Err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(balances.release)
	select {
	case res := <-resB:
		require.Equal(t, StatusOK, res.Status, "err: %v", res.Err)
		assert.Equal(t, int64(2000), res.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never answered")
	}

	// The shared fetch completed and filled the cache
	res := svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, int64(2000), res.Value)
}

func TestGetDispensersCallerCancelDoesNotFailOthers(t *testing.T) {
	dispensers := &gatedDispensers{
		fakeDispensers: fakeDispensers{records: map[string][]models.Dispenser{
			addrA: {{TxHash: "a1", Source: addrA}},
		}},
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	svc := newTestService(t, dispensers, &fakeBalances{})

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan Result[[]models.Dispenser], 1)
	go func() { resA <- svc.GetDispensers(ctxA, []string{addrA}) }()
	<-dispensers.started

	resB := make(chan Result[[]models.Dispenser], 1)
	go func() { resB <- svc.GetDispensers(context.Background(), []string{addrA}) }()

	cancelA()
	assert.Equal(t, StatusError, (<-resA).Status)

	close(dispensers.release)
	res := <-resB
	require.Equal(t, StatusOK, res.Status, "err: %v", res.Err)
	assert.Len(t, res.Value, 1)
}

func TestInvalidateDuringBalanceFetch(t *testing.T) {
	balances := newGatedBalances(map[string][]models.UTXO{addrA: {{Value: 7}}})
	svc := newTestService(t, &fakeDispensers{}, balances)

	done := make(chan Result[int64], 1)
	go func() { done <- svc.GetBalance(context.Background(), addrA) }()
	<-balances.started

	svc.Invalidate(addrA)
	close(balances.release)

	res := <-done
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(7), res.Value)

	// The in-flight result answered its caller but was not cached
	svc.GetBalance(context.Background(), addrA)
	assert.Equal(t, 2, balances.callCount(addrA))
}

func TestInvalidateDuringDispenserFetch(t *testing.T) {
	dispensers := &gatedDispensers{
		fakeDispensers: fakeDispensers{records: map[string][]models.Dispenser{
			addrA: {{TxHash: "a1", Source: addrA}},
			addrB: {{TxHash: "b1", Source: addrB}},
		}},
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	svc := newTestService(t, dispensers, &fakeBalances{})

	done := make(chan Result[[]models.Dispenser], 1)
	go func() { done <- svc.GetDispensers(context.Background(), []string{addrA, addrB}) }()
	<-dispensers.started

	svc.Invalidate(addrA)
	close(dispensers.release)
	require.Equal(t, StatusOK, (<-done).Status)

	// addrB stays cached, addrA is fetched again
	svc.GetDispensers(context.Background(), []string{addrB})
	require.Equal(t, 1, dispensers.callCount())
	svc.GetDispensers(context.Background(), []string{addrA})
	require.Equal(t, 2, dispensers.callCount())
	assert.Equal(t, []string{addrA}, dispensers.calls[1])
}
