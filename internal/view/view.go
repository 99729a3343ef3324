package view

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/sync/errgroup"

	"github.com/thanhnp/dispenser-tracker/internal/models"
	"github.com/thanhnp/dispenser-tracker/internal/query"
	"github.com/thanhnp/dispenser-tracker/pkg/validation"
)

// NoDispensersMessage is shown for an address with nothing to list
const NoDispensersMessage = "No Dispensers"

// maxConcurrentAddresses bounds the addresses fetched at once
const maxConcurrentAddresses = 8

// Querier is the part of the query layer the Builder reads from
type Querier interface {
	GetBalance(ctx context.Context, address string) query.Result[int64]
	GetDispensers(ctx context.Context, addresses []string) query.Result[[]models.Dispenser]
}

// Builder composes the tracked addresses, the visibility preference and
// the query results into the rendered view
type Builder struct {
	querier       Querier
	explorerTxURL string
}

// NewBuilder creates a Builder. explorerTxURL is a format string taking the
// dispenser tx hash; an empty string disables explorer links.
func NewBuilder(querier Querier, explorerTxURL string) *Builder {
	return &Builder{
		querier:       querier,
		explorerTxURL: explorerTxURL,
	}
}

// Build renders every address in list order. Upstream failures never fail
// the build; they render as an address without data.
func (b *Builder) Build(ctx context.Context, addresses []string, showClosed bool) (*models.Dashboard, error) {
	views := make([]models.AddressView, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAddresses)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			views[i] = b.BuildAddress(gctx, address, showClosed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &models.Dashboard{
		ShowClosed: showClosed,
		Count:      len(addresses),
		Addresses:  views,
	}, nil
}

// BuildAddress renders one address. Its balance and dispensers are fetched
// concurrently.
func (b *Builder) BuildAddress(ctx context.Context, address string, showClosed bool) models.AddressView {
	var (
		balance    query.Result[int64]
		dispensers query.Result[[]models.Dispenser]
	)

	var g errgroup.Group
	g.Go(func() error {
		balance = b.querier.GetBalance(ctx, address)
		return nil
	})
	g.Go(func() error {
		dispensers = b.querier.GetDispensers(ctx, []string{address})
		return nil
	})
	_ = g.Wait()

	v := models.AddressView{
		Address:        address,
		Network:        networkOf(address),
		BalanceState:   balance.Status.String(),
		DispenserState: dispensers.Status.String(),
	}

	if balance.HasData() {
		sats := balance.Value
		v.Balance = &sats
		v.BalanceBTC = FormatBTC(sats)
	}

	var visible []models.Dispenser
	if dispensers.HasData() {
		visible = query.FilterVisible(dispensers.Value, showClosed)
	}
	v.Dispensers = b.Decorate(visible)
	if len(v.Dispensers) == 0 {
		v.Message = NoDispensersMessage
	}
	return v
}

// Decorate labels each dispenser and attaches its explorer link. The result
// is never nil.
func (b *Builder) Decorate(records []models.Dispenser) []models.DispenserView {
	out := make([]models.DispenserView, 0, len(records))
	for _, d := range records {
		out = append(out, models.DispenserView{
			Dispenser:   d,
			StatusLabel: d.StatusLabel(),
			ExplorerURL: b.ExplorerURL(d.TxHash),
		})
	}
	return out
}

// ExplorerURL returns the block explorer link of a tx
func (b *Builder) ExplorerURL(txHash string) string {
	if b.explorerTxURL == "" || txHash == "" {
		return ""
	}
	return fmt.Sprintf(b.explorerTxURL, txHash)
}

// networkOf names the network of a tracked address, empty when it does not
// parse
func networkOf(address string) string {
	network, err := validation.NetworkOf(address)
	if err != nil {
		return ""
	}
	return network
}

// FormatBTC renders a satoshi amount in BTC with its unit suffix
func FormatBTC(sats int64) string {
	return btcutil.Amount(sats).String()
}
