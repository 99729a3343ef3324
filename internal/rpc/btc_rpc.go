package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/dispenser-tracker/internal/config"
	"github.com/thanhnp/dispenser-tracker/internal/models"
	"github.com/thanhnp/dispenser-tracker/pkg/semver"
)

// scantxoutset first shipped in bitcoind 0.17
var minScanTxOutSetVersion = semver.NewSemver(0, 17, 0)

type scanTxOutSetResult struct {
	Success  bool `json:"success"`
	Unspents []struct {
		TxID   string  `json:"txid"`
		Vout   uint32  `json:"vout"`
		Amount float64 `json:"amount"` // in BTC
		Height int64   `json:"height"`
	} `json:"unspents"`
}

// BTCClient reads address UTXOs from a bitcoind node over JSON-RPC
type BTCClient struct {
	client *rpcclient.Client
	config *config.ChainConfig
}

// NewBTCClient creates a bitcoind client in HTTP POST mode
func NewBTCClient(cfg *config.ChainConfig) (*BTCClient, error) {
	var certs []byte
	var err error

	if !cfg.DisableTLS && cfg.Cert != "" {
		certs, err = os.ReadFile(cfg.Cert)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", err)
		}
	}

	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
		Certificates: certs,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	return &BTCClient{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the RPC client connection
func (c *BTCClient) Close() {
	c.client.Shutdown()
}

// CheckVersion ensures the node supports scantxoutset
func (c *BTCClient) CheckVersion() (semver.Semver, error) {
	info, err := c.client.GetNetworkInfo()
	if err != nil {
		return semver.Semver{}, fmt.Errorf("unable to get node version: %w", err)
	}

	ver := semver.FromBitcoindVersion(info.Version)
	if !ver.AtLeast(minScanTxOutSetVersion) {
		return ver, fmt.Errorf("bitcoind %v does not support scantxoutset, requires %v or newer",
			ver, minScanTxOutSetVersion)
	}
	log.Debugf("[BTC] Connected to bitcoind %v (%s)", ver, info.SubVersion)
	return ver, nil
}

// ListUnspent scans the UTXO set for outputs paying to address
func (c *BTCClient) ListUnspent(ctx context.Context, address string) ([]models.UTXO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	action, err := json.Marshal("start")
	if err != nil {
		return nil, err
	}
	descriptors, err := json.Marshal([]string{"addr(" + address + ")"})
	if err != nil {
		return nil, err
	}

	raw, err := c.client.RawRequest("scantxoutset", []json.RawMessage{action, descriptors})
	if err != nil {
		return nil, fmt.Errorf("scantxoutset: %w", err)
	}

	var result scanTxOutSetResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode scantxoutset result: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("scantxoutset for %s did not complete", address)
	}

	utxos := make([]models.UTXO, 0, len(result.Unspents))
	for _, u := range result.Unspents {
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("utxo %s:%d: %w", u.TxID, u.Vout, err)
		}
		utxos = append(utxos, models.UTXO{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     int64(amount),
			Confirmed: true,
			Height:    u.Height,
		})
	}
	return utxos, nil
}
