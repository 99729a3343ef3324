package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/thanhnp/dispenser-tracker/internal/config"
	"github.com/thanhnp/dispenser-tracker/internal/models"
	"github.com/thanhnp/dispenser-tracker/pkg/semver"
)

// Compatible Counterparty JSON-RPC API versions
var compatibleCounterpartyAPIs = []semver.Semver{
	semver.NewSemver(9, 0, 0),
	semver.NewSemver(10, 0, 0),
}

// Filter is a single Counterparty table filter
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// TableQuery holds the parameters accepted by the get_<table> methods
type TableQuery struct {
	Filters  []Filter `json:"filters,omitempty"`
	OrderBy  string   `json:"order_by,omitempty"`
	OrderDir string   `json:"order_dir,omitempty"`
}

// RunningInfo is the subset of get_running_info the tracker reads
type RunningInfo struct {
	ServerReady     bool   `json:"server_ready"`
	VersionMajor    uint32 `json:"version_major"`
	VersionMinor    uint32 `json:"version_minor"`
	VersionRevision uint32 `json:"version_revision"`
	Network         string `json:"network,omitempty"`
}

// Version returns the advertised API version
func (r *RunningInfo) Version() semver.Semver {
	return semver.NewSemver(r.VersionMajor, r.VersionMinor, r.VersionRevision)
}

// RPCError is a JSON-RPC level error returned by the Counterparty server
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("counterparty rpc error %d: %s", e.Code, e.Message)
}

// Retryable reports whether repeating the call may succeed
func (e *RPCError) Retryable() bool {
	return false
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// CounterpartyClient talks to a Counterparty server's JSON-RPC API
type CounterpartyClient struct {
	url        string
	user       string
	pass       string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewCounterpartyClient creates a client for the configured endpoint
func NewCounterpartyClient(cfg *config.CounterpartyConfig) *CounterpartyClient {
	return &CounterpartyClient{
		url:  cfg.URL,
		user: cfg.User,
		pass: cfg.Pass,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// call performs a JSON-RPC 2.0 request and decodes the result into out
func (c *CounterpartyClient) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := decodeResponse(resp, &rpcResp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// GetDispensers returns the dispensers whose source is one of addresses,
// ordered by ascending satoshi rate.
func (c *CounterpartyClient) GetDispensers(ctx context.Context, addresses []string) ([]models.Dispenser, error) {
	if len(addresses) == 0 {
		return []models.Dispenser{}, nil
	}

	query := TableQuery{
		Filters:  []Filter{{Field: "source", Op: "IN", Value: addresses}},
		OrderBy:  "satoshirate",
		OrderDir: "asc",
	}

	var dispensers []models.Dispenser
	if err := c.call(ctx, "get_dispensers", query, &dispensers); err != nil {
		return nil, err
	}

	for i := range dispensers {
		if _, err := chainhash.NewHashFromStr(dispensers[i].TxHash); err != nil {
			return nil, fmt.Errorf("dispenser %d has malformed tx hash %q: %w", i, dispensers[i].TxHash, err)
		}
	}
	if dispensers == nil {
		dispensers = []models.Dispenser{}
	}
	return dispensers, nil
}

// GetRunningInfo returns the server status
func (c *CounterpartyClient) GetRunningInfo(ctx context.Context) (*RunningInfo, error) {
	var info RunningInfo
	if err := c.call(ctx, "get_running_info", map[string]any{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CheckVersion ensures the server speaks a compatible API version
func (c *CounterpartyClient) CheckVersion(ctx context.Context) (semver.Semver, error) {
	info, err := c.GetRunningInfo(ctx)
	if err != nil {
		return semver.Semver{}, err
	}

	ver := info.Version()
	if !semver.AnyCompatible(compatibleCounterpartyAPIs, ver) {
		return ver, fmt.Errorf("counterparty server does not have a compatible API version. "+
			"Advertises %v but requires one of: %v", ver, compatibleCounterpartyAPIs)
	}
	return ver, nil
}
