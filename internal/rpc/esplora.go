package rpc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thanhnp/dispenser-tracker/internal/models"
)

type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// EsploraClient reads address UTXOs from an Esplora compatible API
// such as mempool.space
type EsploraClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewEsploraClient creates a client rooted at baseURL
func NewEsploraClient(baseURL string, timeout time.Duration) *EsploraClient {
	return &EsploraClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListUnspent returns the unspent outputs of address
func (c *EsploraClient) ListUnspent(ctx context.Context, address string) ([]models.UTXO, error) {
	u := c.baseURL + "/address/" + url.PathEscape(address) + "/utxo"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get utxos: %w", err)
	}
	defer resp.Body.Close()

	var raw []esploraUTXO
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("get utxos: %w", err)
	}

	utxos := make([]models.UTXO, 0, len(raw))
	for _, r := range raw {
		if r.Value < 0 {
			return nil, fmt.Errorf("utxo %s:%d has negative value %d", r.TxID, r.Vout, r.Value)
		}
		utxos = append(utxos, models.UTXO{
			TxID:      r.TxID,
			Vout:      r.Vout,
			Value:     r.Value,
			Confirmed: r.Status.Confirmed,
			Height:    r.Status.BlockHeight,
		})
	}
	return utxos, nil
}
