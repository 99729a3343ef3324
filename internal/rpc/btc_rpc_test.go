package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/dispenser-tracker/internal/config"
	"github.com/thanhnp/dispenser-tracker/internal/models"
)

// newFakeBitcoind serves the two RPCs the BTCClient uses
func newFakeBitcoind(t *testing.T, version int32) *BTCClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     json.RawMessage   `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result any
		switch req.Method {
		case "getnetworkinfo":
			result = map[string]any{
				"version":         version,
				"subversion":      "/Satoshi:test/",
				"protocolversion": 70016,
			}
		case "scantxoutset":
			require.Len(t, req.Params, 2)
			assert.JSONEq(t, `"start"`, string(req.Params[0]))
			assert.JSONEq(t, `["addr(`+testAddress+`)"]`, string(req.Params[1]))
			result = map[string]any{
				"success": true,
				"unspents": []map[string]any{
					{"txid": txHashA, "vout": 0, "amount": 0.000005, "height": 800000},
					{"txid": txHashB, "vout": 1, "amount": 0.000015, "height": 800001},
				},
				"total_amount": 0.00002,
			}
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": result,
			"error":  nil,
			"id":     req.ID,
		})
	}))
	t.Cleanup(srv.Close)

	client, err := NewBTCClient(&config.ChainConfig{
		Host:       strings.TrimPrefix(srv.URL, "http://"),
		User:       "user",
		Pass:       "pass",
		DisableTLS: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestBTCClientListUnspent(t *testing.T) {
	client := newFakeBitcoind(t, 250100)

	utxos, err := client.ListUnspent(context.Background(), testAddress)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, int64(500), utxos[0].Value)
	assert.Equal(t, int64(1500), utxos[1].Value)
	assert.Equal(t, int64(2000), models.SumValues(utxos))
}

func TestBTCClientCheckVersion(t *testing.T) {
	ver, err := newFakeBitcoind(t, 250100).CheckVersion()
	require.NoError(t, err)
	assert.Equal(t, "25.1.0", ver.String())

	_, err = newFakeBitcoind(t, 160300).CheckVersion()
	assert.Error(t, err)
}

func TestBTCClientCancelledContext(t *testing.T) {
	client := newFakeBitcoind(t, 250100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListUnspent(ctx, testAddress)
	assert.ErrorIs(t, err, context.Canceled)
}
