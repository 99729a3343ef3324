package models

// UTXO represents an unspent output paying to a tracked address
type UTXO struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Value     int64  `json:"value"` // in satoshis
	Confirmed bool   `json:"confirmed"`
	Height    int64  `json:"block_height,omitempty"`
}

// SumValues returns the total value of utxos in satoshis
func SumValues(utxos []UTXO) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
