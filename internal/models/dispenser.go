package models

// DispenserStatusClosed is the status code Counterparty uses for a closed dispenser
const DispenserStatusClosed = 10

// Dispenser represents a Counterparty dispenser as returned by get_dispensers
type Dispenser struct {
	TxIndex          int64  `json:"tx_index"`
	TxHash           string `json:"tx_hash"`
	BlockIndex       int64  `json:"block_index"`
	Source           string `json:"source"`
	Asset            string `json:"asset"`
	GiveQuantity     int64  `json:"give_quantity"`
	EscrowQuantity   int64  `json:"escrow_quantity"`
	GiveRemaining    int64  `json:"give_remaining"`
	SatoshiRate      int64  `json:"satoshirate"`
	Status           int    `json:"status"`
	OracleAddress    string `json:"oracle_address,omitempty"`
	LastStatusTxHash string `json:"last_status_tx_hash,omitempty"`
	Origin           string `json:"origin,omitempty"`
	DispenseCount    int64  `json:"dispense_count,omitempty"`
}

// IsClosed reports whether the dispenser is closed
func (d *Dispenser) IsClosed() bool {
	return d.Status == DispenserStatusClosed
}

// StatusLabel returns "closed" or "open"
func (d *Dispenser) StatusLabel() string {
	if d.IsClosed() {
		return "closed"
	}
	return "open"
}
