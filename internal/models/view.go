package models

// DispenserView is a dispenser as presented for one tracked address
type DispenserView struct {
	Dispenser
	StatusLabel string `json:"status_label"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// AddressView is the rendered state of one tracked address
type AddressView struct {
	Address        string          `json:"address"`
	Network        string          `json:"network,omitempty"`
	Balance        *int64          `json:"balance,omitempty"` // in satoshis, absent when unknown
	BalanceBTC     string          `json:"balance_btc,omitempty"`
	BalanceState   string          `json:"balance_state"`
	Dispensers     []DispenserView `json:"dispensers"`
	DispenserState string          `json:"dispenser_state"`
	Message        string          `json:"message,omitempty"`
}

// Dashboard is the composed view over every tracked address
type Dashboard struct {
	ShowClosed bool          `json:"show_closed"`
	Count      int           `json:"count"`
	Addresses  []AddressView `json:"addresses"`
}
