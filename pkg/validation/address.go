// Package validation checks user supplied Bitcoin addresses.
package validation

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrEmptyAddress is returned for an empty input
var ErrEmptyAddress = errors.New("address cannot be empty")

// SupportedNetworks lists the networks an address may belong to
var SupportedNetworks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
	&chaincfg.SigNetParams,
}

// ValidateAddress checks that addr is a well formed P2PKH, P2SH, P2WPKH,
// P2WSH or P2TR address on one of the supported networks.
func ValidateAddress(addr string) error {
	_, err := ParseAddress(addr)
	return err
}

// ParseAddress decodes addr and returns the decoded address together with
// the network it belongs to.
func ParseAddress(addr string) (btcutil.Address, error) {
	if addr == "" {
		return nil, ErrEmptyAddress
	}

	var lastErr error
	for _, net := range SupportedNetworks {
		decoded, err := btcutil.DecodeAddress(addr, net)
		if err != nil {
			lastErr = err
			continue
		}

		// DecodeAddress also accepts a hex encoded public key
		if _, ok := decoded.(*btcutil.AddressPubKey); ok {
			return nil, fmt.Errorf("%s is a public key, not an address", addr)
		}

		if !decoded.IsForNet(net) {
			lastErr = fmt.Errorf("address not valid for %s", net.Name)
			continue
		}
		return decoded, nil
	}

	return nil, fmt.Errorf("invalid bitcoin address %q: %w", addr, lastErr)
}

// NetworkOf returns the name of the first supported network addr decodes for
func NetworkOf(addr string) (string, error) {
	decoded, err := ParseAddress(addr)
	if err != nil {
		return "", err
	}
	for _, net := range SupportedNetworks {
		if decoded.IsForNet(net) {
			return net.Name, nil
		}
	}
	return "", fmt.Errorf("no supported network for %s", addr)
}
