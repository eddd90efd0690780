package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Network is a token network a withdrawal can be sent over.
type Network string

const (
	NetworkTRC20 Network = "TRC20"
	NetworkBEP20 Network = "BEP20"
	NetworkERC20 Network = "ERC20"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidAddress     = errors.New("invalid wallet address")

	tronAddressPattern = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ParseNetwork normalizes s and checks it is a supported network.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToUpper(strings.TrimSpace(s)))
	switch n {
	case NetworkTRC20, NetworkBEP20, NetworkERC20:
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, s)
}

// ValidateAddress checks that address is well formed for network.
func ValidateAddress(network Network, address string) error {
	var pattern *regexp.Regexp
	switch network {
	case NetworkTRC20:
		pattern = tronAddressPattern
	case NetworkBEP20, NetworkERC20:
		pattern = evmAddressPattern
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
	if !pattern.MatchString(address) {
		return fmt.Errorf("%w for %s", ErrInvalidAddress, network)
	}
	return nil
}
