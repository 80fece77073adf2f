// Package bitcoin decodes send destinations: on-chain addresses and BOLT 11
// payment requests.
package bitcoin

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/iho/satledger/internal/domain"
)

// NetworkParams maps a configured network name to its chain parameters.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %q", network)
	}
}

// Parser implements usecase.DestinationParser for one network.
type Parser struct {
	params *chaincfg.Params
	clock  clock.Clock
}

// NewParser creates a parser bound to params. Payment requests are checked
// for expiry against clk.
func NewParser(params *chaincfg.Params, clk clock.Clock) *Parser {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Parser{params: params, clock: clk}
}

// Parse decodes raw into a destination. URI schemes ("bitcoin:",
// "lightning:") and BIP 21 query parameters are stripped.
func (p *Parser) Parse(raw string) (domain.Destination, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Destination{}, fmt.Errorf("%w: empty destination", domain.ErrInvalidDestination)
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "lightning:"):
		return p.parseInvoice(s[len("lightning:"):])
	case strings.HasPrefix(lower, "bitcoin:"):
		s = s[len("bitcoin:"):]
		if i := strings.IndexByte(s, '?'); i >= 0 {
			s = s[:i]
		}
		return p.parseAddress(s)
	case strings.HasPrefix(lower, "ln"):
		return p.parseInvoice(s)
	default:
		return p.parseAddress(s)
	}
}

func (p *Parser) parseAddress(s string) (domain.Destination, error) {
	addr, err := btcutil.DecodeAddress(s, p.params)
	if err != nil {
		return domain.Destination{}, fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
	}
	if !addr.IsForNet(p.params) {
		return domain.Destination{}, fmt.Errorf("%w: address is not for %s", domain.ErrInvalidDestination, p.params.Name)
	}

	return domain.Destination{
		Raw:     s,
		Kind:    domain.DestinationOnchain,
		Address: addr.EncodeAddress(),
	}, nil
}

func (p *Parser) parseInvoice(s string) (domain.Destination, error) {
	inv, err := zpay32.Decode(s, p.params)
	if err != nil {
		return domain.Destination{}, fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
	}
	if inv.PaymentHash == nil {
		return domain.Destination{}, fmt.Errorf("%w: payment request without payment hash", domain.ErrInvalidDestination)
	}

	expiresAt := inv.Timestamp.Add(inv.Expiry())
	if !p.clock.Now().Before(expiresAt) {
		return domain.Destination{}, fmt.Errorf("%w: payment request expired at %s", domain.ErrInvalidDestination, expiresAt.UTC())
	}

	dest := domain.Destination{
		Raw:         s,
		Kind:        domain.DestinationLightning,
		PaymentHash: hex.EncodeToString(inv.PaymentHash[:]),
	}

	if inv.MilliSat != nil {
		msat := int64(*inv.MilliSat)
		if msat%1000 != 0 {
			return domain.Destination{}, fmt.Errorf("%w: amount of %d msat is not a whole satoshi", domain.ErrInvalidDestination, msat)
		}
		sats := int64(inv.MilliSat.ToSatoshis())
		dest.Amount = &sats
	}

	return dest, nil
}
