package bitcoin

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/stretchr/testify/require"

	"github.com/iho/satledger/internal/domain"
)

var (
	created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	nodeKeyBytes, _ = hex.DecodeString("e126f68f7eafcc8b74f54d269fe206be715000f94dac067d1c04a8ca3b2db734")
	nodeKey, _      = btcec.PrivKeyFromBytes(nodeKeyBytes)

	paymentHash = [32]byte{0x01, 0x02, 0x03, 0x04}
)

func encodeInvoice(t *testing.T, params *chaincfg.Params, opts ...func(*zpay32.Invoice)) string {
	t.Helper()

	opts = append([]func(*zpay32.Invoice){zpay32.Description("coffee")}, opts...)
	inv, err := zpay32.NewInvoice(params, paymentHash, created, opts...)
	require.NoError(t, err)

	encoded, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(nodeKey, chainhash.HashB(msg), true), nil
		},
	})
	require.NoError(t, err)
	return encoded
}

func newParser(params *chaincfg.Params, now time.Time) *Parser {
	return NewParser(params, clock.NewTestClock(now))
}

func TestParseOnchainAddresses(t *testing.T) {
	p := newParser(&chaincfg.MainNetParams, created)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "p2wpkh", raw: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", want: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
		{name: "p2sh", raw: "3EktnHQD7RiAE6uzMj2ZifT9YgRrkSgzQX", want: "3EktnHQD7RiAE6uzMj2ZifT9YgRrkSgzQX"},
		{name: "p2pkh", raw: "1RustyRX2oai4EYYDpQGWvEL62BBGqN9T", want: "1RustyRX2oai4EYYDpQGWvEL62BBGqN9T"},
		{name: "bip21 uri", raw: "bitcoin:bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4?amount=0.0001", want: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
		{name: "surrounding space", raw: "  3EktnHQD7RiAE6uzMj2ZifT9YgRrkSgzQX\n", want: "3EktnHQD7RiAE6uzMj2ZifT9YgRrkSgzQX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := p.Parse(tt.raw)
			require.NoError(t, err)
			require.Equal(t, domain.DestinationOnchain, dest.Kind)
			require.Equal(t, tt.want, dest.Address)
			require.Nil(t, dest.Amount)
		})
	}
}

func TestParseRejectsBadAddresses(t *testing.T) {
	p := newParser(&chaincfg.MainNetParams, created)

	for _, raw := range []string{
		"",
		"not-an-address",
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5", // bad checksum
		"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", // testnet
		"mk2QpYatsKicvFVuTAQLBryyccRXMUaGHP",         // testnet p2pkh
	} {
		_, err := p.Parse(raw)
		require.Truef(t, errors.Is(err, domain.ErrInvalidDestination), "%q: got %v", raw, err)
	}
}

func TestParsePaymentRequest(t *testing.T) {
	p := newParser(&chaincfg.MainNetParams, created.Add(time.Minute))

	encoded := encodeInvoice(t, &chaincfg.MainNetParams, zpay32.Amount(lnwire.MilliSatoshi(10_040_000)))

	for _, raw := range []string{encoded, "lightning:" + encoded} {
		dest, err := p.Parse(raw)
		require.NoError(t, err, raw)
		require.Equal(t, domain.DestinationLightning, dest.Kind)
		require.Equal(t, hex.EncodeToString(paymentHash[:]), dest.PaymentHash)
		require.NotNil(t, dest.Amount)
		require.EqualValues(t, 10_040, *dest.Amount)
	}
}

func TestParseZeroAmountPaymentRequest(t *testing.T) {
	p := newParser(&chaincfg.MainNetParams, created)

	dest, err := p.Parse(encodeInvoice(t, &chaincfg.MainNetParams))
	require.NoError(t, err)
	require.Nil(t, dest.Amount)
}

func TestParseRejectsUnusablePaymentRequests(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		params  *chaincfg.Params
		invoice func(t *testing.T) string
	}{
		{
			name:   "expired",
			now:    created.Add(2 * time.Hour),
			params: &chaincfg.MainNetParams,
			invoice: func(t *testing.T) string {
				return encodeInvoice(t, &chaincfg.MainNetParams, zpay32.Expiry(time.Hour))
			},
		},
		{
			name:   "other network",
			now:    created,
			params: &chaincfg.TestNet3Params,
			invoice: func(t *testing.T) string {
				return encodeInvoice(t, &chaincfg.MainNetParams)
			},
		},
		{
			name:   "fractional satoshi",
			now:    created,
			params: &chaincfg.MainNetParams,
			invoice: func(t *testing.T) string {
				return encodeInvoice(t, &chaincfg.MainNetParams, zpay32.Amount(lnwire.MilliSatoshi(1_500)))
			},
		},
		{
			name:   "garbage",
			now:    created,
			params: &chaincfg.MainNetParams,
			invoice: func(t *testing.T) string {
				return "lnbc1garbage"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser(tt.params, tt.now).Parse(tt.invoice(t))
			require.ErrorIs(t, err, domain.ErrInvalidDestination)
		})
	}
}

func TestNetworkParams(t *testing.T) {
	params, err := NetworkParams("regtest")
	require.NoError(t, err)
	require.Equal(t, chaincfg.RegressionNetParams.Name, params.Name)

	params, err = NetworkParams("")
	require.NoError(t, err)
	require.Equal(t, chaincfg.MainNetParams.Name, params.Name)

	_, err = NetworkParams("litecoin")
	require.Error(t, err)
}
