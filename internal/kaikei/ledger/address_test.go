package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
)

func TestValidAddress(t *testing.T) {
	cases := []struct {
		name    string
		network ledger.Network
		addr    string
		want    bool
	}{
		{"testnet ok", ledger.Testnet, "addr_test1qz2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer3jcu5d8ps7", true},
		{"testnet uppercase ok", ledger.Testnet, "ADDR_TEST1QZ2FXV2UMYHTTKXYXP8X0DLPDT3K", true},
		{"mainnet ok", ledger.Mainnet, "addr1q9xy7z2fxv2umyhttkxyxp8x0dlpdt3k6cwng5", true},
		{"testnet address on mainnet", ledger.Mainnet, "addr_test1qz2fxv2umyhttkxyxp8x0dlpdt3k", false},
		{"mainnet address on testnet", ledger.Testnet, "addr1q9xy7z2fxv2umyhttkxyxp8x0dlpdt3k6cwng5", false},
		{"plain token", ledger.Testnet, "abc123xyz", false},
		{"non-bech32 symbol", ledger.Testnet, "addr_test1qz2fxv2umyhttkxyxp8x0dlpdt3kb", false},
		{"too short", ledger.Testnet, "addr_test1qz2", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ledger.ValidAddress(tc.network, tc.addr))
		})
	}
}

func TestEncodeData_UsesBech32Alphabet(t *testing.T) {
	got := ledger.EncodeData([]byte{0x00, 0xff, 0x10})
	assert.Equal(t, "qrl3q", got)
	assert.True(t, ledger.ValidAddress(ledger.Testnet, "addr_test1"+ledger.EncodeData(make([]byte, 28))))
}

func TestParseNetwork(t *testing.T) {
	n, err := ledger.ParseNetwork(" Mainnet ")
	assert.NoError(t, err)
	assert.Equal(t, ledger.Mainnet, n)

	n, err = ledger.ParseNetwork("preprod")
	assert.NoError(t, err)
	assert.Equal(t, ledger.Testnet, n)

	_, err = ledger.ParseNetwork("devnet")
	assert.Error(t, err)
}

func TestLovelaceConversion(t *testing.T) {
	assert.Equal(t, int64(5_000_000), ledger.Lovelace(5))
	assert.Equal(t, int64(1_500_000), ledger.Lovelace(1.5))
	assert.Equal(t, int64(100_000), ledger.Lovelace(0.1))
	assert.InDelta(t, 42.5, ledger.ADA(42_500_000), 1e-9)
}
