package ledger

import "strings"

// bech32Charset is the 32-symbol data alphabet from BIP-173.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// ValidAddress reports whether addr is shaped like a payment address for
// network: the right human-readable prefix followed by bech32 data symbols.
// The checksum is not verified.
func ValidAddress(network Network, addr string) bool {
	addr = strings.ToLower(addr)
	prefix := network.AddressPrefix()
	if !strings.HasPrefix(addr, prefix) {
		return false
	}
	if network == Mainnet && strings.HasPrefix(addr, "addr_test") {
		return false
	}
	data := addr[len(prefix):]
	if len(data) < 8 {
		return false
	}
	for _, r := range data {
		if !strings.ContainsRune(bech32Charset, r) {
			return false
		}
	}
	return true
}

// EncodeData maps raw bytes onto the bech32 data alphabet, five bits per
// symbol, padding the final group with zeros.
func EncodeData(raw []byte) string {
	var b strings.Builder
	var acc, bits uint
	for _, c := range raw {
		acc = acc<<8 | uint(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			b.WriteByte(bech32Charset[(acc>>bits)&31])
		}
	}
	if bits > 0 {
		b.WriteByte(bech32Charset[(acc<<(5-bits))&31])
	}
	return b.String()
}
