// Package redact shortens ledger addresses and strips credentials from text
// before it reaches logs or audit payloads.
//
// Full addresses are still shown to the owning user in chat; only the
// operator-facing surfaces go through this package.
package redact

import "strings"

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Address keeps the human-readable prefix and the last four characters of a
// bech32-style address: "addr_test1qz…9xk4". Short values pass through.
func Address(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	head := addr
	if i := strings.LastIndexByte(addr, '1'); i > 0 && i < len(addr)-4 && i <= 12 {
		head = addr[:i+1]
	} else {
		head = addr[:6]
	}
	if len(head)+2 < len(addr)-4 {
		return head + addr[len(head):len(head)+2] + "…" + addr[len(addr)-4:]
	}
	return head + "…" + addr[len(addr)-4:]
}

// Map returns a shallow copy of m where string values under secret-looking
// keys are replaced and values under address-looking keys are shortened.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		str, ok := v.(string)
		switch {
		case ok && str != "" && isSensitiveKey(k):
			out[k] = placeholder
		case ok && isAddressKey(k):
			out[k] = Address(str)
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "token", "secret", "skey", "signing", "credential", "auth", "apikey", "project_id"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func isAddressKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "address") || lower == "recipient" || lower == "source"
}
