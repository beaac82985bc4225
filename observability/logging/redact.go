package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the placeholder substituted for sensitive values in
// log output.
const RedactedValue = "[REDACTED]"

// Keys that may always be logged verbatim. Everything else passed
// through MaskField is replaced with the placeholder; identifiers such
// as club, table and player IDs are operational data, not secrets.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"method":    {},
	"source":    {},
	"addr":      {},
	"clubid":    {},
	"tableid":   {},
	"playerid":  {},
	"handid":    {},
}

// IsAllowlisted reports whether the key is exempt from redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the keys that may be
// logged without masking. Tests pin this list so credential-bearing
// keys cannot slip in unnoticed.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue redacts non-empty values. Empty strings pass through so
// absent fields stay visibly absent.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog.Attr whose value is redacted unless the key
// is allowlisted. Use it wherever a token or secret could reach a log
// line, such as rejected RPC credentials.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
