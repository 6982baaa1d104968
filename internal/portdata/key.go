// Package portdata holds the per-port data model of a gateway: canonical port keys,
// the row-level pattern extractor, per-attribute datasets and merged port records.
package portdata

import (
	"fmt"
	"strconv"
	"strings"
)

// PortCount is the number of SIM slots on a gateway.
const PortCount = 64

// Key is a canonical port identifier of the form A{n}, 1 <= n <= 64.
type Key string

// KeyFor returns the canonical key for port index n.
func KeyFor(n int) Key {
	return Key("A" + strconv.Itoa(n))
}

// Index returns the numeric port index of k, or 0 if k is not canonical.
func (k Key) Index() int {
	s := string(k)
	if len(s) < 2 || s[0] != 'A' {
		return 0
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 1 || n > PortCount {
		return 0
	}
	return n
}

// Valid reports whether k is a canonical in-range key.
func (k Key) Valid() bool {
	return k.Index() != 0
}

// AllKeys returns A1..A64 in port order.
func AllKeys() []Key {
	keys := make([]Key, PortCount)
	for i := range keys {
		keys[i] = KeyFor(i + 1)
	}
	return keys
}

// NormalizeKey converts a raw port token ("A7", "7A", "a07") to its canonical form.
func NormalizeKey(raw string) (Key, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var digits string
	switch {
	case strings.HasPrefix(s, "A"):
		digits = s[1:]
	case strings.HasSuffix(s, "A"):
		digits = s[:len(s)-1]
	default:
		return "", fmt.Errorf("not a port token: %q", raw)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", fmt.Errorf("not a port token: %q", raw)
	}
	if n < 1 || n > PortCount {
		return "", fmt.Errorf("port %d out of range 1..%d", n, PortCount)
	}
	return KeyFor(n), nil
}
