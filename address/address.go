// Package address defines the identity primitives of the membership
// core: Address, a host:port locator, and UniqueAddress, which
// distinguishes reincarnations of the same locator.
package address

import (
	"strconv"
	"strings"
)

// Address is a logical node locator. Two nodes with the same Host:Port
// but different incarnations compare equal as an Address; UniqueAddress
// is what actually distinguishes them.
type Address struct {
	Protocol   string
	SystemName string
	Host       string
	Port       int
}

// Compare returns -1, 0 or 1 per the total order of spec §3: by Host
// (empty string if absent), then Port (0 if absent). Protocol and
// SystemName are not part of the order — they identify the runtime the
// address belongs to, not its position in it.
func Compare(a, b Address) int {
	if c := strings.Compare(a.Host, b.Host); c != 0 {
		return sign(c)
	}
	if a.Port < b.Port {
		return -1
	}
	if a.Port > b.Port {
		return 1
	}
	return 0
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	default:
		return 0
	}
}

// String renders the address in protocol://system@host:port form, used
// for logging and as the textual half of the wire encoding.
func (a Address) String() string {
	var b strings.Builder
	if a.Protocol != "" {
		b.WriteString(a.Protocol)
		b.WriteString("://")
	}
	if a.SystemName != "" {
		b.WriteString(a.SystemName)
		b.WriteByte('@')
	}
	b.WriteString(a.Host)
	if a.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(a.Port))
	}
	return b.String()
}
