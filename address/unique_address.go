package address

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// UniqueAddress pairs an Address with a per-process random uid, letting
// the core distinguish a restarted process on the same host:port from
// the one that previously held it. Equality is componentwise; CompareUnique
// orders by Address first, then Uid.
type UniqueAddress struct {
	Address Address
	Uid     int64
}

// CompareUnique orders UniqueAddress by address order, then Uid ascending.
func CompareUnique(a, b UniqueAddress) int {
	if c := Compare(a.Address, b.Address); c != 0 {
		return c
	}
	switch {
	case a.Uid < b.Uid:
		return -1
	case a.Uid > b.Uid:
		return 1
	default:
		return 0
	}
}

// NewUid draws a process-lifetime-unique random int64, per spec §3: "a
// process-lifetime-unique random number chosen on startup". A failed
// read from the system CSPRNG is a startup-time fatal condition for the
// caller, not something this package can recover from, so it panics —
// mirrored from the teacher's own main.go, which panics on failed
// net.Listen rather than degrading.
func NewUid() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("address: failed to read random uid: " + err.Error())
	}
	n := int64(binary.BigEndian.Uint64(buf[:]))
	if n == math.MinInt64 {
		// avoid the one value whose absolute value has no positive
		// representation, so downstream code that takes |Uid| never
		// overflows.
		n++
	}
	return n
}

func (ua UniqueAddress) String() string {
	return ua.Address.String()
}
