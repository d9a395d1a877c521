package member

import (
	"errors"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/status"
)

// ErrCrossDatacenterAgeCompare is returned by AgeOrder when the two
// members belong to different datacenters — spec §4.1: cross-DC age
// comparison is meaningless because UpNumber counters may collide
// across datacenters.
var ErrCrossDatacenterAgeCompare = errors.New("member: cannot compare age across datacenters")

// CompareMember is the canonical member order of spec §4.1: compare by
// UniqueAddress alone.
func CompareMember(a, b Member) int {
	return address.CompareUnique(a.UniqueAddress, b.UniqueAddress)
}

// Older reports whether a is older than b under spec §4.1's ageOrder:
// same datacenter, and (lower UpNumber, or equal UpNumber with lower
// address order). It returns ErrCrossDatacenterAgeCompare, deterministically,
// when the datacenters differ (spec §8 property 9).
func Older(a, b Member) (bool, error) {
	if a.DataCenter() != b.DataCenter() {
		return false, ErrCrossDatacenterAgeCompare
	}
	if a.UpNumber != b.UpNumber {
		return a.UpNumber < b.UpNumber, nil
	}
	return address.Compare(a.Address(), b.Address()) < 0, nil
}

// AgeOrder is Older expressed as a three-way comparator for use with
// sort.Slice-style call sites that need -1/0/1 rather than a boolean. It
// panics on cross-datacenter input — its caller, the coordinator's
// per-datacenter age index, only ever compares members of one
// datacenter, so the panic signals a caller bug rather than a reachable
// runtime condition.
func AgeOrder(a, b Member) int {
	if a.UniqueAddress == b.UniqueAddress {
		return 0
	}
	older, err := Older(a, b)
	if err != nil {
		panic(err)
	}
	if older {
		return -1
	}
	return 1
}

// leaderRank partitions statuses into the two-tier order spec §4.1
// describes for leaderOrder: eligible statuses first (ordered among
// themselves by UniqueAddress as usual), then the excluded statuses in
// the listed precedence (Down last-most, then Exiting, then Joining,
// then WeaklyUp).
func leaderRank(s status.MemberStatus) int {
	switch s {
	case status.WeaklyUp:
		return 1
	case status.Joining:
		return 2
	case status.Exiting:
		return 3
	case status.Down:
		return 4
	default:
		return 0
	}
}

// LeaderOrder is spec §4.1's leaderOrder: CompareMember, except members
// in Down, Exiting, Joining or WeaklyUp sort strictly after any member
// not in one of those statuses, in that precedence.
func LeaderOrder(a, b Member) int {
	ra, rb := leaderRank(a.Status), leaderRank(b.Status)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	return CompareMember(a, b)
}
