package gossip

import (
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

// Merge is spec §4.4's pickHighestPriority: it reconciles two member
// sets A and B, drawn from two gossip snapshots, against a shared
// tombstone map, into the single more-advanced view. Merge is pure,
// associative and commutative on inputs sharing a tombstone map — it
// performs no I/O and mutates neither input slice.
func Merge(a, b []member.Member, tombstones map[address.UniqueAddress]time.Time) []member.Member {
	type group struct {
		fromA, fromB *member.Member
	}
	groups := make(map[address.UniqueAddress]*group)

	for i := range a {
		m := a[i]
		g := groups[m.UniqueAddress]
		if g == nil {
			g = &group{}
			groups[m.UniqueAddress] = g
		}
		g.fromA = &m
	}
	for i := range b {
		m := b[i]
		g := groups[m.UniqueAddress]
		if g == nil {
			g = &group{}
			groups[m.UniqueAddress] = g
		}
		g.fromB = &m
	}

	out := make([]member.Member, 0, len(groups))
	for ua, g := range groups {
		if _, tombstoned := tombstones[ua]; tombstoned {
			continue
		}
		switch {
		case g.fromA != nil && g.fromB != nil:
			out = append(out, HighestPriorityOf(*g.fromA, *g.fromB))
		case g.fromA != nil:
			if status.RemoveUnreachableWithStatus(g.fromA.Status) {
				continue
			}
			out = append(out, *g.fromA)
		default:
			if status.RemoveUnreachableWithStatus(g.fromB.Status) {
				continue
			}
			out = append(out, *g.fromB)
		}
	}
	return out
}

// HighestPriorityOf is spec §4.4's highestPriorityOf. When both members
// have the same status, the older one (by member.Older) wins, to
// preserve stable UpNumbers; otherwise the member whose status ranks
// earlier in status.Precedence wins, since the lifecycle is monotonic
// and a further-along status observed anywhere is durable truth.
func HighestPriorityOf(m1, m2 member.Member) member.Member {
	if m1.Status == m2.Status {
		older, err := member.Older(m1, m2)
		if err != nil {
			// Same UniqueAddress implies same Address and, since roles
			// are immutable over a member's lifetime, the same
			// datacenter — this branch is unreachable in practice, but
			// fall back to the first operand rather than propagating a
			// cross-DC error out of a function spec §4.4 defines as
			// total.
			return m1
		}
		if older {
			return m1
		}
		return m2
	}
	if status.Precedence(m1.Status) <= status.Precedence(m2.Status) {
		return m1
	}
	return m2
}
