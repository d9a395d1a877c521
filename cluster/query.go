package cluster

import (
	"time"

	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

// Members returns a snapshot of the current member set, sorted by
// canonical address order. Spec §4.5's members() query.
func (c *Coordinator) Members() []member.Member {
	var out []member.Member
	c.exec(func() {
		out = c.snapshotMembers()
	})
	return out
}

// Leader returns the current leader of dc: the minimum member under
// leaderOrder restricted to leader-eligible statuses (Up, Leaving,
// PreparingForShutdown, ReadyForShutdown). The second return value is
// false if dc has no leader-eligible member.
func (c *Coordinator) Leader(dc string) (member.Member, bool) {
	var out member.Member
	var found bool
	c.exec(func() {
		ua, ok := c.leaderLocked(dc)
		if !ok {
			return
		}
		out, found = c.members[ua], true
	})
	return out, found
}

// Oldest returns the oldest member of dc under ageOrder, excluding Down
// and Removed members. The second return value is false if dc has no
// eligible member.
func (c *Coordinator) Oldest(dc string) (member.Member, bool) {
	var out member.Member
	var found bool
	c.exec(func() {
		idx, ok := c.ageOrderIdx[dc]
		if !ok {
			return
		}
		idx.Ascend(func(m member.Member) bool {
			if m.Status == status.Down || m.Status == status.Removed {
				return true // keep scanning past excluded statuses.
			}
			out, found = m, true
			return false
		})
	})
	return out, found
}

// PruneTombstones drops tombstones older than cfg.TombstoneTTL as of
// now. Spec is silent on tombstone retention length; DESIGN.md
// resolves it to a bounded TTL so the tombstone map does not grow
// without bound over the life of a long-running cluster.
func (c *Coordinator) PruneTombstones(now time.Time) int {
	var pruned int
	c.exec(func() {
		if c.cfg.TombstoneTTL <= 0 {
			return
		}
		for ua, t := range c.tombstones {
			if now.Sub(t) > c.cfg.TombstoneTTL {
				delete(c.tombstones, ua)
				pruned++
			}
		}
	})
	return pruned
}
