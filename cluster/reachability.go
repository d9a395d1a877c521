package cluster

import (
	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/status"
)

// ObserveReachability is spec §4.5's observeReachability: it records a
// boolean reachability signal for ua, as reported by the failure
// detector, and emits UnreachableMember/ReachableMember on the first
// signal recorded for ua and on every flip after that — repeating the
// same signal is a no-op.
func (c *Coordinator) ObserveReachability(ua address.UniqueAddress, reachable bool) {
	var emitted *Event

	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			return
		}
		m, known := c.members[ua]
		if !known {
			if c.cfg.Logger != nil {
				c.cfg.Logger.StaleReachability(ua)
			}
			return // reachability signals about unknown addresses are ignored, not errors.
		}
		prev, seen := c.reachability[ua]
		if seen && prev == reachable {
			return
		}
		c.reachability[ua] = reachable
		if reachable {
			emitted = &Event{Kind: ReachableMember, Member: m}
		} else {
			emitted = &Event{Kind: UnreachableMember, Member: m}
		}
	})

	if emitted != nil {
		c.emit(*emitted)
	}
}

// MarkNodeAsUnavailable is a convenience wrapper spec §4.5 mentions
// alongside observeReachability for callers that only ever push
// failure/recovery edges rather than a fresh boolean each tick.
func (c *Coordinator) MarkNodeAsUnavailable(ua address.UniqueAddress) {
	c.ObserveReachability(ua, false)
}

// MarkNodeAsAvailable is the recovery counterpart of MarkNodeAsUnavailable.
func (c *Coordinator) MarkNodeAsAvailable(ua address.UniqueAddress) {
	c.ObserveReachability(ua, true)
}

// Unreachable returns the addresses currently flagged unreachable.
func (c *Coordinator) Unreachable() []address.UniqueAddress {
	var out []address.UniqueAddress
	c.exec(func() {
		for ua, reachable := range c.reachability {
			if !reachable {
				out = append(out, ua)
			}
		}
	})
	return out
}

// IsConvergencePossible reports spec §4.5's convergence predicate: true
// iff no member is unreachable while in Joining, Up or Leaving status.
// WeaklyUp members never block convergence, and Down/Exiting/
// PreparingForShutdown/ReadyForShutdown members are already on their
// way out of the view.
func (c *Coordinator) IsConvergencePossible() bool {
	var possible bool
	c.exec(func() {
		possible = c.convergencePossibleLocked()
	})
	return possible
}

func (c *Coordinator) convergencePossibleLocked() bool {
	for ua, reachable := range c.reachability {
		if reachable {
			continue
		}
		m, known := c.members[ua]
		if !known {
			continue
		}
		if status.BlocksConvergence(m.Status) {
			return false
		}
	}
	return true
}
