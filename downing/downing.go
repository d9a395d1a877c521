// Package downing implements the built-in downing-policy collaborator
// of spec.md §6, downing-provider-class "auto-down-unreachable-after":
// a node unreachable for longer than a configured duration is handed
// to the leader as a candidate to transition to Down.
package downing

import (
	"sync"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

// AutoDownUnreachableAfter tracks, for every address currently flagged
// unreachable, the moment it was first observed that way, and reports
// it as a downing candidate once it has stayed unreachable longer than
// After. Grounded on the teacher's gossip.Gossip.versions field — a
// mutex-guarded map keyed by node id — generalized from "latest
// version seen" to "since when has this address been unreachable."
type AutoDownUnreachableAfter struct {
	after time.Duration
	clock func() time.Time

	mu    sync.Mutex
	since map[address.UniqueAddress]time.Time
}

// New constructs a policy that downs a member once it has been
// unreachable continuously for at least after. A nil clock defaults to
// time.Now.
func New(after time.Duration, clock func() time.Time) *AutoDownUnreachableAfter {
	if clock == nil {
		clock = time.Now
	}
	return &AutoDownUnreachableAfter{
		after: after,
		clock: clock,
		since: make(map[address.UniqueAddress]time.Time),
	}
}

// Decide implements cluster.DowningPolicy. It also prunes the since
// map of any address no longer reported unreachable — a node that
// recovers before After elapses gets a fresh timer if it flaps again,
// matching the teacher's handleRecovery clearing failure state on
// spread success.
func (p *AutoDownUnreachableAfter) Decide(view []member.Member, reachability map[address.UniqueAddress]bool) []address.UniqueAddress {
	now := p.clock()

	p.mu.Lock()
	defer p.mu.Unlock()

	for ua := range p.since {
		if reachable, seen := reachability[ua]; !seen || reachable {
			delete(p.since, ua)
		}
	}

	var out []address.UniqueAddress
	for _, m := range view {
		if m.Status == status.Down || m.Status == status.Removed {
			continue
		}
		reachable, seen := reachability[m.UniqueAddress]
		if !seen || reachable {
			continue
		}
		first, tracked := p.since[m.UniqueAddress]
		if !tracked {
			p.since[m.UniqueAddress] = now
			continue
		}
		if now.Sub(first) >= p.after {
			out = append(out, m.UniqueAddress)
		}
	}
	return out
}
