package cluster

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

// AckFunc is called once per other member still in the view when the
// leader asks whether everyone has acknowledged a Leaving member's
// departure. It is the caller's transport that actually round-trips
// the request; the coordinator only fans the calls out and collects
// the result, mirroring the teacher's coordinator.prepare/accept/commit
// use of errgroup for quorum fan-out.
type AckFunc func(ctx context.Context, from, leaving address.UniqueAddress) error

// LeaderActions is spec §4.5's leaderActions: the advances only the
// current leader of a datacenter may perform. Callers should invoke it
// once per leader tick for every datacenter the local node leads; it is
// a no-op (and returns false) for a datacenter the local node does not
// lead. When dc has no leader-eligible member yet, the member that is
// minimal under leaderOrder (unless it is Down) acts as leader here.
// Exiting and Down members are removed before Leaving members advance,
// so a member that reaches Exiting in this call stays Exiting until the
// next call.
func (c *Coordinator) LeaderActions(ctx context.Context, dc string, now time.Time, ack AckFunc) (bool, error) {
	var isLeader bool
	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			return
		}
		leader, found := c.leaderLocked(dc)
		if !found {
			// A datacenter whose members are all still Joining (a fresh
			// cluster) is led by its minimum under leaderOrder, so its
			// first members can be promoted to Up.
			if idx, ok := c.leaderOrderIdx[dc]; ok {
				if min, ok := idx.Min(); ok && min.Status != status.Down {
					leader, found = min.UniqueAddress, true
				}
			}
		}
		isLeader = found && leader == c.self
	})
	if !isLeader {
		return false, nil
	}

	c.promoteJoiningToUp(dc)
	c.promoteWeaklyUp(dc, now)
	c.advanceExitingAndDownToRemoved(dc, now)
	if err := c.advanceLeavingToExiting(ctx, dc, ack); err != nil {
		return true, err
	}
	return true, nil
}

// leaderLocked must only be called from within c.exec — it reads
// c.leaderOrderIdx without its own synchronization.
func (c *Coordinator) leaderLocked(dc string) (address.UniqueAddress, bool) {
	idx, ok := c.leaderOrderIdx[dc]
	if !ok {
		return address.UniqueAddress{}, false
	}
	min, ok := idx.Min()
	if !ok || !status.LeaderEligible(min.Status) {
		return address.UniqueAddress{}, false
	}
	return min.UniqueAddress, true
}

// detectLeaderChangeLocked must only be called from within c.exec. It
// compares dc's current leader against the last one observed, updates
// the cache, and returns a LeaderChanged event if it moved.
func (c *Coordinator) detectLeaderChangeLocked(dc string) (Event, bool) {
	newLeader, ok := c.leaderLocked(dc)
	old, hadOld := c.currentLeader[dc]
	if ok {
		if hadOld && old == newLeader {
			return Event{}, false
		}
		c.currentLeader[dc] = newLeader
		return Event{Kind: LeaderChanged, Member: c.members[newLeader]}, true
	}
	if hadOld {
		delete(c.currentLeader, dc)
		return Event{Kind: LeaderChanged}, true
	}
	return Event{}, false
}

// promoteJoiningToUp promotes every Joining member of dc to Up,
// assigning fresh upNumbers in join order (ties broken by address
// order) — but only while the cluster is fully reachable (no member is
// flagged unreachable), per spec §4.5.
func (c *Coordinator) promoteJoiningToUp(dc string) {
	var toEmit []Event
	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			return
		}
		if c.anyUnreachableLocked() {
			return
		}
		candidates := c.joiningCandidatesLocked(dc)
		for _, m := range candidates {
			next, err := m.PromoteToUp(c.allocateUpNumber(dc))
			if err != nil {
				c.poison(err)
			}
			c.putMember(next)
			toEmit = append(toEmit, Event{Kind: MemberUp, Member: next})
		}
		if ev, changed := c.detectLeaderChangeLocked(dc); changed {
			toEmit = append(toEmit, ev)
		}
	})
	for _, ev := range toEmit {
		c.emit(ev)
	}
}

// joiningCandidatesLocked returns dc's Joining members ordered by join
// time, ties broken by address order (spec §4.5).
func (c *Coordinator) joiningCandidatesLocked(dc string) []member.Member {
	var out []member.Member
	for _, m := range c.members {
		if m.DataCenter() != dc || m.Status != status.Joining {
			continue
		}
		out = append(out, m)
	}
	sortByJoinOrder(out, c.joinOrder)
	return out
}

func sortByJoinOrder(ms []member.Member, joinOrder map[address.UniqueAddress]joinInfo) {
	sort.Slice(ms, func(i, j int) bool {
		ti, tj := joinOrder[ms[i].UniqueAddress].joinedAt, joinOrder[ms[j].UniqueAddress].joinedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return member.CompareMember(ms[i], ms[j]) < 0
	})
}

// promoteWeaklyUp promotes up to cfg.WeaklyUpBatchLimit Joining members
// of dc that have waited longer than cfg.AllowWeaklyUpAfter while some
// other member is unreachable, provided the candidate itself is
// reachable. A zero AllowWeaklyUpAfter disables the feature entirely.
func (c *Coordinator) promoteWeaklyUp(dc string, now time.Time) {
	if c.cfg.AllowWeaklyUpAfter <= 0 {
		return
	}
	var toEmit []Event
	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			return
		}
		if !c.anyUnreachableLocked() {
			return
		}
		candidates := c.joiningCandidatesLocked(dc)
		promoted := 0
		for _, m := range candidates {
			if promoted >= c.cfg.WeaklyUpBatchLimit {
				break
			}
			joined, ok := c.joinOrder[m.UniqueAddress]
			if !ok || now.Sub(joined.joinedAt) < c.cfg.AllowWeaklyUpAfter {
				continue
			}
			if reachable, seen := c.reachability[m.UniqueAddress]; seen && !reachable {
				continue
			}
			next, err := m.WithStatus(status.WeaklyUp)
			if err != nil {
				c.poison(err)
			}
			c.putMember(next)
			toEmit = append(toEmit, Event{Kind: MemberWeaklyUp, Member: next})
			promoted++
		}
		if ev, changed := c.detectLeaderChangeLocked(dc); changed {
			toEmit = append(toEmit, ev)
		}
	})
	for _, ev := range toEmit {
		c.emit(ev)
	}
}

func (c *Coordinator) anyUnreachableLocked() bool {
	for _, reachable := range c.reachability {
		if !reachable {
			return true
		}
	}
	return false
}

// advanceLeavingToExiting fans an acknowledgement request out to every
// other known member for each Leaving member of dc, via errgroup — the
// same quorum-fan-out shape the teacher's coordinator.prepare uses for
// its own Paxos round. A Leaving member advances to Exiting only once
// every other member has acknowledged.
func (c *Coordinator) advanceLeavingToExiting(ctx context.Context, dc string, ack AckFunc) error {
	leaving, peers := c.collectLeavingAndPeers(dc)
	if len(leaving) == 0 {
		return nil
	}
	if ack == nil {
		return nil // no transport wired yet: nothing to advance on.
	}

	var toAdvance []member.Member
	for _, m := range leaving {
		g, gctx := errgroup.WithContext(ctx)
		for _, peer := range peers {
			if peer.UniqueAddress == m.UniqueAddress {
				continue
			}
			g.Go(func() error {
				return ack(gctx, peer.UniqueAddress, m.UniqueAddress)
			})
		}
		if err := g.Wait(); err == nil {
			toAdvance = append(toAdvance, m)
		}
	}

	var toEmit []Event
	c.exec(func() {
		for _, m := range toAdvance {
			cur, ok := c.members[m.UniqueAddress]
			if !ok || cur.Status != status.Leaving {
				continue // state moved on while we were fanning out acks.
			}
			next, err := cur.WithStatus(status.Exiting)
			if err != nil {
				c.poison(err)
			}
			c.putMember(next)
			toEmit = append(toEmit, Event{Kind: MemberExited, Member: next})
		}
		if ev, changed := c.detectLeaderChangeLocked(dc); changed {
			toEmit = append(toEmit, ev)
		}
	})
	for _, ev := range toEmit {
		c.emit(ev)
	}
	return nil
}

func (c *Coordinator) collectLeavingAndPeers(dc string) (leaving, peers []member.Member) {
	c.exec(func() {
		for _, m := range c.members {
			peers = append(peers, m)
			if m.DataCenter() == dc && m.Status == status.Leaving {
				leaving = append(leaving, m)
			}
		}
	})
	return leaving, peers
}

// advanceExitingAndDownToRemoved transitions Exiting and Down members
// of dc to Removed and tombstones their addresses (spec §4.5).
func (c *Coordinator) advanceExitingAndDownToRemoved(dc string, now time.Time) {
	var toEmit []Event
	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			return
		}
		for ua, m := range c.members {
			if m.DataCenter() != dc {
				continue
			}
			if m.Status != status.Exiting && m.Status != status.Down {
				continue
			}
			next, err := m.WithStatus(status.Removed)
			if err != nil {
				c.poison(err)
			}
			c.removeMember(ua)
			c.tombstones[ua] = now
			toEmit = append(toEmit, Event{Kind: MemberRemoved, Member: next})
		}
		if ev, changed := c.detectLeaderChangeLocked(dc); changed {
			toEmit = append(toEmit, ev)
		}
	})
	for _, ev := range toEmit {
		c.emit(ev)
	}
}

// ApplyDowning is spec §4.5's applyDowning: called by the downing
// policy to transition a member to Down. No-op if the member is
// unknown or already Down/Removed.
func (c *Coordinator) ApplyDowning(ua address.UniqueAddress) error {
	var emitted *Event
	var leaderChangeEmitted *Event
	var transitionErr error
	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			transitionErr = err
			return
		}
		m, ok := c.members[ua]
		if !ok {
			if c.cfg.Logger != nil {
				c.cfg.Logger.DowningOnNonMember(ua)
			}
			return
		}
		if m.Status == status.Down || m.Status == status.Removed {
			return
		}
		next, err := m.WithStatus(status.Down)
		if err != nil {
			c.poison(err)
		}
		c.putMember(next)
		emitted = &Event{Kind: MemberDowned, Member: next}
		if ev, changed := c.detectLeaderChangeLocked(next.DataCenter()); changed {
			leaderChangeEmitted = &ev
		}
	})
	if emitted != nil {
		c.emit(*emitted)
	}
	if leaderChangeEmitted != nil {
		c.emit(*leaderChangeEmitted)
	}
	return transitionErr
}

// RunDowningPolicy asks the configured DowningPolicy for the set of
// members to Down, given the current view and reachability, and
// applies its decision. It is the leader-tick counterpart of
// ApplyDowning for policies that decide in a batch rather than per
// address (spec §6's downing-provider-class collaborator).
func (c *Coordinator) RunDowningPolicy() error {
	if c.policy == nil {
		return nil
	}
	var view []member.Member
	var reachability map[address.UniqueAddress]bool
	c.exec(func() {
		view = c.snapshotMembers()
		reachability = make(map[address.UniqueAddress]bool, len(c.reachability))
		for ua, r := range c.reachability {
			reachability[ua] = r
		}
	})
	for _, ua := range c.policy.Decide(view, reachability) {
		if err := c.ApplyDowning(ua); err != nil {
			return err
		}
	}
	return nil
}
