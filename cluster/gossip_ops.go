package cluster

import (
	"strings"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/gossip"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

// Join installs the local node's own Joining member into the view.
// It must be called once, before the first ObserveGossip or
// LeaderActions call, and returns MissingDatacenterRole if roles lacks
// a dc- role (spec §7).
func (c *Coordinator) Join(roles []string, appVersion member.AppVersion) error {
	m, err := member.New(c.self, roles, appVersion)
	if err != nil {
		return err
	}
	var toEmit []Event
	var joinErr error
	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			joinErr = err
			return
		}
		c.putMember(m)
		c.joinOrder[c.self] = joinInfo{joinedAt: c.clock()}
		toEmit = append(toEmit, Event{Kind: MemberJoined, Member: m})
		if ev, changed := c.detectLeaderChangeLocked(m.DataCenter()); changed {
			toEmit = append(toEmit, ev)
		}
	})
	for _, ev := range toEmit {
		c.emit(ev)
	}
	return joinErr
}

// ObserveGossip is spec §4.5's observeGossip: merges the remote
// snapshot into the local view via gossip.Merge, drops members whose
// address is tombstoned locally (TombstoneViolation, spec §7) or whose
// roles lack a datacenter prefix (MissingDatacenterRole, spec §7), and
// returns the members that were added or whose status or UpNumber
// changed as a result — useful to callers that want to know without
// subscribing. Members dropped from the view are not returned.
//
// ObserveGossip is idempotent: feeding it the same snapshot twice
// produces no further change, since gossip.Merge is itself idempotent.
func (c *Coordinator) ObserveGossip(remote gossip.Snapshot) []member.Member {
	var changed []member.Member
	var toEmit []Event

	c.exec(func() {
		if err := c.checkPoisoned(); err != nil {
			return
		}
		if _, tombstoned := c.tombstones[remote.Sender]; tombstoned {
			if c.cfg.Logger != nil {
				c.cfg.Logger.TombstoneViolation(remote.Sender)
			}
			return
		}

		touchedDCs := make(map[string]bool)

		// Merge the remote tombstones into ours first — a tombstone
		// learned from a peer is as durable as one applied locally.
		for ua, t := range remote.Tombstones {
			if _, ok := c.tombstones[ua]; !ok {
				c.tombstones[ua] = t
				if old, ok := c.members[ua]; ok {
					touchedDCs[old.DataCenter()] = true
				}
				c.removeMember(ua)
			}
		}

		validRemote := make([]member.Member, 0, len(remote.Members))
		for _, m := range remote.Members {
			if countDatacenterRoles(m.Roles) != 1 {
				if c.cfg.Logger != nil {
					c.cfg.Logger.MissingDatacenterRole(m.UniqueAddress)
				}
				continue
			}
			validRemote = append(validRemote, m)
		}

		local := c.snapshotMembersLocked()
		merged := gossip.Merge(local, validRemote, c.tombstones)

		mergedByUA := make(map[address.UniqueAddress]member.Member, len(merged))
		for _, m := range merged {
			mergedByUA[m.UniqueAddress] = m
		}

		for ua, old := range c.members {
			if _, stillPresent := mergedByUA[ua]; !stillPresent {
				touchedDCs[old.DataCenter()] = true
				c.removeMember(ua)
			}
		}

		for ua, m := range mergedByUA {
			old, existed := c.members[ua]
			if existed && old.Status == m.Status && old.UpNumber == m.UpNumber {
				continue
			}
			c.putMember(m)
			if !existed {
				if _, seen := c.joinOrder[ua]; !seen {
					c.joinOrder[ua] = joinInfo{joinedAt: c.clock()}
				}
			}
			changed = append(changed, m)
			toEmit = append(toEmit, statusEvent(m))
			touchedDCs[m.DataCenter()] = true
		}

		for dc := range touchedDCs {
			if ev, leaderChanged := c.detectLeaderChangeLocked(dc); leaderChanged {
				toEmit = append(toEmit, ev)
			}
		}
	})

	for _, ev := range toEmit {
		c.emit(ev)
	}
	return changed
}

func countDatacenterRoles(roles []string) int {
	n := 0
	for _, r := range roles {
		if strings.HasPrefix(r, member.DataCenterRolePrefix) {
			n++
		}
	}
	return n
}

func statusEvent(m member.Member) Event {
	switch m.Status {
	case status.Joining:
		return Event{Kind: MemberJoined, Member: m}
	case status.WeaklyUp:
		return Event{Kind: MemberWeaklyUp, Member: m}
	case status.Up:
		return Event{Kind: MemberUp, Member: m}
	case status.Leaving:
		return Event{Kind: MemberLeft, Member: m}
	case status.Exiting:
		return Event{Kind: MemberExited, Member: m}
	case status.Down:
		return Event{Kind: MemberDowned, Member: m}
	case status.Removed:
		return Event{Kind: MemberRemoved, Member: m}
	default:
		return Event{Kind: MemberUp, Member: m}
	}
}

// snapshotMembersLocked is snapshotMembers without the defensive copy
// of each member's Roles slice — callers here only read Roles, never
// mutate it, and Merge never mutates its inputs, so the extra copy
// snapshotMembers exists to protect external callers isn't needed here.
func (c *Coordinator) snapshotMembersLocked() []member.Member {
	out := make([]member.Member, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	return out
}

// Snapshot returns the current view as a gossip.Snapshot ready for a
// transport to disseminate, including every live tombstone.
func (c *Coordinator) Snapshot() gossip.Snapshot {
	var snap gossip.Snapshot
	c.exec(func() {
		snap = gossip.Snapshot{
			Sender:     c.self,
			Members:    c.snapshotMembersLocked(),
			Tombstones: cloneTombstones(c.tombstones),
		}
	})
	return snap.Clone()
}

func cloneTombstones(in map[address.UniqueAddress]time.Time) map[address.UniqueAddress]time.Time {
	out := make(map[address.UniqueAddress]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
