// Package gossip implements the pure, stateless half of the
// membership core's dissemination mechanism: the snapshot type
// exchanged between coordinators, the view merger that reconciles two
// snapshots, and a wire codec for putting a snapshot on the network.
package gossip

import (
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
)

// Snapshot is the contents a transport (spec §6) carries between
// coordinators: the sender's identity, its member set, and its
// tombstone map. Framing and serialization are the transport's concern
// — this type is what gets framed.
type Snapshot struct {
	Sender     address.UniqueAddress
	Members    []member.Member
	Tombstones map[address.UniqueAddress]time.Time
}

// Clone returns a deep-enough copy of s so that a caller can hand out
// a Snapshot as an immutable query result without the recipient being
// able to mutate the coordinator's internal state through it.
func (s Snapshot) Clone() Snapshot {
	members := make([]member.Member, len(s.Members))
	for i, m := range s.Members {
		rolesCopy := make([]string, len(m.Roles))
		copy(rolesCopy, m.Roles)
		m.Roles = rolesCopy
		members[i] = m
	}
	tombstones := make(map[address.UniqueAddress]time.Time, len(s.Tombstones))
	for k, v := range s.Tombstones {
		tombstones[k] = v
	}
	return Snapshot{Sender: s.Sender, Members: members, Tombstones: tombstones}
}
