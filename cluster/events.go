package cluster

import "github.com/nimbus-cluster/membercore/member"

// EventKind enumerates the observable events of spec §6.
type EventKind int

const (
	MemberJoined EventKind = iota
	MemberWeaklyUp
	MemberUp
	LeaderChanged
	MemberLeft
	MemberExited
	MemberDowned
	MemberRemoved
	UnreachableMember
	ReachableMember
)

func (k EventKind) String() string {
	switch k {
	case MemberJoined:
		return "MemberJoined"
	case MemberWeaklyUp:
		return "MemberWeaklyUp"
	case MemberUp:
		return "MemberUp"
	case LeaderChanged:
		return "LeaderChanged"
	case MemberLeft:
		return "MemberLeft"
	case MemberExited:
		return "MemberExited"
	case MemberDowned:
		return "MemberDowned"
	case MemberRemoved:
		return "MemberRemoved"
	case UnreachableMember:
		return "UnreachableMember"
	case ReachableMember:
		return "ReachableMember"
	default:
		return "Unknown"
	}
}

// Event carries the affected Member, for member-status and reachability
// events alike. A LeaderChanged event carries the new leader, or a zero
// Member when the datacenter no longer has one.
type Event struct {
	Kind   EventKind
	Member member.Member
}

// Subscriber receives events strictly after the state transition that
// produced them has committed, in the order the transitions occurred
// (spec §5).
type Subscriber func(Event)
