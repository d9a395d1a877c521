// Package status implements the MemberStatus lifecycle and its
// transition relation. It is pure: no I/O, no shared state.
package status

import "fmt"

// MemberStatus is the closed enumeration of spec §3. Removed is
// terminal.
type MemberStatus int

const (
	Joining MemberStatus = iota
	WeaklyUp
	Up
	Leaving
	Exiting
	Down
	Removed
	PreparingForShutdown
	ReadyForShutdown
)

func (s MemberStatus) String() string {
	switch s {
	case Joining:
		return "Joining"
	case WeaklyUp:
		return "WeaklyUp"
	case Up:
		return "Up"
	case Leaving:
		return "Leaving"
	case Exiting:
		return "Exiting"
	case Down:
		return "Down"
	case Removed:
		return "Removed"
	case PreparingForShutdown:
		return "PreparingForShutdown"
	case ReadyForShutdown:
		return "ReadyForShutdown"
	default:
		return fmt.Sprintf("MemberStatus(%d)", int(s))
	}
}

// transitions is the permitted-transition table of spec §3. Any (from,
// to) pair not listed here is forbidden.
var transitions = map[MemberStatus]map[MemberStatus]bool{
	Joining: set(WeaklyUp, Up, Leaving, Down, Removed),
	WeaklyUp: set(Up, Leaving, Down, Removed),
	Up: set(Leaving, Down, Removed, PreparingForShutdown),
	Leaving: set(Exiting, Down, Removed),
	Exiting: set(Removed, Down),
	Down: set(Removed),
	PreparingForShutdown: set(ReadyForShutdown, Removed, Leaving, Down),
	ReadyForShutdown: set(Removed, Leaving, Down),
	Removed: {},
}

func set(statuses ...MemberStatus) map[MemberStatus]bool {
	m := make(map[MemberStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// CanTransition reports whether moving from `from` to `to` is permitted
// by the table above. A status transitioning to itself is never
// permitted — every change must be a distinct state advance.
func CanTransition(from, to MemberStatus) bool {
	return transitions[from][to]
}

// IsTerminal reports whether s has no permitted outgoing transitions.
func IsTerminal(s MemberStatus) bool {
	return len(transitions[s]) == 0
}

// LeaderEligible is the set of statuses from which a member may serve
// as leader (spec §4.5's leader() query restricts to these).
func LeaderEligible(s MemberStatus) bool {
	switch s {
	case Up, Leaving, PreparingForShutdown, ReadyForShutdown:
		return true
	default:
		return false
	}
}

// RemoveUnreachableWithStatus reports true for statuses from which no
// revival is permissible once a peer has pruned the member — spec
// §4.4's removeUnreachableWithMemberStatus.
func RemoveUnreachableWithStatus(s MemberStatus) bool {
	return s == Down || s == Exiting
}

// BlocksConvergence reports whether an unreachable member in status s
// prevents isConvergencePossible from holding. Only Joining, Up and
// Leaving block convergence; WeaklyUp is explicitly excluded (a
// WeaklyUp member never counts toward the convergence requirement),
// and Down/Exiting/PreparingForShutdown/ReadyForShutdown members are
// already on their way out of the view.
func BlocksConvergence(s MemberStatus) bool {
	switch s {
	case Joining, Up, Leaving:
		return true
	default:
		return false
	}
}

// precedence is the total status-precedence order of spec §4.4,
// earlier entries win in highestPriorityOf. Open-question resolution
// (spec §9): PreparingForShutdown/ReadyForShutdown take exactly the
// slots §4.4 lists them in.
var precedence = []MemberStatus{
	Removed,
	ReadyForShutdown,
	Down,
	Exiting,
	Leaving,
	PreparingForShutdown,
	Up,
	WeaklyUp,
	Joining,
}

var precedenceIndex = func() map[MemberStatus]int {
	m := make(map[MemberStatus]int, len(precedence))
	for i, s := range precedence {
		m[s] = i
	}
	return m
}()

// Precedence returns s's rank in the highestPriorityOf order; a lower
// rank wins.
func Precedence(s MemberStatus) int {
	return precedenceIndex[s]
}
