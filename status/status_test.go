package status

import (
	"errors"
	"testing"
)

var all = []MemberStatus{
	Joining, WeaklyUp, Up, Leaving, Exiting, Down, Removed,
	PreparingForShutdown, ReadyForShutdown,
}

// TestTransitionSoundness is spec §8 universal property 1: for every
// pair not in the table, Transition fails; for every pair in the
// table, it succeeds.
func TestTransitionSoundness(t *testing.T) {
	allowed := map[[2]MemberStatus]bool{
		{Joining, WeaklyUp}: true, {Joining, Up}: true, {Joining, Leaving}: true,
		{Joining, Down}: true, {Joining, Removed}: true,
		{WeaklyUp, Up}: true, {WeaklyUp, Leaving}: true, {WeaklyUp, Down}: true, {WeaklyUp, Removed}: true,
		{Up, Leaving}: true, {Up, Down}: true, {Up, Removed}: true, {Up, PreparingForShutdown}: true,
		{Leaving, Exiting}: true, {Leaving, Down}: true, {Leaving, Removed}: true,
		{Exiting, Removed}: true, {Exiting, Down}: true,
		{Down, Removed}: true,
		{PreparingForShutdown, ReadyForShutdown}: true, {PreparingForShutdown, Removed}: true,
		{PreparingForShutdown, Leaving}: true, {PreparingForShutdown, Down}: true,
		{ReadyForShutdown, Removed}: true, {ReadyForShutdown, Leaving}: true, {ReadyForShutdown, Down}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]MemberStatus{from, to}]
			got := CanTransition(from, to)
			if got != want {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", from, to, got, want)
			}

			_, err := Transition(from, to)
			if want && err != nil {
				t.Errorf("Transition(%v, %v) returned error %v, want success", from, to, err)
			}
			if !want && err == nil {
				t.Errorf("Transition(%v, %v) succeeded, want error", from, to)
			}
			if !want && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%v, %v) error %v does not wrap ErrInvalidTransition", from, to, err)
			}
		}
	}
}

func TestRemovedIsTerminal(t *testing.T) {
	if !IsTerminal(Removed) {
		t.Error("Removed must be terminal")
	}
	for _, s := range all {
		if s != Removed && IsTerminal(s) {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestPrecedenceOrderMatchesSpec(t *testing.T) {
	order := []MemberStatus{
		Removed, ReadyForShutdown, Down, Exiting, Leaving,
		PreparingForShutdown, Up, WeaklyUp, Joining,
	}
	for i := 0; i < len(order)-1; i++ {
		if Precedence(order[i]) >= Precedence(order[i+1]) {
			t.Errorf("expected %v to outrank %v", order[i], order[i+1])
		}
	}
}

func TestLeaderEligible(t *testing.T) {
	eligible := map[MemberStatus]bool{
		Up: true, Leaving: true, PreparingForShutdown: true, ReadyForShutdown: true,
	}
	for _, s := range all {
		if LeaderEligible(s) != eligible[s] {
			t.Errorf("LeaderEligible(%v) = %v, want %v", s, LeaderEligible(s), eligible[s])
		}
	}
}

func TestRemoveUnreachableWithStatus(t *testing.T) {
	for _, s := range all {
		want := s == Down || s == Exiting
		if RemoveUnreachableWithStatus(s) != want {
			t.Errorf("RemoveUnreachableWithStatus(%v) = %v, want %v", s, RemoveUnreachableWithStatus(s), want)
		}
	}
}
