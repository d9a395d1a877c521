package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/gossip"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/status"
)

func uaAt(host string, port int, uid int64) address.UniqueAddress {
	return address.UniqueAddress{Address: address.Address{Host: host, Port: port}, Uid: uid}
}

// S1 — join sequence.
func TestJoinSequencePromotesToUp(t *testing.T) {
	a := uaAt("A", 1000, 1)
	c := New(a, DefaultConfig(), nil)
	defer c.Close()

	if err := c.Join([]string{"dc-default"}, member.DefaultAppVersion); err != nil {
		t.Fatalf("Join: %v", err)
	}

	members := c.Members()
	if len(members) != 1 || members[0].Status != status.Joining {
		t.Fatalf("expected one Joining member, got %+v", members)
	}

	ok, err := c.LeaderActions(context.Background(), "default", time.Now(), nil)
	if err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}
	if !ok {
		t.Fatal("expected the sole member to be leader of its own datacenter")
	}

	members = c.Members()
	if len(members) != 1 || members[0].Status != status.Up || members[0].UpNumber != 1 {
		t.Fatalf("expected (A:1000, Up, upNumber=1), got %+v", members)
	}
}

// S6 — auto-downing of the unreachable last node, and its eventual
// removal with a tombstone.
func TestDownedMemberIsRemovedAndTombstoned(t *testing.T) {
	a := uaAt("A", 1000, 1)
	dead := uaAt("D", 1003, 4)

	c := New(a, DefaultConfig(), nil)
	defer c.Close()

	if err := c.Join([]string{"dc-default"}, member.DefaultAppVersion); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := c.LeaderActions(context.Background(), "default", time.Now(), nil); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}

	deadMember, err := member.New(dead, []string{"dc-default"}, member.DefaultAppVersion)
	if err != nil {
		t.Fatalf("member.New: %v", err)
	}
	deadMember.Status = status.Up
	deadMember.UpNumber = 2
	c.ObserveGossip(gossip.Snapshot{Sender: dead, Members: []member.Member{deadMember}})

	c.MarkNodeAsUnavailable(dead)
	if err := c.ApplyDowning(dead); err != nil {
		t.Fatalf("ApplyDowning: %v", err)
	}

	if _, err := c.LeaderActions(context.Background(), "default", time.Now(), nil); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}

	members := c.Members()
	if len(members) != 1 {
		t.Fatalf("expected 1 remaining member, got %d: %+v", len(members), members)
	}
	if members[0].UniqueAddress != a {
		t.Fatalf("expected the survivor to be A, got %+v", members[0])
	}
	if _, ok := c.Snapshot().Tombstones[dead]; !ok {
		t.Fatal("expected the removed member's address to be tombstoned")
	}
}

// A rendering of S5's promotion half: a Joining member is promoted to
// WeaklyUp once it has waited past allow-weakly-up-members while some
// other member is unreachable, provided the candidate itself is
// reachable.
func TestWeaklyUpPromotionUnderPartition(t *testing.T) {
	a := uaAt("A", 1000, 1)
	stranded := uaAt("S", 1001, 2)
	newcomer := uaAt("N", 1002, 3)

	cfg := DefaultConfig()
	cfg.AllowWeaklyUpAfter = 3 * time.Second

	c := New(a, cfg, nil)
	defer c.Close()

	if err := c.Join([]string{"dc-default"}, member.DefaultAppVersion); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := c.LeaderActions(context.Background(), "default", time.Now(), nil); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}

	strandedMember, _ := member.New(stranded, []string{"dc-default"}, member.DefaultAppVersion)
	strandedMember.Status = status.Up
	strandedMember.UpNumber = 2
	c.ObserveGossip(gossip.Snapshot{Sender: stranded, Members: []member.Member{strandedMember}})
	c.MarkNodeAsUnavailable(stranded)

	newcomerMember, _ := member.New(newcomer, []string{"dc-default"}, member.DefaultAppVersion)
	c.ObserveGossip(gossip.Snapshot{Sender: newcomer, Members: []member.Member{newcomerMember}})

	// Too soon: N hasn't waited allow-weakly-up-members yet.
	if _, err := c.LeaderActions(context.Background(), "default", time.Now(), nil); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}
	if n, ok := containsUACoordinator(c.Members(), newcomer); ok && n.Status != status.Joining {
		t.Fatalf("expected N still Joining before the timer elapses, got %v", n.Status)
	}

	future := time.Now().Add(5 * time.Second)
	if _, err := c.LeaderActions(context.Background(), "default", future, nil); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}

	n, ok := containsUACoordinator(c.Members(), newcomer)
	if !ok {
		t.Fatal("expected N still present")
	}
	if n.Status != status.WeaklyUp {
		t.Fatalf("expected N to be WeaklyUp, got %v", n.Status)
	}
}

// isConvergencePossible excludes WeaklyUp from the blocking set: an
// unreachable WeaklyUp member never blocks convergence, but an
// unreachable Up member does.
func TestConvergencePossibleExcludesWeaklyUp(t *testing.T) {
	a := uaAt("A", 1000, 1)
	weak := uaAt("W", 1001, 2)

	c := New(a, DefaultConfig(), nil)
	defer c.Close()
	c.Join([]string{"dc-default"}, member.DefaultAppVersion)

	weakMember, _ := member.New(weak, []string{"dc-default"}, member.DefaultAppVersion)
	weakMember.Status = status.WeaklyUp
	c.ObserveGossip(gossip.Snapshot{Sender: weak, Members: []member.Member{weakMember}})
	c.MarkNodeAsUnavailable(weak)

	if !c.IsConvergencePossible() {
		t.Fatal("expected an unreachable WeaklyUp member not to block convergence")
	}

	c.MarkNodeAsAvailable(weak)
	upMember := weakMember
	upMember.Status = status.Up
	upMember.UpNumber = 5
	c.ObserveGossip(gossip.Snapshot{Sender: weak, Members: []member.Member{upMember}})
	c.MarkNodeAsUnavailable(weak)

	if c.IsConvergencePossible() {
		t.Fatal("expected an unreachable Up member to block convergence")
	}
}

func containsUACoordinator(ms []member.Member, ua address.UniqueAddress) (member.Member, bool) {
	for _, m := range ms {
		if m.UniqueAddress == ua {
			return m, true
		}
	}
	return member.Member{}, false
}

// Property: ObserveGossip is idempotent at the coordinator level, not
// just in the pure merger.
func TestObserveGossipIdempotent(t *testing.T) {
	a := uaAt("A", 1000, 1)
	peer := uaAt("P", 2000, 5)

	c := New(a, DefaultConfig(), nil)
	defer c.Close()
	c.Join([]string{"dc-default"}, member.DefaultAppVersion)

	peerMember, _ := member.New(peer, []string{"dc-default"}, member.DefaultAppVersion)
	peerMember.Status = status.Up
	peerMember.UpNumber = 7
	snap := gossip.Snapshot{Sender: peer, Members: []member.Member{peerMember}}

	first := c.ObserveGossip(snap)
	second := c.ObserveGossip(snap)
	if len(first) == 0 {
		t.Fatal("expected the first observation to report a change")
	}
	if len(second) != 0 {
		t.Fatalf("expected the repeated observation to report no changes, got %+v", second)
	}
}

// Gossip from a tombstoned sender is dropped silently.
func TestObserveGossipFromTombstonedSenderDropped(t *testing.T) {
	a := uaAt("A", 1000, 1)
	ghost := uaAt("G", 3000, 9)

	c := New(a, DefaultConfig(), nil)
	defer c.Close()
	c.Join([]string{"dc-default"}, member.DefaultAppVersion)

	c.ObserveGossip(gossip.Snapshot{
		Sender:     a,
		Tombstones: map[address.UniqueAddress]time.Time{ghost: time.Now()},
	})

	ghostMember, _ := member.New(ghost, []string{"dc-default"}, member.DefaultAppVersion)
	changed := c.ObserveGossip(gossip.Snapshot{Sender: ghost, Members: []member.Member{ghostMember}})
	if len(changed) != 0 {
		t.Fatalf("expected no changes from a tombstoned sender, got %+v", changed)
	}
	if _, ok := containsUACoordinator(c.Members(), ghost); ok {
		t.Fatal("expected the tombstoned node to never be re-admitted")
	}
}

// Leaving -> Exiting advances once every other member has acknowledged,
// fanned out via the caller-supplied AckFunc.
func TestLeavingAdvancesToExitingOnceAcknowledged(t *testing.T) {
	a := uaAt("A", 1000, 1)
	peer := uaAt("P", 2000, 5)

	c := New(a, DefaultConfig(), nil)
	defer c.Close()
	c.Join([]string{"dc-default"}, member.DefaultAppVersion)
	c.LeaderActions(context.Background(), "default", time.Now(), nil)

	peerMember, _ := member.New(peer, []string{"dc-default"}, member.DefaultAppVersion)
	peerMember.Status = status.Leaving
	peerMember.UpNumber = 9
	c.ObserveGossip(gossip.Snapshot{Sender: peer, Members: []member.Member{peerMember}})

	var acked int
	ack := func(ctx context.Context, from, leaving address.UniqueAddress) error {
		acked++
		return nil
	}

	if _, err := c.LeaderActions(context.Background(), "default", time.Now(), ack); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}

	if acked == 0 {
		t.Fatal("expected the ack callback to be invoked at least once")
	}
	p, ok := containsUACoordinator(c.Members(), peer)
	if !ok {
		t.Fatal("expected P still present")
	}
	if p.Status != status.Exiting {
		t.Fatalf("expected P to have advanced to Exiting, got %v", p.Status)
	}
}

// poison panics the ops goroutine (spec §7 treats InvalidTransition as
// a fatal corruption bug, not a recoverable error); exec recovers that
// panic on the same goroutine so the process survives and the
// coordinator keeps draining ops, merely poisoned.
func TestPoisonRecoversOnOpsGoroutineInsteadOfCrashing(t *testing.T) {
	a := uaAt("A", 1000, 1)
	c := New(a, DefaultConfig(), nil)
	defer c.Close()
	c.Join([]string{"dc-default"}, member.DefaultAppVersion)

	sentinel := errors.New("boom")
	// exec must return normally even though the enqueued fn panics —
	// if it didn't, this call would hang (done never closes) or this
	// whole test binary would crash.
	c.exec(func() {
		c.poison(sentinel)
	})

	if err := c.checkPoisoned(); !errors.Is(err, sentinel) {
		t.Fatalf("expected checkPoisoned to wrap the sentinel error, got %v", err)
	}

	// The coordinator must still be responsive to further exec calls.
	done := false
	c.exec(func() { done = true })
	if !done {
		t.Fatal("expected exec to keep running ops after a poison panic")
	}
}

func TestPoisonedCoordinatorRejectsFurtherOperations(t *testing.T) {
	a := uaAt("A", 1000, 1)
	c := New(a, DefaultConfig(), nil)
	defer c.Close()
	c.Join([]string{"dc-default"}, member.DefaultAppVersion)

	sentinel := errors.New("boom")
	c.exec(func() {
		c.poison(sentinel)
	})

	if err := c.checkPoisoned(); !errors.Is(err, sentinel) {
		t.Fatalf("expected checkPoisoned to wrap the sentinel error, got %v", err)
	}

	if err := c.Join([]string{"dc-default"}, member.DefaultAppVersion); err == nil {
		t.Fatal("expected Join to fail once poisoned")
	}

	before := c.Members()
	if _, err := c.LeaderActions(context.Background(), "default", time.Now(), nil); err != nil {
		t.Fatalf("LeaderActions: %v", err)
	}
	after := c.Members()
	if len(before) != len(after) {
		t.Fatalf("expected no membership change once poisoned, got %+v -> %+v", before, after)
	}
}
