// Package cluster implements the membership state coordinator of
// spec §4.5: the single stateful component that owns the local
// member set, the reachability map and the tombstone map, and that
// turns reachability signals and downing decisions into status
// transitions.
//
// The coordinator is realized as a dedicated goroutine draining a
// channel of closures — the same "one owning goroutine per shared
// state" shape as the teacher's gossip.go spreadChan/catchupChan
// handlers — so that mutating steps are serialized against each other
// without a caller ever blocking on a held mutex. ObserveGossip,
// ObserveReachability and ApplyDowning each run as a single step.
// LeaderActions is not atomic: it runs as a sequence of such steps, with
// the Leaving-acknowledgement round-trips made outside the executor, so
// other operations can run between its steps.
package cluster

import (
	"fmt"
	"sort"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/member"
)

// Config is the subset of spec §6's configuration surface the
// coordinator itself consumes; the rest (downing-provider-class,
// transport settings) lives with the collaborators that use it.
type Config struct {
	// AllowWeaklyUpAfter is spec's allow-weakly-up-members. Zero
	// disables WeaklyUp promotion ("off").
	AllowWeaklyUpAfter time.Duration
	// WeaklyUpBatchLimit bounds Joining->WeaklyUp promotions per leader
	// tick. Spec §9's open question resolves the default to 1.
	WeaklyUpBatchLimit int
	// TombstoneTTL bounds how long a Removed member's tombstone is
	// retained before pruning.
	TombstoneTTL time.Duration
	// Clock overrides the coordinator's time source. Nil means
	// time.Now; tests supply a deterministic clock instead.
	Clock func() time.Time
	// Logger receives spec §7's silently-dropped-gossip/downing events
	// at debug level. Nil disables logging of these drops entirely.
	Logger DropLogger
}

// DropLogger is the narrow logging collaborator for spec §7's
// "logged at debug" drop paths: gossip or downing input the
// coordinator discards without treating as an error. Satisfied by
// *telemetry.Logger; kept as an interface here so cluster has no
// import-time dependency on telemetry.
type DropLogger interface {
	MissingDatacenterRole(ua address.UniqueAddress)
	TombstoneViolation(ua address.UniqueAddress)
	StaleReachability(ua address.UniqueAddress)
	DowningOnNonMember(ua address.UniqueAddress)
}

// DefaultConfig matches spec §9's conservative defaults.
func DefaultConfig() Config {
	return Config{
		AllowWeaklyUpAfter: 0,
		WeaklyUpBatchLimit: 1,
		TombstoneTTL:       24 * time.Hour,
	}
}

// DowningPolicy is the external collaborator of spec §6: given the
// current view and reachability map, it returns the set of addresses
// the leader should transition to Down.
type DowningPolicy interface {
	Decide(view []member.Member, reachability map[address.UniqueAddress]bool) []address.UniqueAddress
}

type joinInfo struct {
	joinedAt time.Time
}

// Coordinator is the membership state coordinator. Construct one with
// New and stop it with Close when the local node shuts down.
type Coordinator struct {
	self address.UniqueAddress

	ops    chan func()
	events chan Event
	done   chan struct{}

	cfg     Config
	policy  DowningPolicy
	clock   func() time.Time
	onEvent Subscriber

	// poisoned records the programmer error that corrupted the
	// coordinator (spec §7: InvalidTransition aborts the coordinator).
	// Once set, every subsequent operation fails fast instead of
	// running against inconsistent state.
	poisoned error

	members      map[address.UniqueAddress]member.Member
	reachability map[address.UniqueAddress]bool
	tombstones   map[address.UniqueAddress]time.Time
	joinOrder    map[address.UniqueAddress]joinInfo

	leaderOrderIdx map[string]*member.Index // per datacenter
	ageOrderIdx    map[string]*member.Index // per datacenter

	nextUpNumber  map[string]int32                 // per datacenter, spec §4.5: unique within a datacenter
	currentLeader map[string]address.UniqueAddress // per datacenter, for LeaderChanged detection
}

// New constructs a Coordinator for the local node identified by self.
// The coordinator does not create its own member record — the caller
// calls ObserveGossip (or a dedicated Join call, see Join) once the
// local node has chosen its roles and app version.
func New(self address.UniqueAddress, cfg Config, policy DowningPolicy) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Coordinator{
		self:           self,
		ops:            make(chan func()),
		events:         make(chan Event, 256),
		done:           make(chan struct{}),
		cfg:            cfg,
		policy:         policy,
		clock:          clock,
		members:        make(map[address.UniqueAddress]member.Member),
		reachability:   make(map[address.UniqueAddress]bool),
		tombstones:     make(map[address.UniqueAddress]time.Time),
		joinOrder:      make(map[address.UniqueAddress]joinInfo),
		leaderOrderIdx: make(map[string]*member.Index),
		ageOrderIdx:    make(map[string]*member.Index),
		nextUpNumber:   make(map[string]int32),
		currentLeader:  make(map[string]address.UniqueAddress),
	}
	go c.runOps()
	go c.runEvents()
	return c
}

// Close stops the coordinator's background goroutines. It does not
// block on in-flight operations finishing beyond their normal
// completion.
func (c *Coordinator) Close() {
	close(c.done)
}

// Subscribe registers fn to receive every Event this coordinator
// produces, in commit order. Subscribe itself is not safe to call
// concurrently with other Subscribe calls; call it once during setup.
func (c *Coordinator) Subscribe(fn Subscriber) {
	c.onEvent = fn
}

func (c *Coordinator) runOps() {
	for {
		select {
		case fn := <-c.ops:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) runEvents() {
	for {
		select {
		case ev := <-c.events:
			if c.onEvent != nil {
				c.onEvent(ev)
			}
		case <-c.done:
			return
		}
	}
}

// exec runs fn on the coordinator's serial executor and blocks until
// it completes. All public methods go through this so that mutating
// operations are never interleaved. A panic from fn (poison) is
// recovered right here, on the ops goroutine, so that one invalid
// transition poisons the coordinator instead of crashing the process;
// close(done) is deferred so exec's caller is released either way.
func (c *Coordinator) exec(fn func()) {
	done := make(chan struct{})
	select {
	case c.ops <- func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil && c.poisoned == nil {
				c.poisoned = fmt.Errorf("cluster: coordinator poisoned: %v", r)
			}
		}()
		fn()
	}:
		<-done
	case <-c.done:
	}
}

// emit queues ev for delivery to the subscriber. It is called from
// inside exec (so from the single ops goroutine) but never blocks that
// goroutine on subscriber code, since delivery happens on a separate
// goroutine draining c.events.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// poison records an InvalidTransitionError as a fatal, unrecoverable
// coordinator fault (spec §7) and panics inside the ops goroutine.
// exec's recover catches the panic right there, so the process never
// crashes; what poison actually buys is that every operation run
// through exec after this one observes c.poisoned and fails fast
// instead of continuing to mutate a member set that just hit an
// invalid transition, matching spec §7's "treated as a corruption bug"
// classification.
func (c *Coordinator) poison(err error) {
	c.poisoned = err
	panic(fmt.Errorf("cluster: coordinator poisoned: %w", err))
}

func (c *Coordinator) checkPoisoned() error {
	if c.poisoned != nil {
		return fmt.Errorf("cluster: coordinator is poisoned: %w", c.poisoned)
	}
	return nil
}

// ageOrderIndex returns (creating if absent) the age-order index for dc.
func (c *Coordinator) ageOrderIndex(dc string) *member.Index {
	idx, ok := c.ageOrderIdx[dc]
	if !ok {
		idx = member.NewIndex(member.AgeOrder)
		c.ageOrderIdx[dc] = idx
	}
	return idx
}

// leaderOrderIndex returns (creating if absent) the leader-order index
// for dc.
func (c *Coordinator) leaderOrderIndex(dc string) *member.Index {
	idx, ok := c.leaderOrderIdx[dc]
	if !ok {
		idx = member.NewIndex(member.LeaderOrder)
		c.leaderOrderIdx[dc] = idx
	}
	return idx
}

// putMember installs m into the member map and both per-datacenter
// indices, removing any prior entry for the same address first so the
// indices never hold a stale ordering key for it.
func (c *Coordinator) putMember(m member.Member) {
	if old, ok := c.members[m.UniqueAddress]; ok {
		c.leaderOrderIndex(old.DataCenter()).Delete(old)
		c.ageOrderIndex(old.DataCenter()).Delete(old)
	}
	c.members[m.UniqueAddress] = m
	c.leaderOrderIndex(m.DataCenter()).Put(m)
	c.ageOrderIndex(m.DataCenter()).Put(m)
}

func (c *Coordinator) removeMember(ua address.UniqueAddress) {
	old, ok := c.members[ua]
	if !ok {
		return
	}
	delete(c.members, ua)
	delete(c.reachability, ua)
	delete(c.joinOrder, ua)
	c.leaderOrderIndex(old.DataCenter()).Delete(old)
	c.ageOrderIndex(old.DataCenter()).Delete(old)
}

// allocateUpNumber hands out the next upNumber for dc. Spec §4.5: "at
// most once per member and unique within a datacenter."
func (c *Coordinator) allocateUpNumber(dc string) int32 {
	c.nextUpNumber[dc]++
	return c.nextUpNumber[dc]
}

// snapshotMembers returns a stable-sorted copy of the current member
// set, safe for a caller to retain.
func (c *Coordinator) snapshotMembers() []member.Member {
	out := make([]member.Member, 0, len(c.members))
	for _, m := range c.members {
		m.Roles = append([]string(nil), m.Roles...)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return member.CompareMember(out[i], out[j]) < 0 })
	return out
}
