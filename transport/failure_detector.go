package transport

import (
	"context"
	"sync"
	"time"
)

// FailureDetector is spec.md §6's failure-detector-class collaborator:
// it decides, for one address, whether the local node currently
// considers it reachable. The coordinator never calls this directly —
// a caller polls it and feeds the result into
// Coordinator.ObserveReachability.
type FailureDetector interface {
	Check(ctx context.Context, addr string) bool
}

// TimeoutFailureDetector treats a peer as reachable iff Transport.Ping
// returns before Timeout elapses. Grounded on the teacher's
// gossip.go's gossip() round: a context.WithTimeout wraps the RPC, and
// a context deadline or RPC error both count as handleFailure.
type TimeoutFailureDetector struct {
	Transport Transport
	Timeout   time.Duration
}

func (d TimeoutFailureDetector) Check(ctx context.Context, addr string) bool {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = dialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Transport.Ping(ctx, addr) == nil
}

// PuppetFailureDetector is a test double: its reachability verdicts
// are set directly by the test rather than derived from any real
// socket, the same role the teacher's connection_pool.MockConnector
// plays for dialing.
type PuppetFailureDetector struct {
	mu    sync.Mutex
	state map[string]bool
}

func NewPuppetFailureDetector() *PuppetFailureDetector {
	return &PuppetFailureDetector{state: make(map[string]bool)}
}

func (p *PuppetFailureDetector) Check(ctx context.Context, addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	reachable, seen := p.state[addr]
	return !seen || reachable // unknown addresses default to reachable.
}

func (p *PuppetFailureDetector) SetReachable(addr string, reachable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state[addr] = reachable
}
