package transport

import (
	"context"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/cluster"
	"github.com/nimbus-cluster/membercore/gossip"
)

// Transport is the collaborator spec.md §6 calls out as swappable: it
// carries gossip snapshots and Leaving-acknowledgement requests
// between nodes. cmd/membernode wires a TCPTransport; the tests drive a
// TCPTransport against a real local listener.
type Transport interface {
	SendGossip(ctx context.Context, addr string, snap gossip.Snapshot) error
	RequestAck(ctx context.Context, addr string, from, leaving address.UniqueAddress) error
	Ping(ctx context.Context, addr string) error
}

// Handler receives envelopes a Transport's Serve loop decodes off the
// wire. The coordinator (or a thin adapter around it) implements this.
type Handler interface {
	HandleGossip(snap gossip.Snapshot)
	HandleAckRequest(ctx context.Context, from, leaving address.UniqueAddress) error
}

// AckFuncFor adapts a Transport into a cluster.AckFunc bound to a
// fixed address resolver, for wiring into cluster.Coordinator.LeaderActions.
func AckFuncFor(t Transport, addrOf func(address.UniqueAddress) (string, bool)) cluster.AckFunc {
	return func(ctx context.Context, from, leaving address.UniqueAddress) error {
		addr, ok := addrOf(from)
		if !ok {
			return nil // peer already left the view; nothing to ask.
		}
		return t.RequestAck(ctx, addr, from, leaving)
	}
}
