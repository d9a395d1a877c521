package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	connectionpool "github.com/nimbus-cluster/membercore/connection_pool"
	"github.com/nimbus-cluster/membercore/gossip"
)

// TCPTransport is the concrete Transport of spec.md §6's
// transport-class, grounded on the teacher's gossip.Gossip.spread/
// callToSpread (dial-or-reuse via a pool, write the request, block on
// a response) and server.go's accept loop for the receiving side.
type TCPTransport struct {
	pool *connectionpool.ConnectionPool
}

func NewTCPTransport() *TCPTransport {
	return &TCPTransport{pool: connectionpool.NewConnectionPool(connectionpool.NewTcpConnector())}
}

func (t *TCPTransport) SendGossip(ctx context.Context, addr string, snap gossip.Snapshot) error {
	conn, err := t.pool.GetClient(ctx, addr)
	if err != nil {
		return err
	}
	if err := (gossipEnvelope{snapshot: snap}).encode(ctx, conn); err != nil {
		t.pool.Invalidate(addr)
		return err
	}
	return nil
}

func (t *TCPTransport) RequestAck(ctx context.Context, addr string, from, leaving address.UniqueAddress) error {
	conn, err := t.pool.GetClient(ctx, addr)
	if err != nil {
		return err
	}
	if err := (ackRequestEnvelope{from: from, leaving: leaving}).encode(ctx, conn); err != nil {
		t.pool.Invalidate(addr)
		return err
	}
	identifier, body, err := readFrame(conn)
	if err != nil {
		t.pool.Invalidate(addr)
		return err
	}
	if identifier != identifierAckResponse {
		return unexpectedIdentifier(identifier)
	}
	resp, err := decodeAckResponseEnvelope(body)
	if err != nil {
		return err
	}
	if !resp.ok {
		return fmt.Errorf("transport: ack refused: %s", resp.errorMsg)
	}
	return nil
}

func (t *TCPTransport) Ping(ctx context.Context, addr string) error {
	conn, err := t.pool.GetClient(ctx, addr)
	if err != nil {
		return err
	}
	if err := encodePingLike(ctx, conn, identifierPing); err != nil {
		t.pool.Invalidate(addr)
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}
	identifier, _, err := readFrame(conn)
	if err != nil {
		t.pool.Invalidate(addr)
		return err
	}
	if identifier != identifierPong {
		return unexpectedIdentifier(identifier)
	}
	return nil
}

// Close releases every pooled connection. Call once during shutdown.
func (t *TCPTransport) Close() {
	t.pool.CloseAll()
}

// Serve runs the accept loop for l, dispatching each decoded envelope
// to h. It blocks until ctx is cancelled or l.Accept fails.
func Serve(ctx context.Context, l net.Listener, h Handler) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handleConnection(ctx, conn, h)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, h Handler) {
	defer conn.Close()
	for {
		identifier, body, err := readFrame(conn)
		if err != nil {
			return
		}
		switch identifier {
		case identifierGossip:
			snap, err := decodeGossipEnvelope(body)
			if err != nil {
				return
			}
			h.HandleGossip(snap)
		case identifierAckRequest:
			from, leaving, err := decodeAckRequestEnvelope(body)
			if err != nil {
				return
			}
			resp := ackResponseEnvelope{ok: true}
			if err := h.HandleAckRequest(ctx, from, leaving); err != nil {
				resp = ackResponseEnvelope{ok: false, errorMsg: err.Error()}
			}
			if err := resp.encode(ctx, conn); err != nil {
				return
			}
		case identifierPing:
			if err := encodePingLike(ctx, conn, identifierPong); err != nil {
				return
			}
		default:
			return
		}
	}
}
