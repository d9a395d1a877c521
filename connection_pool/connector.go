package connectionpool

import (
	"context"
	"net"
)

type Connector interface {
	Connect(ctx context.Context, address string) (net.Conn, error)
}

type TcpConnector struct {
	Dialer net.Dialer
}

func (t TcpConnector) Connect(ctx context.Context, address string) (net.Conn, error) {
	return t.Dialer.DialContext(ctx, "tcp", address)
}

func NewTcpConnector() TcpConnector {
	return TcpConnector{}
}

type MockConnector struct {
	conn net.Conn
	err  error
}

func (m MockConnector) Connect(ctx context.Context, address string) (net.Conn, error) {
	return m.conn, m.err
}

func NewMockConnector(conn net.Conn) MockConnector {
	return MockConnector{conn: conn}
}

// NewFailingConnector builds a Connector whose Connect always fails
// with err — used by the pool's tests to simulate an unreachable peer
// without a real socket.
func NewFailingConnector(err error) MockConnector {
	return MockConnector{err: err}
}
