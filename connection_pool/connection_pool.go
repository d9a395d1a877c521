// Package connectionpool keeps one long-lived net.Conn per peer
// address so the transport layer doesn't pay a TCP handshake for every
// gossip round or ack request. Adapted from the teacher's
// connection_pool package: GetClient gained a context so callers (the
// failure detector in particular) can bound how long a cold dial is
// allowed to take, and Invalidate now closes the stale connection
// instead of just forgetting it.
package connectionpool

import (
	"context"
	"net"
	"sync"
)

type ConnectionPool struct {
	connector Connector
	pool      map[string]net.Conn
	poolMutex sync.RWMutex
}

func NewConnectionPool(connector Connector) *ConnectionPool {
	return &ConnectionPool{connector: connector, pool: make(map[string]net.Conn)}
}

// GetClient returns the pooled connection for address, dialing a fresh
// one under ctx if none exists yet.
func (c *ConnectionPool) GetClient(ctx context.Context, address string) (net.Conn, error) {
	c.poolMutex.RLock()
	conn, ok := c.pool[address]
	c.poolMutex.RUnlock()
	if ok {
		return conn, nil
	}

	connection, err := c.connector.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	c.poolMutex.Lock()
	defer c.poolMutex.Unlock()
	if existing, ok := c.pool[address]; ok {
		connection.Close()
		return existing, nil
	}
	c.pool[address] = connection
	return connection, nil
}

// Invalidate closes and forgets the pooled connection for address, if
// any. Callers reach for this after a write/read fails, the same spot
// the teacher's gossip.handleFailure calls cp.Invalidate.
func (c *ConnectionPool) Invalidate(address string) {
	c.poolMutex.Lock()
	defer c.poolMutex.Unlock()
	if conn, ok := c.pool[address]; ok {
		conn.Close()
		delete(c.pool, address)
	}
}

// CloseAll closes every pooled connection. Intended for shutdown.
func (c *ConnectionPool) CloseAll() {
	c.poolMutex.Lock()
	defer c.poolMutex.Unlock()
	for addr, conn := range c.pool {
		conn.Close()
		delete(c.pool, addr)
	}
}
