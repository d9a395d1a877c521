package connectionpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
)

func TestGetClientReusesPooledConnection(t *testing.T) {
	c, _ := net.Pipe()
	cp := NewConnectionPool(NewMockConnector(c))
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := cp.GetClient(context.Background(), fmt.Sprintf("address_%d", i))
			if err != nil {
				t.Errorf("GetClient: %v", err)
			}
			if conn != c {
				t.Errorf("expected the pooled connection to be returned")
			}
		}(i)
	}
	wg.Wait()

	// With dialing now failing, an address already in the pool must
	// still be served from it.
	cp.connector = NewFailingConnector(errors.New("no dial"))
	conn, err := cp.GetClient(context.Background(), "address_0")
	if err != nil || conn != c {
		t.Fatalf("expected address_0 to be served from the pool without dialing, got (%v, %v)", conn, err)
	}
}

func TestGetClientPropagatesDialError(t *testing.T) {
	want := errors.New("dial failed")
	cp := NewConnectionPool(NewFailingConnector(want))
	if _, err := cp.GetClient(context.Background(), "unreachable:0"); !errors.Is(err, want) {
		t.Fatalf("expected the dial error to propagate, got %v", err)
	}
}

func TestInvalidateClosesAndForgets(t *testing.T) {
	c, _ := net.Pipe()
	cp := NewConnectionPool(NewMockConnector(c))
	if _, err := cp.GetClient(context.Background(), "peer"); err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	cp.Invalidate("peer")
	cp.poolMutex.RLock()
	_, ok := cp.pool["peer"]
	cp.poolMutex.RUnlock()
	if ok {
		t.Fatal("expected the invalidated address to be forgotten")
	}
	if _, err := c.Write([]byte{1}); err == nil {
		t.Fatal("expected the invalidated connection to be closed")
	}
}

func BenchmarkGetClientNonExisting(b *testing.B) {
	c, _ := net.Pipe()
	cp := NewConnectionPool(NewMockConnector(c))
	for n := 0; n < b.N; n++ {
		cp.GetClient(context.Background(), fmt.Sprint(n))
	}
}
