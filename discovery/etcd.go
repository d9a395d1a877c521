// Package discovery bootstraps a node's seed list from etcd: spec.md
// §6 calls for a transport-agnostic way for a node to find its first
// contact points, which the teacher's repo has no analog for (its
// main.go takes a single INITIATOR address via an env var). Grounded
// on ryandielhenn-zephyrcache/pkg/registry's RegisterNode/WatchPeers
// shape and its cmd/server/main.go call sites, generalized from
// caching-ring peers to membership seeds.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix namespaces every seed registration in etcd.
const KeyPrefix = "/membercore/seeds/"

// NewClient dials etcd. Grounded on the teacher's cmd/server/main.go
// clientv3.New call, with the dial timeout promoted to a parameter.
func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

// RegisterNode puts id -> addr under KeyPrefix behind a lease of ttl
// seconds and keeps it alive until ctx is cancelled or the returned
// cancel func is called. Grounded on the teacher's registry.RegisterNode,
// with the background keep-alive loop made cancellable (the teacher's
// `go cli.KeepAlive(context.TODO(), lease.ID)` never stops).
func RegisterNode(ctx context.Context, cli *clientv3.Client, id, addr string, ttl int64) (clientv3.LeaseID, func(), error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, err
	}
	key := KeyPrefix + id
	if _, err := cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, err
	}

	keepAliveCtx, cancel := context.WithCancel(ctx)
	alive, err := cli.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, err
	}
	go func() {
		for range alive {
			// drain: the lease client requires responses to be
			// consumed or KeepAlive stops renewing.
		}
	}()

	return lease.ID, cancel, nil
}

// ListSeeds returns the current id -> addr map, for bootstrapping the
// local seed list before the first watch event arrives. Grounded on
// the teacher's main.go step 3 (cli.Get with WithPrefix).
func ListSeeds(ctx context.Context, cli *clientv3.Client) (map[string]string, error) {
	resp, err := cli.Get(ctx, KeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	seeds := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), KeyPrefix)
		seeds[id] = string(kv.Value)
	}
	return seeds, nil
}

// WatchSeeds streams seed-set changes to onChange, called with the
// full current id -> addr map after every put or delete under
// KeyPrefix. It runs until ctx is cancelled. Grounded on the teacher's
// registry.WatchPeers callback shape.
func WatchSeeds(ctx context.Context, cli *clientv3.Client, onChange func(map[string]string)) error {
	seeds, err := ListSeeds(ctx, cli)
	if err != nil {
		return err
	}
	onChange(cloneSeeds(seeds))

	watchChan := cli.Watch(ctx, KeyPrefix, clientv3.WithPrefix())
	go func() {
		for resp := range watchChan {
			if resp.Err() != nil {
				continue
			}
			for _, ev := range resp.Events {
				id := strings.TrimPrefix(string(ev.Kv.Key), KeyPrefix)
				switch ev.Type {
				case clientv3.EventTypePut:
					seeds[id] = string(ev.Kv.Value)
				case clientv3.EventTypeDelete:
					delete(seeds, id)
				}
			}
			onChange(cloneSeeds(seeds))
		}
	}()
	return nil
}

func cloneSeeds(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ErrNoSeeds is returned by callers that require at least one seed to
// bootstrap against and found none.
var ErrNoSeeds = fmt.Errorf("discovery: no seeds registered under %s", KeyPrefix)
