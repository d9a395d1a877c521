// Command membernode runs one node of the membership cluster: it
// binds a transport listener, joins the local view, and drives the
// periodic gossip and leader-tick loops that keep the view converging.
// Grounded on the teacher's main.go (signal handling, net.Listen, the
// serve/accept-loop split) and server.go, generalized from a single
// rpc.Server registration to the coordinator/transport/discovery/
// telemetry wiring spec.md §6 calls for.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/cluster"
	"github.com/nimbus-cluster/membercore/config"
	"github.com/nimbus-cluster/membercore/discovery"
	"github.com/nimbus-cluster/membercore/downing"
	"github.com/nimbus-cluster/membercore/gossip"
	"github.com/nimbus-cluster/membercore/member"
	"github.com/nimbus-cluster/membercore/telemetry"
	"github.com/nimbus-cluster/membercore/transport"
)

const (
	gossipInterval = 1 * time.Second
	leaderInterval = 1 * time.Second
	probeInterval  = 2 * time.Second
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := telemetry.NewLogger()
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Address, cfg.Port))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	hostPort := l.Addr().String()
	host, port, err := splitHostPort(hostPort)
	if err != nil {
		log.Fatalf("listen address: %v", err)
	}

	self := address.UniqueAddress{
		Address: address.Address{Host: host, Port: port},
		Uid:     address.NewUid(),
	}

	policy := buildDowningPolicy(cfg)
	coordinator := cluster.New(self, cluster.Config{
		AllowWeaklyUpAfter: cfg.AllowWeaklyUpAfter,
		WeaklyUpBatchLimit: cfg.WeaklyUpBatchLimit,
		TombstoneTTL:       cfg.TombstoneTTL,
		Logger:             logger,
	}, policy)
	defer coordinator.Close()

	reg := newAddressRegistry()
	tcp := transport.NewTCPTransport()
	defer tcp.Close()

	coordinator.Subscribe(func(ev cluster.Event) {
		if ev.Kind == cluster.LeaderChanged {
			telemetry.RecordLeaderChange(ev.Member.DataCenter())
			logger.LeaderChanged(ev.Member.DataCenter(), ev.Member.UniqueAddress, true)
			return
		}
		logger.MembershipEvent(ev.Kind.String(), ev.Member.UniqueAddress)
	})

	handler := &nodeHandler{coordinator: coordinator, registry: reg, logger: logger}
	go func() {
		if err := transport.Serve(ctx, l, handler); err != nil {
			logger.MembershipEvent("transport-serve-error", self)
		}
	}()

	if cfg.Roles == nil {
		cfg.Roles = []string{member.DataCenterRolePrefix + member.DefaultDataCenter}
	}
	if err := coordinator.Join(cfg.Roles, cfg.AppVersion); err != nil {
		log.Fatalf("join: %v", err)
	}
	reg.set(self, hostPort)

	if cfg.MetricsAddress != "" {
		go func() {
			srv := &http.Server{Addr: cfg.MetricsAddress, Handler: telemetry.MetricsHandler()}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.MembershipEvent("metrics-server-error", self)
			}
		}()
	}

	if cfg.InitiatorAddress != "" {
		if err := tcp.SendGossip(ctx, cfg.InitiatorAddress, coordinator.Snapshot()); err != nil {
			logger.MembershipEvent("initiator-catchup-error", self)
		}
	}

	var etcdCancel func()
	if len(cfg.EtcdEndpoints) > 0 {
		etcdCancel = startDiscovery(ctx, cfg, self, hostPort, reg, logger)
		if etcdCancel != nil {
			defer etcdCancel()
		}
	}

	fd := &transport.TimeoutFailureDetector{Transport: tcp, Timeout: probeInterval}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); runGossipLoop(ctx, coordinator, tcp, reg, logger) }()
	go func() { defer wg.Done(); runLeaderLoop(ctx, coordinator, tcp, reg) }()
	go func() { defer wg.Done(); runProbeLoop(ctx, coordinator, fd, reg) }()

	logger.MembershipEvent("node-started", self)
	<-ctx.Done()
	wg.Wait()
}

func buildDowningPolicy(cfg config.Config) cluster.DowningPolicy {
	if cfg.DowningProviderClass != "auto-down-unreachable-after" {
		return nil
	}
	return downing.New(cfg.AutoDownUnreachableAfter, time.Now)
}

// addressRegistry maps a UniqueAddress to its dialable host:port,
// learned as gossip snapshots arrive. The coordinator tracks *who* is
// a member; this tracks *where* to reach them, since UniqueAddress's
// own Address field already is a host:port locator but callers still
// need a single place to resolve "peer I don't recognize yet".
type addressRegistry struct {
	mu   sync.RWMutex
	byUA map[address.UniqueAddress]string
}

func newAddressRegistry() *addressRegistry {
	return &addressRegistry{byUA: make(map[address.UniqueAddress]string)}
}

func (r *addressRegistry) set(ua address.UniqueAddress, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUA[ua] = addr
}

func (r *addressRegistry) lookup(ua address.UniqueAddress) (string, bool) {
	r.mu.RLock()
	addr, ok := r.byUA[ua]
	r.mu.RUnlock()
	if ok && addr != "" {
		return addr, true
	}
	if ua.Address.Host == "" {
		return "", false
	}
	return fmt.Sprintf("%s:%d", ua.Address.Host, ua.Address.Port), true
}

// nodeHandler adapts *cluster.Coordinator to transport.Handler.
type nodeHandler struct {
	coordinator *cluster.Coordinator
	registry    *addressRegistry
	logger      *telemetry.Logger
}

func (h *nodeHandler) HandleGossip(snap gossip.Snapshot) {
	h.registry.set(snap.Sender, "")
	for _, m := range snap.Members {
		if m.UniqueAddress.Address.Host != "" {
			h.registry.set(m.UniqueAddress, fmt.Sprintf("%s:%d", m.UniqueAddress.Address.Host, m.UniqueAddress.Address.Port))
		}
	}
	h.coordinator.ObserveGossip(snap)
}

// HandleAckRequest acknowledges that the leaving member is known to
// this node's own view, the weakest form of "I have seen you leaving"
// the spec leaves room for (spec has no stronger ack contract than
// "every other member has acknowledged").
func (h *nodeHandler) HandleAckRequest(ctx context.Context, from, leaving address.UniqueAddress) error {
	for _, m := range h.coordinator.Members() {
		if m.UniqueAddress == leaving {
			return nil
		}
	}
	return fmt.Errorf("membernode: unknown leaving member %s", leaving.Address.String())
}

func runGossipLoop(ctx context.Context, c *cluster.Coordinator, t transport.Transport, reg *addressRegistry, logger *telemetry.Logger) {
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Snapshot()
			for _, m := range c.Members() {
				if m.UniqueAddress == snap.Sender {
					continue
				}
				addr, ok := reg.lookup(m.UniqueAddress)
				if !ok {
					continue
				}
				if err := t.SendGossip(ctx, addr, snap); err != nil {
					logger.MembershipEvent("gossip-send-error", m.UniqueAddress)
				}
			}
		}
	}
}

func runLeaderLoop(ctx context.Context, c *cluster.Coordinator, t transport.Transport, reg *addressRegistry) {
	ticker := time.NewTicker(leaderInterval)
	defer ticker.Stop()
	ack := transport.AckFuncFor(t, reg.lookup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if err := c.RunDowningPolicy(); err != nil {
				continue
			}
			for _, dc := range knownDatacenters(c) {
				if _, err := c.LeaderActions(ctx, dc, now, ack); err != nil {
					continue
				}
			}
			c.PruneTombstones(now)
		}
	}
}

func runProbeLoop(ctx context.Context, c *cluster.Coordinator, fd transport.FailureDetector, reg *addressRegistry) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	self := c.Snapshot().Sender
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, m := range c.Members() {
				if m.UniqueAddress == self {
					continue
				}
				addr, ok := reg.lookup(m.UniqueAddress)
				if !ok {
					continue
				}
				c.ObserveReachability(m.UniqueAddress, fd.Check(ctx, addr))
			}
			telemetry.RecordUnreachableCount("", len(c.Unreachable()))
		}
	}
}

func knownDatacenters(c *cluster.Coordinator) []string {
	seen := make(map[string]bool)
	var dcs []string
	for _, m := range c.Members() {
		dc := m.DataCenter()
		if !seen[dc] {
			seen[dc] = true
			dcs = append(dcs, dc)
		}
	}
	return dcs
}

func startDiscovery(ctx context.Context, cfg config.Config, self address.UniqueAddress, hostPort string, reg *addressRegistry, logger *telemetry.Logger) func() {
	cli, err := discovery.NewClient(cfg.EtcdEndpoints, cfg.EtcdDialTimeout)
	if err != nil {
		logger.MembershipEvent("discovery-dial-error", self)
		return nil
	}

	id := self.Address.String()
	_, cancelLease, err := discovery.RegisterNode(ctx, cli, id, hostPort, cfg.EtcdLeaseTTL)
	if err != nil {
		logger.MembershipEvent("discovery-register-error", self)
		cli.Close()
		return nil
	}

	err = discovery.WatchSeeds(ctx, cli, func(seeds map[string]string) {
		for seedID, addr := range seeds {
			reg.set(address.UniqueAddress{Address: address.Address{Host: seedID}}, addr)
		}
	})
	if err != nil {
		logger.MembershipEvent("discovery-watch-error", self)
	}

	return func() {
		cancelLease()
		cli.Close()
	}
}

func splitHostPort(hostPort string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}
