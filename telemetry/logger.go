package telemetry

import (
	"go.uber.org/zap"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/status"
)

// Logger wraps zap.Logger with call sites shaped around spec.md §7's
// error kinds and §6's observable events, since the teacher's own
// logging is bare fmt.Println and the rest of the pack (zephyrcache)
// names zap in its go.mod without ever wiring it up.
type Logger struct {
	z *zap.Logger
}

// NewLogger builds a production zap.Logger (JSON encoding, info level).
func NewLogger() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) StatusTransition(ua address.UniqueAddress, from, to status.MemberStatus) {
	l.z.Info("member status transition",
		zap.String("address", ua.Address.String()),
		zap.Int64("uid", ua.Uid),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (l *Logger) LeaderChanged(dc string, leader address.UniqueAddress, hasLeader bool) {
	if !hasLeader {
		l.z.Info("datacenter lost its leader", zap.String("datacenter", dc))
		return
	}
	l.z.Info("leader changed",
		zap.String("datacenter", dc),
		zap.String("leader", leader.Address.String()),
	)
}

func (l *Logger) MissingDatacenterRole(ua address.UniqueAddress) {
	l.z.Debug("dropped member with no datacenter role", zap.String("address", ua.Address.String()))
}

func (l *Logger) TombstoneViolation(ua address.UniqueAddress) {
	l.z.Debug("dropped gossip from tombstoned sender", zap.String("address", ua.Address.String()))
}

func (l *Logger) StaleReachability(ua address.UniqueAddress) {
	l.z.Debug("ignored reachability signal for unknown address", zap.String("address", ua.Address.String()))
}

func (l *Logger) DowningOnNonMember(ua address.UniqueAddress) {
	l.z.Debug("ignored downing request for unknown address", zap.String("address", ua.Address.String()))
}

// MembershipEvent logs any cluster.Event by its String() kind, for the
// subscriber call site that doesn't have a dedicated method above.
func (l *Logger) MembershipEvent(kind string, ua address.UniqueAddress) {
	l.z.Info("membership event", zap.String("kind", kind), zap.String("address", ua.Address.String()))
}

func (l *Logger) CoordinatorPoisoned(err error) {
	l.z.Error("coordinator poisoned by an invalid transition", zap.Error(err))
}
