// Package telemetry exposes Prometheus metrics and a zap logger for
// the membership coordinator. Metrics grounded on
// ryandielhenn-zephyrcache/internal/telemetry/metrics.go's registry
// and metric-family shapes, relabeled from HTTP request counters to
// membership-status gauges and a leader-change counter.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbus-cluster/membercore/status"
)

var (
	Registry = prometheus.NewRegistry()

	MembersByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "membercore",
			Name:      "members",
			Help:      "Current member count by datacenter and status.",
		},
		[]string{"datacenter", "status"},
	)

	UnreachableMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "membercore",
			Name:      "unreachable_members",
			Help:      "Current count of members flagged unreachable.",
		},
		[]string{"datacenter"},
	)

	LeaderChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membercore",
			Name:      "leader_changes_total",
			Help:      "Total number of LeaderChanged events observed.",
		},
		[]string{"datacenter"},
	)

	GossipRoundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "membercore",
			Name:      "gossip_round_duration_seconds",
			Help:      "Latency of one outbound gossip round.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "membercore",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "membercore",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(MembersByStatus, UnreachableMembers, LeaderChangesTotal, GossipRoundDuration, buildInfo, uptime)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// SetMemberCounts replaces MembersByStatus's values for dc with the
// counts a caller has just tallied from Coordinator.Members(), zeroing
// every status not present in counts so a status that just emptied out
// doesn't linger at its last nonzero value.
func SetMemberCounts(dc string, counts map[status.MemberStatus]int) {
	for _, s := range allStatuses {
		MembersByStatus.WithLabelValues(dc, s.String()).Set(float64(counts[s]))
	}
}

var allStatuses = []status.MemberStatus{
	status.Joining, status.WeaklyUp, status.Up, status.Leaving,
	status.Exiting, status.Down, status.Removed,
	status.PreparingForShutdown, status.ReadyForShutdown,
}

func RecordLeaderChange(dc string) {
	LeaderChangesTotal.WithLabelValues(dc).Inc()
}

func RecordUnreachableCount(dc string, n int) {
	UnreachableMembers.WithLabelValues(dc).Set(float64(n))
}
