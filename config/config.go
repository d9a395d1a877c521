// Package config loads the node's configuration surface from
// environment variables, grounded on the teacher's main.go
// (os.Getenv("ADDRESS")/os.Getenv("PORT")/os.Getenv("INITIATOR")),
// generalized to spec.md §6's full configuration table plus the
// transport/discovery settings the teacher's main.go hardcodes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nimbus-cluster/membercore/member"
)

// Config is the node's full startup configuration. Field names mirror
// spec §6's table except where a Go identifier must differ (hyphens to
// camelCase); each field's doc comment names the §6 key it implements.
type Config struct {
	// Address and Port: not in spec §6 (it treats transport as an
	// external collaborator) but required to bind a listener, grounded
	// on the teacher's ADDRESS/PORT env vars.
	Address string
	Port    int

	// Roles is spec's `roles`: must include exactly one `dc-` prefixed
	// datacenter role, enforced by member.New at join time.
	Roles []string

	// AppVersion is spec's `app-version`, default "0.0.0".
	AppVersion member.AppVersion

	// AllowWeaklyUpAfter is spec's `allow-weakly-up-members`. Zero
	// means "off" (WeaklyUp promotion disabled).
	AllowWeaklyUpAfter time.Duration

	// DowningProviderClass is spec's `downing-provider-class`. Only
	// "auto-down-unreachable-after" is built in; any other value is
	// left for the caller to wire a custom DowningPolicy.
	DowningProviderClass string

	// AutoDownUnreachableAfter is spec's `auto-down-unreachable-after`,
	// consumed by the built-in downing.AutoDownUnreachableAfter policy.
	AutoDownUnreachableAfter time.Duration

	// WeaklyUpBatchLimit is spec's `weakly-up-batch-limit`.
	WeaklyUpBatchLimit int

	// TombstoneTTL is spec's `tombstone-ttl`.
	TombstoneTTL time.Duration

	// InitiatorAddress seeds the local view from a single known peer,
	// grounded on the teacher's INITIATOR env var. Mutually usable
	// alongside EtcdEndpoints; either, both, or neither may be set.
	InitiatorAddress string

	// EtcdEndpoints, when non-empty, enables discovery.* seed
	// registration and watching against this etcd cluster.
	EtcdEndpoints []string
	// EtcdDialTimeout bounds the initial etcd dial.
	EtcdDialTimeout time.Duration
	// EtcdLeaseTTL is the lease length (seconds) RegisterNode renews
	// under while this process is alive.
	EtcdLeaseTTL int64

	// MetricsAddress, if non-empty, serves telemetry.MetricsHandler on
	// this address. Empty disables the metrics listener.
	MetricsAddress string
}

const (
	envAddress                  = "ADDRESS"
	envPort                     = "PORT"
	envRoles                    = "ROLES"
	envAppVersion               = "APP_VERSION"
	envAllowWeaklyUpMembers     = "ALLOW_WEAKLY_UP_MEMBERS"
	envDowningProviderClass     = "DOWNING_PROVIDER_CLASS"
	envAutoDownUnreachableAfter = "AUTO_DOWN_UNREACHABLE_AFTER"
	envWeaklyUpBatchLimit       = "WEAKLY_UP_BATCH_LIMIT"
	envTombstoneTTL             = "TOMBSTONE_TTL"
	envInitiator                = "INITIATOR"
	envEtcdEndpoints            = "ETCD_ENDPOINTS"
	envEtcdDialTimeout          = "ETCD_DIAL_TIMEOUT"
	envEtcdLeaseTTL             = "ETCD_LEASE_TTL"
	envMetricsAddress           = "METRICS_ADDRESS"

	offKeyword = "off"
)

// FromEnv loads Config from the process environment, applying spec
// §9's conservative defaults wherever a variable is unset.
func FromEnv() (Config, error) {
	c := Config{
		Address:                  getenvDefault(envAddress, "localhost"),
		AppVersion:               member.AppVersion(getenvDefault(envAppVersion, string(member.DefaultAppVersion))),
		DowningProviderClass:     getenvDefault(envDowningProviderClass, "auto-down-unreachable-after"),
		WeaklyUpBatchLimit:       1,
		TombstoneTTL:             24 * time.Hour,
		AutoDownUnreachableAfter: 10 * time.Second,
		EtcdDialTimeout:          5 * time.Second,
		EtcdLeaseTTL:             10,
		InitiatorAddress:         os.Getenv(envInitiator),
		MetricsAddress:           os.Getenv(envMetricsAddress),
	}

	port, err := strconv.Atoi(getenvDefault(envPort, "0"))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", envPort, err)
	}
	c.Port = port

	if roles := os.Getenv(envRoles); roles != "" {
		c.Roles = splitNonEmpty(roles, ",")
	}

	if v := os.Getenv(envAllowWeaklyUpMembers); v != "" && v != offKeyword {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envAllowWeaklyUpMembers, err)
		}
		c.AllowWeaklyUpAfter = d
	}

	if v := os.Getenv(envAutoDownUnreachableAfter); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envAutoDownUnreachableAfter, err)
		}
		c.AutoDownUnreachableAfter = d
	}

	if v := os.Getenv(envWeaklyUpBatchLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envWeaklyUpBatchLimit, err)
		}
		c.WeaklyUpBatchLimit = n
	}

	if v := os.Getenv(envTombstoneTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envTombstoneTTL, err)
		}
		c.TombstoneTTL = d
	}

	if v := os.Getenv(envEtcdDialTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envEtcdDialTimeout, err)
		}
		c.EtcdDialTimeout = d
	}

	if v := os.Getenv(envEtcdLeaseTTL); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envEtcdLeaseTTL, err)
		}
		c.EtcdLeaseTTL = n
	}

	if v := os.Getenv(envEtcdEndpoints); v != "" {
		c.EtcdEndpoints = splitNonEmpty(v, ",")
	}

	return c, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
