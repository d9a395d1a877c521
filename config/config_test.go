package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	keys := []string{
		envAddress, envPort, envRoles, envAppVersion, envAllowWeaklyUpMembers,
		envDowningProviderClass, envAutoDownUnreachableAfter, envWeaklyUpBatchLimit,
		envTombstoneTTL, envInitiator, envEtcdEndpoints, envEtcdDialTimeout,
		envEtcdLeaseTTL, envMetricsAddress,
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Address != "localhost" || c.Port != 0 {
		t.Fatalf("expected default address/port, got %+v", c)
	}
	if c.AllowWeaklyUpAfter != 0 {
		t.Fatalf("expected WeaklyUp promotion off by default, got %v", c.AllowWeaklyUpAfter)
	}
	if c.WeaklyUpBatchLimit != 1 {
		t.Fatalf("expected default batch limit 1, got %d", c.WeaklyUpBatchLimit)
	}
	if c.TombstoneTTL != 24*time.Hour {
		t.Fatalf("expected default tombstone ttl 24h, got %v", c.TombstoneTTL)
	}
	if len(c.Roles) != 0 {
		t.Fatalf("expected no roles by default, got %v", c.Roles)
	}
}

func TestFromEnvParsesRolesAndDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv(envRoles, "dc-east, worker")
	t.Setenv(envAllowWeaklyUpMembers, "3s")
	t.Setenv(envTombstoneTTL, "1h")
	t.Setenv(envWeaklyUpBatchLimit, "5")
	t.Setenv(envPort, "2551")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if len(c.Roles) != 2 || c.Roles[0] != "dc-east" || c.Roles[1] != "worker" {
		t.Fatalf("unexpected roles: %v", c.Roles)
	}
	if c.AllowWeaklyUpAfter != 3*time.Second {
		t.Fatalf("expected 3s, got %v", c.AllowWeaklyUpAfter)
	}
	if c.TombstoneTTL != time.Hour {
		t.Fatalf("expected 1h, got %v", c.TombstoneTTL)
	}
	if c.WeaklyUpBatchLimit != 5 {
		t.Fatalf("expected 5, got %d", c.WeaklyUpBatchLimit)
	}
	if c.Port != 2551 {
		t.Fatalf("expected port 2551, got %d", c.Port)
	}
}

func TestFromEnvOffDisablesWeaklyUp(t *testing.T) {
	clearEnv(t)
	t.Setenv(envAllowWeaklyUpMembers, "off")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.AllowWeaklyUpAfter != 0 {
		t.Fatalf("expected off to leave AllowWeaklyUpAfter at zero, got %v", c.AllowWeaklyUpAfter)
	}
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv(envAllowWeaklyUpMembers, "not-a-duration")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error for an invalid duration")
	}
}

func TestFromEnvSplitsEtcdEndpoints(t *testing.T) {
	clearEnv(t)
	t.Setenv(envEtcdEndpoints, "http://a:2379, http://b:2379")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if len(c.EtcdEndpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %v", c.EtcdEndpoints)
	}
}
