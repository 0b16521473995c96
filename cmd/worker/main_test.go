package main

import (
	"testing"
	"time"

	"github.com/hookline/hookline/internal/config"
)

func TestDeliveryPolicy(t *testing.T) {
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("INITIAL_RETRY_DELAY", "3s")
	t.Setenv("MAX_RETRY_BACKOFF", "60s")
	t.Setenv("BACKOFF_JITTER_PCT", "0.1")
	t.Setenv("RESPONSE_BODY_LIMIT", "1024")

	p := deliveryPolicy(config.FromEnv())
	if p.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", p.MaxRetries)
	}
	if p.Backoff.Initial != 3*time.Second {
		t.Errorf("Backoff.Initial = %v, want 3s", p.Backoff.Initial)
	}
	if p.Backoff.Max != time.Minute {
		t.Errorf("Backoff.Max = %v, want 1m", p.Backoff.Max)
	}
	if p.Backoff.JitterPct != 0.1 {
		t.Errorf("Backoff.JitterPct = %v, want 0.1", p.Backoff.JitterPct)
	}
	if p.ResponseBodyLimit != 1024 {
		t.Errorf("ResponseBodyLimit = %d, want 1024", p.ResponseBodyLimit)
	}
}

func TestLookupdAddrs(t *testing.T) {
	// Default: no lookupd configured, the consumer only dials nsqd directly.
	t.Setenv("NSQ_LOOKUP_HTTP_ADDR", "")
	if addrs := lookupdAddrs(config.FromEnv()); len(addrs) != 0 {
		t.Errorf("lookupdAddrs() = %v, want none without an address", addrs)
	}

	t.Setenv("NSQ_LOOKUP_HTTP_ADDR", "nsqlookupd:4161")
	addrs := lookupdAddrs(config.FromEnv())
	if len(addrs) != 1 || addrs[0] != "nsqlookupd:4161" {
		t.Errorf("lookupdAddrs() = %v, want the configured endpoint", addrs)
	}
}
