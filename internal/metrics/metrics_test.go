package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	registry := prometheus.NewRegistry()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustRegister() panicked: %v", r)
		}
	}()
	MustRegister(registry)

	// Record one value per collector so everything shows up in Gather.
	RecordIngest("accepted")
	RecordDelivery("succeeded", 100*time.Millisecond)
	RecordRetry("http_5xx")
	RecordCache(true)
	RecordSwept("attempts", 3)
	RecordRecovered(2)
	UpdateWorkerBacklog(5)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Registry.Gather() error: %v", err)
	}

	expected := []string{
		"hookline_ingest_total",
		"hookline_deliveries_total",
		"hookline_delivery_duration_seconds",
		"hookline_retries_total",
		"hookline_subscription_cache_total",
		"hookline_swept_total",
		"hookline_recovered_total",
		"hookline_worker_backlog",
	}

	registered := make(map[string]bool)
	for _, mf := range families {
		registered[mf.GetName()] = true
	}
	for _, name := range expected {
		if !registered[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestRecordIngest(t *testing.T) {
	IngestTotal.Reset()

	RecordIngest("accepted")
	RecordIngest("accepted")
	RecordIngest("auth_failed")

	if got := testutil.ToFloat64(IngestTotal.WithLabelValues("accepted")); got != 2 {
		t.Errorf("accepted counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(IngestTotal.WithLabelValues("auth_failed")); got != 1 {
		t.Errorf("auth_failed counter = %v, want 1", got)
	}
}

func TestRecordDelivery(t *testing.T) {
	DeliveriesTotal.Reset()

	RecordDelivery("succeeded", 50*time.Millisecond)
	RecordDelivery("retrying", 10*time.Millisecond)
	RecordDelivery("failed", 0) // zero latency skips the histogram

	for status, want := range map[string]float64{"succeeded": 1, "retrying": 1, "failed": 1} {
		if got := testutil.ToFloat64(DeliveriesTotal.WithLabelValues(status)); got != want {
			t.Errorf("%s counter = %v, want %v", status, got, want)
		}
	}
}

func TestRecordCache(t *testing.T) {
	CacheTotal.Reset()

	RecordCache(true)
	RecordCache(true)
	RecordCache(false)

	if got := testutil.ToFloat64(CacheTotal.WithLabelValues("hit")); got != 2 {
		t.Errorf("hit counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CacheTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss counter = %v, want 1", got)
	}
}

func TestRecordSwept(t *testing.T) {
	SweptTotal.Reset()

	RecordSwept("attempts", 7)
	RecordSwept("attempts", 0) // zero is not recorded
	RecordSwept("deliveries", 2)

	if got := testutil.ToFloat64(SweptTotal.WithLabelValues("attempts")); got != 7 {
		t.Errorf("attempts counter = %v, want 7", got)
	}
	if got := testutil.ToFloat64(SweptTotal.WithLabelValues("deliveries")); got != 2 {
		t.Errorf("deliveries counter = %v, want 2", got)
	}
}

func TestUpdateWorkerBacklog(t *testing.T) {
	UpdateWorkerBacklog(42)
	if got := testutil.ToFloat64(WorkerBacklog); got != 42 {
		t.Errorf("backlog gauge = %v, want 42", got)
	}
	UpdateWorkerBacklog(0)
	if got := testutil.ToFloat64(WorkerBacklog); got != 0 {
		t.Errorf("backlog gauge = %v, want 0", got)
	}
}
