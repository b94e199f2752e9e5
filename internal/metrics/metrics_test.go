package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetBuildInfo(t *testing.T) {
	BuildInfo.Reset()

	SetBuildInfo("v1.0.0", "go1.24")

	count := testutil.CollectAndCount(BuildInfo)
	if count != 1 {
		t.Errorf("expected 1 metric, got %d", count)
	}

	value := testutil.ToFloat64(BuildInfo.WithLabelValues("v1.0.0", "go1.24"))
	if value != 1 {
		t.Errorf("expected value 1, got %f", value)
	}
}

func TestAPIMetrics(t *testing.T) {
	APIRequests.Reset()
	APIRetries.Reset()

	for range 3 {
		APIRequests.WithLabelValues("dnsimple", "list_records", "200").Inc()
	}
	APIRequests.WithLabelValues("dnsimple", "create_record", "429").Inc()
	APIRetries.WithLabelValues("dnsimple", "create_record", "rate_limited").Inc()
	APIDuration.WithLabelValues("dnsimple", "list_records").Observe(0.2)

	if got := testutil.ToFloat64(APIRequests.WithLabelValues("dnsimple", "list_records", "200")); got != 3 {
		t.Errorf("expected 3 list requests, got %f", got)
	}
	if got := testutil.ToFloat64(APIRetries.WithLabelValues("dnsimple", "create_record", "rate_limited")); got != 1 {
		t.Errorf("expected 1 retry, got %f", got)
	}
	if got := testutil.CollectAndCount(APIRequests); got != 2 {
		t.Errorf("expected 2 request series, got %d", got)
	}
}

func TestSyncMetrics(t *testing.T) {
	Refreshes.Reset()
	Commits.Reset()

	Refreshes.WithLabelValues("ok").Inc()
	Refreshes.WithLabelValues("error").Inc()
	Commits.WithLabelValues("update", "ok").Inc()
	PendingRecords.Set(2)

	if got := testutil.ToFloat64(Refreshes.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 successful refresh, got %f", got)
	}
	if got := testutil.ToFloat64(Commits.WithLabelValues("update", "ok")); got != 1 {
		t.Errorf("expected 1 commit, got %f", got)
	}
	if got := testutil.ToFloat64(PendingRecords); got != 2 {
		t.Errorf("expected 2 pending records, got %f", got)
	}

	before := testutil.ToFloat64(Conflicts)
	Conflicts.Inc()
	if got := testutil.ToFloat64(Conflicts); got != before+1 {
		t.Errorf("expected conflicts to grow by 1, got %f", got-before)
	}
}

func TestMetricNames(t *testing.T) {
	expectedPrefix := Namespace + "_"

	collectors := []prometheus.Collector{
		BuildInfo,
		APIRequests,
		APIRetries,
		APIDuration,
		Refreshes,
		Conflicts,
		Commits,
		PendingRecords,
	}

	SetBuildInfo("test", "go")
	APIRequests.WithLabelValues("p", "op", "200").Inc()
	APIRetries.WithLabelValues("p", "op", "transient").Inc()
	APIDuration.WithLabelValues("p", "op").Observe(1)
	Refreshes.WithLabelValues("ok").Inc()
	Commits.WithLabelValues("create", "ok").Inc()

	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		c.Describe(ch)
		close(ch)
		for desc := range ch {
			if !strings.Contains(desc.String(), `fqName: "`+expectedPrefix) {
				t.Errorf("expected metric name with prefix %q, got %s", expectedPrefix, desc.String())
			}
		}
	}
}
