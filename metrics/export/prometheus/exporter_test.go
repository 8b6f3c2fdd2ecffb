package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	exuberant "github.com/exuberant-im/exuberant"
)

type fakeSource struct {
	snapshot exuberant.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() exuberant.MetricsSnapshot { return f.snapshot }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: exuberant.MetricsSnapshot{
			Counters:   map[exuberant.MetricID]uint64{},
			Histograms: map[exuberant.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: exuberant.MetricsSnapshot{
			Counters: map[exuberant.MetricID]uint64{
				exuberant.MetricLoginSuccess: 7,
			},
			Histograms: map[exuberant.MetricID][]uint64{
				exuberant.MetricResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	out := exp.Render()
	if !strings.Contains(out, "exuberant_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "exuberant_resolve_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "exuberant_resolve_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: exuberant.MetricsSnapshot{
			Counters:   map[exuberant.MetricID]uint64{exuberant.MetricLoginSuccess: 1},
			Histograms: map[exuberant.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "exuberant_login_success_total 1") {
		t.Fatalf("handler body missing counter:\n%s", rec.Body.String())
	}
}
