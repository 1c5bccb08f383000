package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"

	"github.com/ohowe1/clipboard/internal/version"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// counterValue sums a counter family, optionally filtered to one label value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		return 0
	}
	var sum float64
	for _, m := range f.GetMetric() {
		if label != "" && !hasLabel(m, label, value) {
			continue
		}
		sum += m.GetCounter().GetValue()
	}
	return sum
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestNew_ScrapeIncludesCollectors(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"go_goroutines", "http_inflight_requests", "clipboard_register_removes_total", "profiling_active"} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %q missing from scrape", name)
		}
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncRegisterRemove()
	if got := counterValue(t, b.reg, "clipboard_register_removes_total", "", ""); got != 0 {
		t.Fatalf("second registry saw %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.IncRegisterWrite("text")
	m.IncRegisterWrite("text")
	m.IncRegisterWrite("file")
	m.IncRegisterRead("empty")
	m.IncLockToggle("extend")
	m.IncLoginAttempt(true)
	m.IncLoginAttempt(false)
	m.IncLoginAttempt(false)
	m.IncAccessDenied("write")

	if got := counterValue(t, m.reg, "clipboard_register_writes_total", "kind", "text"); got != 2 {
		t.Errorf("text writes = %v", got)
	}
	if got := counterValue(t, m.reg, "clipboard_register_writes_total", "kind", "file"); got != 1 {
		t.Errorf("file writes = %v", got)
	}
	if got := counterValue(t, m.reg, "clipboard_register_reads_total", "result", "empty"); got != 1 {
		t.Errorf("empty reads = %v", got)
	}
	if got := counterValue(t, m.reg, "clipboard_lock_toggles_total", "action", "extend"); got != 1 {
		t.Errorf("extend toggles = %v", got)
	}
	if got := counterValue(t, m.reg, "clipboard_login_attempts_total", "result", "failure"); got != 2 {
		t.Errorf("failed logins = %v", got)
	}
	if got := counterValue(t, m.reg, "clipboard_access_denied_total", "action", "write"); got != 1 {
		t.Errorf("denied writes = %v", got)
	}
}

func TestObserveBackendOp(t *testing.T) {
	m := New()
	m.ObserveBackendOp("pebble", "get", 2*time.Millisecond, nil)
	m.ObserveBackendOp("s3", "put", time.Second, errors.New("timeout"))

	f := gatherMetric(t, m.reg, "clipboard_backend_op_duration_seconds")
	if f == nil {
		t.Fatal("histogram missing")
	}
	var sawErr bool
	for _, mm := range f.GetMetric() {
		if hasLabel(mm, "backend", "s3") && hasLabel(mm, "result", "error") {
			sawErr = mm.GetHistogram().GetSampleCount() == 1
		}
	}
	if !sawErr {
		t.Fatal("expected one s3 error observation")
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	dirty := false
	m.SetBuildInfo(version.Info{App: "clipboard", Version: "1.0.0", Commit: "abc", GoVersion: "go1.24", VCSDirty: &dirty})

	f := gatherMetric(t, m.reg, "build_info")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatal("build_info missing")
	}
	mm := f.GetMetric()[0]
	if !hasLabel(mm, "version", "1.0.0") || !hasLabel(mm, "vcs_dirty", "false") {
		t.Fatalf("labels = %v", mm.GetLabel())
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if v := gatherMetric(t, m.reg, "profiling_active").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Fatalf("profiling_active = %v", v)
	}
	m.SetProfilingActive(false)
	if v := gatherMetric(t, m.reg, "profiling_active").GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Fatalf("profiling_active = %v", v)
	}
}

// Middleware

func TestMiddleware_ChiRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/{register}", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("hello")) })
	h := m.Middleware(r)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/notes", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/other", nil))

	if got := counterValue(t, m.reg, "http_requests_total", "route", "/{register}"); got != 2 {
		t.Fatalf("requests for /{register} = %v", got)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/paste", func(w http.ResponseWriter, r *http.Request) {})
	h := m.Middleware(r)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope/at/all", nil))

	if got := counterValue(t, m.reg, "http_requests_total", "route", "unmatched"); got != 1 {
		t.Fatalf("unmatched = %v", got)
	}
}

func TestMiddleware_ErrorCounter(t *testing.T) {
	m := New()
	codes := []int{200, 404, 500, 503}
	for _, c := range codes {
		code := c
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) }))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/paste/text", nil))
	}
	if got := counterValue(t, m.reg, "http_errors_total", "", ""); got != 2 {
		t.Fatalf("5xx errors = %v, want 2", got)
	}
	if got := counterValue(t, m.reg, "http_requests_total", "status", "404"); got != 1 {
		t.Fatalf("404s = %v", got)
	}
}

func TestMiddleware_ResponseSizeAndDefaultStatus(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1000))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Body.Len() != 1000 {
		t.Fatalf("body passthrough = %d", rec.Body.Len())
	}
	if got := counterValue(t, m.reg, "http_requests_total", "status", "200"); got != 1 {
		t.Fatalf("200s = %v", got)
	}
	f := gatherMetric(t, m.reg, "http_response_size_bytes")
	if f.GetMetric()[0].GetHistogram().GetSampleSum() != 1000 {
		t.Fatalf("size sum = %v", f.GetMetric()[0].GetHistogram().GetSampleSum())
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if during != 1 {
		t.Fatalf("inflight during request = %v", during)
	}
	if after := gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue(); after != 0 {
		t.Fatalf("inflight after = %v", after)
	}
}

func TestTraceExemplar(t *testing.T) {
	if traceExemplar(context.Background()) != nil {
		t.Fatal("no span should give no exemplar")
	}
	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")

	unsampled := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid}))
	if traceExemplar(unsampled) != nil {
		t.Fatal("unsampled span should give no exemplar")
	}

	sampled := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled}))
	ex := traceExemplar(sampled)
	if ex["trace_id"] != tid.String() {
		t.Fatalf("exemplar = %v", ex)
	}
}
