package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ohowe1/clipboard/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	// clipboard
	writesTotal   *prometheus.CounterVec
	readsTotal    *prometheus.CounterVec
	removesTotal  prometheus.Counter
	lockToggles   *prometheus.CounterVec
	loginAttempts *prometheus.CounterVec
	accessDenied  *prometheus.CounterVec
	backendOpDur  *prometheus.HistogramVec
}

// New returns a fresh registry with the Go and process collectors, HTTP
// metrics keyed on route patterns (never raw paths), and the clipboard
// counters.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the rate limiter client table was full",
		}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_register_writes_total",
			Help: "Successful register writes by content kind",
		}, []string{"kind"}),
		readsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_register_reads_total",
			Help: "Register reads by result (text, url, file, empty, blob_missing, error)",
		}, []string{"result"}),
		removesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipboard_register_removes_total",
			Help: "Successful register removals",
		}),
		lockToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_lock_toggles_total",
			Help: "Lock state changes by action (extend, clear)",
		}, []string{"action"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_login_attempts_total",
			Help: "Login attempts by result (success, failure)",
		}, []string{"result"}),
		accessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_access_denied_total",
			Help: "Requests rejected by the access policy by action",
		}, []string{"action"}),
		backendOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipboard_backend_op_duration_seconds",
			Help:    "Backing store call latency by backend, operation, and result",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"backend", "op", "result"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.profilingActive,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.writesTotal,
		m.readsTotal,
		m.removesTotal,
		m.lockToggles,
		m.loginAttempts,
		m.accessDenied,
		m.backendOpDur,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// SetBuildInfo is called once at startup.
func (m *ServerMetrics) SetBuildInfo(vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        vi.App,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncRateLimitDenied() { m.ratelimitDeniedTotal.Inc() }

func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacityTotal.Inc() }

func (m *ServerMetrics) IncRegisterWrite(kind string) { m.writesTotal.WithLabelValues(kind).Inc() }

func (m *ServerMetrics) IncRegisterRead(result string) { m.readsTotal.WithLabelValues(result).Inc() }

func (m *ServerMetrics) IncRegisterRemove() { m.removesTotal.Inc() }

func (m *ServerMetrics) IncLockToggle(action string) { m.lockToggles.WithLabelValues(action).Inc() }

func (m *ServerMetrics) IncLoginAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncAccessDenied(action string) { m.accessDenied.WithLabelValues(action).Inc() }

// ObserveBackendOp records one kv or blob call.
func (m *ServerMetrics) ObserveBackendOp(backend, op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backendOpDur.WithLabelValues(backend, op, result).Observe(d.Seconds())
}
