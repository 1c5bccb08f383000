package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohowe1/clipboard/internal/health"
	"github.com/ohowe1/clipboard/internal/log"
)

func doRequest(h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, body))
	return rec
}

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func testRoutes(r chi.Router) {
	r.Get("/{register}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("register " + chi.URLParam(r, "register")))
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
}

func TestNewHandler_RoutesAndHeaders(t *testing.T) {
	h := NewHandler(Options{Logger: log.Nop(), Routes: testRoutes})
	rec := doRequest(h, "GET", "/notes", nil)

	if rec.Code != http.StatusOK || rec.Body.String() != "register notes" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	for _, hdr := range []string{"Content-Security-Policy", "X-Request-Id", "X-Frame-Options"} {
		if rec.Header().Get(hdr) == "" {
			t.Errorf("%s missing", hdr)
		}
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestNewHandler_MaxBody(t *testing.T) {
	h := NewHandler(Options{Routes: testRoutes, MaxBodyBytes: 16})

	if rec := doRequest(h, "POST", "/echo", strings.NewReader("short")); rec.Code != http.StatusNoContent {
		t.Fatalf("small body: %d", rec.Code)
	}
	if rec := doRequest(h, "POST", "/echo", strings.NewReader(strings.Repeat("x", 64))); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large body: %d", rec.Code)
	}
}

func TestNewHandler_Recover(t *testing.T) {
	panics := 0
	h := NewHandler(Options{Routes: testRoutes, UseRecoverMW: true, OnPanic: func() { panics++ }})
	rec := doRequest(h, "GET", "/panic", nil)

	if rec.Code != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("status %d, panics %d", rec.Code, panics)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("security headers should be set even on panics")
	}
}

func TestNewHandler_HealthProbes(t *testing.T) {
	var gate health.ShutdownGate
	h := NewHandler(Options{Health: health.Fixed(true, ""), Readiness: gate.Probe()})

	if rec := doRequest(h, "GET", "/-/healthy", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthy: %d", rec.Code)
	}
	gate.Set("draining")
	if rec := doRequest(h, "GET", "/-/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready while draining: %d", rec.Code)
	}
}

func TestNewHandler_MiddlewareHooks(t *testing.T) {
	var metricsSeen, rateSeen bool
	h := NewHandler(Options{
		Routes: testRoutes,
		MetricsMW: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { metricsSeen = true; next.ServeHTTP(w, r) })
		},
		RateLimitMW: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { rateSeen = true; next.ServeHTTP(w, r) })
		},
	})
	doRequest(h, "GET", "/x", nil)
	if !metricsSeen || !rateSeen {
		t.Fatalf("metrics=%v ratelimit=%v", metricsSeen, rateSeen)
	}
}

func TestShouldTrace(t *testing.T) {
	for p, want := range map[string]bool{
		"/":                 true,
		"/paste/text":       true,
		"/-/ready":          false,
		"/static/style.css": false,
		"/favicon.ico":      false,
	} {
		if got := shouldTrace(p); got != want {
			t.Errorf("shouldTrace(%q) = %v", p, got)
		}
	}
}

func TestStart_ServeAndStop(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()
	stop, err := Start(ctx, Options{Port: port, Routes: testRoutes})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/abc", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "register abc" {
		t.Fatalf("body = %q", body)
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, err := http.Get(url); err == nil {
		t.Fatal("server still accepting after stop")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	_, err = Start(context.Background(), Options{Port: ln.Addr().(*net.TCPAddr).Port})
	if err == nil {
		t.Fatal("expected listen error")
	}
}
