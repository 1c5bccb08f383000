package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ohowe1/clipboard/internal/health"
	"github.com/ohowe1/clipboard/internal/httpmw"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

const defaultMaxBody = 1 << 20

// NewHandler builds the public handler: chi router plus the middleware
// stack. main owns the *http.Server so it controls shutdown.
func NewHandler(opts Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	r := chi.NewRouter()

	// file downloads keep their stored encoding, only pages are compressed
	r.Use(middleware.Compress(5, "text/html", "text/css", "text/plain"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.NoStore)

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}
	if opts.Routes != nil {
		opts.Routes(r)
	}

	// outermost last
	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}
	h = httpmw.TraceID(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return shouldTrace(r.URL.Path) }),
		// AnnotateHTTPRoute renames the span to the matched pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method }),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
	h = httpmw.MaxBody(maxBody)(h)
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}
	h = httpmw.SecurityHeaders(h)
	return h
}

func shouldTrace(p string) bool {
	switch p {
	case "/favicon.ico", "/robots.txt", "/-/healthy", "/-/ready":
		return false
	}
	return !strings.HasPrefix(p, "/static/")
}

// Server timeout defaults, shared with opshttp. WriteTimeout is generous
// because file downloads stream through the same server.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 2 * time.Minute
	DefaultWriteTimeout      = 5 * time.Minute
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port and serves in the background. The returned
// stop func shuts down gracefully and is safe to call more than once.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}

	go func() {
		L.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 15*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
