package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ohowe1/clipboard/internal/health"
	"github.com/ohowe1/clipboard/internal/httpmw"
	"github.com/ohowe1/clipboard/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Routes mounts the application routes on the router.
	Routes func(chi.Router)

	// MaxBodyBytes caps every request body. It must cover the largest
	// upload plus multipart framing. 0 means 1 MiB.
	MaxBodyBytes int64

	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	UseRecoverMW bool
	OnPanic      func()

	Health    health.Probe
	Readiness health.Probe
}
