// Package clipboardhttp serves the clipboard: reading registers, the paste
// forms, the lock page and login.
package clipboardhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ohowe1/clipboard/internal/access"
	"github.com/ohowe1/clipboard/internal/httpmw"
	"github.com/ohowe1/clipboard/internal/lock"
	"github.com/ohowe1/clipboard/internal/pages"
	"github.com/ohowe1/clipboard/internal/register"
	"github.com/ohowe1/clipboard/internal/session"
	"github.com/ohowe1/clipboard/internal/webassets"
)

// Metrics is the slice of metrics.ServerMetrics the handlers report to.
type Metrics interface {
	IncRegisterWrite(kind string)
	IncRegisterRead(result string)
	IncRegisterRemove()
	IncLockToggle(action string)
	IncLoginAttempt(ok bool)
	IncAccessDenied(action string)
}

type nopMetrics struct{}

func (nopMetrics) IncRegisterWrite(string) {}
func (nopMetrics) IncRegisterRead(string)  {}
func (nopMetrics) IncRegisterRemove()      {}
func (nopMetrics) IncLockToggle(string)    {}
func (nopMetrics) IncLoginAttempt(bool)    {}
func (nopMetrics) IncAccessDenied(string)  {}

const defaultMaxUpload = 100 << 20

type Options struct {
	Registers   *register.Store
	Lock        *lock.Gate
	Sessions    *session.Gate
	Policy      *access.Policy
	Credentials session.Credentials
	Pages       *pages.Renderer
	Metrics     Metrics

	// CookieSecure marks the session cookie Secure. Only local plain-HTTP
	// setups turn it off.
	CookieSecure   bool
	MaxUploadBytes int64
}

type API struct {
	registers    *register.Store
	lock         *lock.Gate
	sessions     *session.Gate
	policy       *access.Policy
	creds        session.Credentials
	pages        *pages.Renderer
	metrics      Metrics
	cookieSecure bool
	maxUpload    int64
}

func New(opts Options) *API {
	a := &API{
		registers:    opts.Registers,
		lock:         opts.Lock,
		sessions:     opts.Sessions,
		policy:       opts.Policy,
		creds:        opts.Credentials,
		pages:        opts.Pages,
		metrics:      opts.Metrics,
		cookieSecure: opts.CookieSecure,
		maxUpload:    opts.MaxUploadBytes,
	}
	if a.metrics == nil {
		a.metrics = nopMetrics{}
	}
	if a.policy == nil {
		a.policy = access.New(a.lock)
	}
	if a.maxUpload <= 0 {
		a.maxUpload = defaultMaxUpload
	}
	return a
}

// RegisterRoutes mounts every clipboard route. Register reads are catch-all
// single segments, so they go last.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(webassets.Static()))))

	r.Group(func(r chi.Router) {
		r.Use(a.sessions.Middleware)

		r.With(httpmw.Scope("login")).Get("/login", a.loginPage)
		r.With(httpmw.Scope("login")).Post("/login", a.login)
		r.With(httpmw.Scope("logout")).Post("/logout", a.logout)

		r.Route("/secure", func(r chi.Router) {
			r.Use(requireLogin, httpmw.Scope("lock"))
			r.Get("/lock", a.lockPage)
			r.Post("/lock", a.toggleLock)
		})

		r.Route("/paste", func(r chi.Router) {
			r.Use(httpmw.Scope("paste"))
			r.Get("/", a.pasteIndex)
			r.Post("/page", a.jumpToRegister)
			for _, p := range []string{"", "/{register}"} {
				r.Post("/text"+p, a.writeText)
				r.Post("/url"+p, a.writeURL)
				r.Post("/file"+p, a.writeFile)
				r.Post("/remove"+p, a.remove)
			}
			r.Get("/{register}", a.registerPage)
		})

		r.With(httpmw.Scope("read")).Get("/", a.read)
		r.With(httpmw.Scope("read")).Get("/{register}", a.read)
	})
}

// requireLogin sends anonymous callers to the login page.
func requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
