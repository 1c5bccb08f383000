package httpmw

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

// Recover turns a handler panic into a logged 500. onPanic, when set, runs
// after logging (metrics). http.ErrAbortHandler is re-panicked so net/http
// can abort the connection as intended.
func Recover(L log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				L.Error(r.Context(), xerrors.WithStack(err), "panic in http handler",
					"request_id", RequestIDFromContext(r.Context()),
					"http.request.method", r.Method,
					"panic_stack", string(debug.Stack()),
				)
				if onPanic != nil {
					onPanic()
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
