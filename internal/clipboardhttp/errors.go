package clipboardhttp

import (
	"errors"
	"net/http"

	"github.com/ohowe1/clipboard/internal/access"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/pages"
	"github.com/ohowe1/clipboard/internal/session"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

func statusFor(err error) int {
	switch xerrors.KindOf(err) {
	case xerrors.ErrValidation:
		return http.StatusBadRequest
	case xerrors.ErrNotFound:
		return http.StatusNotFound
	case xerrors.ErrUnauthorized:
		return http.StatusUnauthorized
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// fail renders err as a page. Server-side failures are logged with their
// chain; the caller only sees the status text.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := statusFor(err)
	L := log.FromContext(ctx)

	d := pages.Data{LoggedIn: session.FromContext(ctx).Authenticated(), Title: http.StatusText(status)}
	switch {
	case status >= 500:
		L.Error(ctx, err, "request failed", "status", status)
	case errors.Is(err, access.ErrLocked):
		if rerr := a.pages.Render(w, status, pages.Locked, d); rerr != nil {
			L.Error(ctx, rerr, "render locked page")
		}
		return
	default:
		L.Debug(ctx, "request rejected", "status", status, "err", err.Error())
		if status == http.StatusBadRequest {
			d.Message = err.Error()
		}
	}
	if rerr := a.pages.Render(w, status, pages.Message, d); rerr != nil {
		L.Error(ctx, rerr, "render error page")
		http.Error(w, http.StatusText(status), status)
	}
}

// render is Render with failures logged.
func (a *API) render(w http.ResponseWriter, r *http.Request, status int, p pages.Page, d pages.Data) {
	if err := a.pages.Render(w, status, p, d); err != nil {
		ctx := r.Context()
		log.FromContext(ctx).Error(ctx, err, "render page", "page", string(p))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
