package clipboardhttp

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ohowe1/clipboard/internal/access"
	"github.com/ohowe1/clipboard/internal/content"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/pages"
	"github.com/ohowe1/clipboard/internal/register"
	"github.com/ohowe1/clipboard/internal/session"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

// read answers GET / and GET /{register}: text as text/plain, links as a
// redirect, files as a download.
func (a *API) read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := registerParam(r)
	id := session.FromContext(ctx)

	if err := a.policy.Authorize(ctx, access.ActionReadRegister, id); err != nil {
		a.fail(w, r, err)
		return
	}

	c, err := a.registers.Get(ctx, name)
	if errors.Is(err, register.ErrEmpty) {
		a.metrics.IncRegisterRead("empty")
		a.render(w, r, http.StatusOK, pages.Empty, pages.Data{LoggedIn: id.Authenticated()})
		return
	}
	if err != nil {
		a.metrics.IncRegisterRead("error")
		a.fail(w, r, err)
		return
	}

	switch v := c.(type) {
	case content.Text:
		a.metrics.IncRegisterRead(string(content.KindText))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(v.Body)))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, v.Body)
	case content.Link:
		a.metrics.IncRegisterRead(string(content.KindLink))
		http.Redirect(w, r, v.URL, http.StatusFound)
	case content.File:
		a.serveFile(w, r, v)
	default:
		a.metrics.IncRegisterRead("error")
		a.fail(w, r, xerrors.Newf("unhandled content %T", c))
	}
}

func (a *API) serveFile(w http.ResponseWriter, r *http.Request, f content.File) {
	ctx := r.Context()
	obj, err := a.registers.OpenFile(ctx, f)
	if errors.Is(err, register.ErrBlobMissing) {
		a.metrics.IncRegisterRead("blob_missing")
		log.FromContext(ctx).Warn(ctx, "file record without blob", "blob_key", f.BlobKey)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.metrics.IncRegisterRead("error")
		a.fail(w, r, err)
		return
	}
	defer obj.Body.Close()
	a.metrics.IncRegisterRead(string(content.KindFile))

	ct := obj.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", ct)
	h.Set("Content-Disposition", `attachment; filename="`+encodeURIComponent(f.FileName)+`"`)
	h.Set("X-Content-Type-Options", "nosniff")
	if obj.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		// headers are gone, all that is left is to record it
		log.FromContext(ctx).Warn(ctx, "file download interrupted", "err", err.Error())
	}
}
