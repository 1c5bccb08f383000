package clipboardhttp

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ohowe1/clipboard/internal/access"
	"github.com/ohowe1/clipboard/internal/content"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/pages"
	"github.com/ohowe1/clipboard/internal/session"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

// writeAllowed runs the access policy for a write and renders the refusal.
// It runs before the body is read so a locked clipboard never buffers an
// upload.
func (a *API) writeAllowed(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	err := a.policy.Authorize(ctx, access.ActionWriteRegister, session.FromContext(ctx))
	if err == nil {
		return true
	}
	if errors.Is(err, xerrors.ErrUnauthorized) {
		a.metrics.IncAccessDenied(string(access.ActionWriteRegister))
	}
	a.fail(w, r, err)
	return false
}

func (a *API) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		a.fail(w, r, formErr(err))
		return false
	}
	return true
}

func formErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return xerrors.WithStack(err)
	}
	return xerrors.Mark(xerrors.Wrap(err, "invalid form"), xerrors.ErrValidation)
}

func (a *API) writeText(w http.ResponseWriter, r *http.Request) {
	if !a.writeAllowed(w, r) || !a.parseForm(w, r) {
		return
	}
	ctx := r.Context()
	name := registerParam(r)
	if _, ok := r.PostForm["text"]; !ok {
		a.fail(w, r, xerrors.Validation("missing text"))
		return
	}
	if err := a.registers.Put(ctx, name, content.NewText(r.PostForm.Get("text"))); err != nil {
		a.fail(w, r, err)
		return
	}
	a.metrics.IncRegisterWrite(string(content.KindText))
	http.Redirect(w, r, pastePath(name), http.StatusFound)
}

func (a *API) writeURL(w http.ResponseWriter, r *http.Request) {
	if !a.writeAllowed(w, r) || !a.parseForm(w, r) {
		return
	}
	ctx := r.Context()
	name := registerParam(r)
	link, err := content.NewLink(r.PostForm.Get("url"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.registers.Put(ctx, name, link); err != nil {
		a.fail(w, r, err)
		return
	}
	a.metrics.IncRegisterWrite(string(content.KindLink))
	http.Redirect(w, r, pastePath(name), http.StatusFound)
}

// multipart parts beyond this are spooled to disk
const maxUploadMemory = 32 << 20

func (a *API) writeFile(w http.ResponseWriter, r *http.Request) {
	if !a.writeAllowed(w, r) {
		return
	}
	ctx := r.Context()
	name := registerParam(r)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.fail(w, r, formErr(err))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if hdr.Size > a.maxUpload {
		a.fail(w, r, xerrors.WithStack(&http.MaxBytesError{Limit: a.maxUpload}))
		return
	}

	f, err := a.registers.PutFile(ctx, name, file, hdr.Size, hdr.Filename, uploadType(hdr))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.metrics.IncRegisterWrite(string(content.KindFile))
	log.FromContext(ctx).Info(ctx, "file stored", "size", hdr.Size, "mime_type", f.MimeType)
	http.Redirect(w, r, pastePath(name), http.StatusFound)
}

func uploadType(hdr *multipart.FileHeader) string {
	if ct := hdr.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// remove is never lock gated: anyone may clear a register.
func (a *API) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := registerParam(r)
	if err := a.policy.Authorize(ctx, access.ActionRemoveRegister, session.FromContext(ctx)); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.registers.Remove(ctx, name); err != nil {
		a.fail(w, r, err)
		return
	}
	a.metrics.IncRegisterRemove()
	http.Redirect(w, r, pastePath(name), http.StatusFound)
}

// jumpToRegister handles the "go to register" form.
func (a *API) jumpToRegister(w http.ResponseWriter, r *http.Request) {
	if !a.parseForm(w, r) {
		return
	}
	name := r.PostForm.Get("register")
	if strings.TrimSpace(name) == "" {
		name = ""
	}
	http.Redirect(w, r, pastePath(name), http.StatusFound)
}

// pasteGate shows the locked page instead of the forms to anonymous callers
// while the clipboard is locked.
func (a *API) pasteGate(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	ok, err := a.policy.WriteAllowed(ctx, session.FromContext(ctx))
	if err != nil {
		a.fail(w, r, err)
		return false
	}
	if !ok {
		a.render(w, r, http.StatusOK, pages.Locked, pages.Data{})
		return false
	}
	return true
}

func (a *API) pasteIndex(w http.ResponseWriter, r *http.Request) {
	if !a.pasteGate(w, r) {
		return
	}
	ctx := r.Context()
	names, err := a.registers.List(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, pages.Paste, pages.Data{
		LoggedIn:  session.FromContext(ctx).Authenticated(),
		Registers: names,
	})
}

func (a *API) registerPage(w http.ResponseWriter, r *http.Request) {
	if !a.pasteGate(w, r) {
		return
	}
	a.render(w, r, http.StatusOK, pages.Register, pages.Data{
		LoggedIn: session.FromContext(r.Context()).Authenticated(),
		Register: registerParam(r),
	})
}
