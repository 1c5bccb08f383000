// Package pages renders the HTML pages.
package pages

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ohowe1/clipboard/internal/webassets"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

type Page string

const (
	Empty    Page = "empty"
	Locked   Page = "locked"
	Lock     Page = "lock"
	Login    Page = "login"
	Paste    Page = "paste"
	Register Page = "register"
	Message  Page = "message"
)

var all = []Page{Empty, Locked, Lock, Login, Paste, Register, Message}

// Data is the union of what any page reads. Unused fields are ignored.
type Data struct {
	LoggedIn bool

	Register  string
	Registers []string

	Locked           bool
	RemainingMinutes int
	DefaultMinutes   int

	Title   string
	Message string
}

var funcs = template.FuncMap{
	"regpath": url.PathEscape,
	// suffix is appended to form actions: "" for the default register.
	"suffix": func(register string) string {
		if register == "" {
			return ""
		}
		return "/" + url.PathEscape(register)
	},
}

type Renderer struct {
	pages map[Page]*template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) { return NewFromFS(webassets.Templates()) }

func NewFromFS(fsys fs.FS) (*Renderer, error) {
	r := &Renderer{pages: make(map[Page]*template.Template, len(all))}
	for _, p := range all {
		t, err := template.New(string(p)).Funcs(funcs).ParseFS(fsys, "layout.html", "forms.html", string(p)+".html")
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse page %s", p)
		}
		r.pages[p] = t
	}
	return r, nil
}

// Render writes page with status. Nothing is written if execution fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, p Page, d Data) error {
	t, ok := r.pages[p]
	if !ok {
		return xerrors.Newf("unknown page %q", p)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", d); err != nil {
		return xerrors.Wrapf(err, "render page %s", p)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
