package clipboardhttp

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// registerParam returns the {register} path segment, or "" for routes that
// address the default register. chi matches on the escaped path when one
// exists, so the segment is unescaped only then.
func registerParam(r *http.Request) string {
	name := chi.URLParam(r, "register")
	if r.URL.RawPath != "" {
		if u, err := url.PathUnescape(name); err == nil {
			return u
		}
	}
	return name
}

// pastePath is where a write to name redirects.
func pastePath(name string) string {
	if name == "" {
		return "/paste"
	}
	return "/paste/" + url.PathEscape(name)
}

// parseStringBool accepts the usual HTML form spellings of a boolean.
func parseStringBool(s string) (v, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "y", "enabled":
		return true, true
	case "false", "0", "no", "off", "n", "disabled":
		return false, true
	}
	return false, false
}

// encodeURIComponent escapes everything except A-Z a-z 0-9 and -_.!~*'()
// so the filename can sit inside a quoted Content-Disposition parameter.
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}
