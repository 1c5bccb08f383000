package httpmw

import "net/http"

// NoStore marks every response uncacheable. Register reads must reflect the
// latest write and lock pages the current window, so no shared cache may
// hold them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
