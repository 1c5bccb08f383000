package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader carries the trace id of a sampled request back to the client.
const TraceIDHeader = "X-Trace-Id"

// TraceID sets TraceIDHeader when the request has a valid span, so a failed
// upload can be matched to its trace.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			w.Header().Set(TraceIDHeader, sc.TraceID().String())
		}
		next.ServeHTTP(w, r)
	})
}
