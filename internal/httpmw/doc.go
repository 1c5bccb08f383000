// Package httpmw holds the middleware for the public clipboard listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP, rate limiting, tracing, trace
// response headers, metrics, request-scoped logging, then the chi router
// with compression, route annotation and access logging.
//
// Register contents, form values and query strings are user data and are
// kept out of logs and span attributes.
package httpmw
