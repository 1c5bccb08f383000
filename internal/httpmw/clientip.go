package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes the rightmost entry, 2 the one
	// before it, and so on.
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions resolves the client address once per request and
// stores it for the rate limiter and logger.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// resolveClientAddr only honours X-Forwarded-For when the peer is a private
// or loopback address and proxies are configured. Otherwise the forwarding
// headers are removed so nothing downstream trusts them.
func resolveClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}
	ap, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		addr, perr := netip.ParseAddr(r.RemoteAddr)
		if perr != nil {
			stripForwarded(r)
			return "0.0.0.0"
		}
		ap = netip.AddrPortFrom(addr, 0)
	}
	peer := ap.Addr().Unmap()

	if trustedHops <= 0 || !(peer.IsPrivate() || peer.IsLoopback()) {
		stripForwarded(r)
		return peer.String()
	}

	xf := r.Header.Get("X-Forwarded-For")
	if xf == "" {
		return peer.String()
	}
	parts := strings.Split(xf, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer entries than proxies: misconfigured or forged
		stripForwarded(r)
		return peer.String()
	}
	if cand, err := netip.ParseAddr(strings.TrimSpace(parts[idx])); err == nil {
		return cand.Unmap().String()
	}
	return peer.String()
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
