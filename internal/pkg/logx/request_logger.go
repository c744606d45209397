/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the HTTP middleware that logs each request's method, path,
status and latency. Client addresses are anonymized and credentials carried
in the query string are redacted.
*/
package logx

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// redactedParams are query parameters that carry credentials: the session
// token on /ws and the proof token on sign-up.
var redactedParams = []string{"token", "pow_token"}

// quietPaths are logged at debug level so probes do not flood the log.
var quietPaths = map[string]struct{}{
	"/health": {},
}

// anonymizeIP anonymizes the given IP address string.
// For IPv4 the last octet is zeroed; for IPv6 the interface half is dropped.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}

	masked := make(net.IP, net.IPv6len)
	copy(masked, ip.To16()[:8])
	return masked.String()
}

// redactURI returns the request path and query with credential values replaced.
func redactURI(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	q := u.Query()
	for _, p := range redactedParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
		}
	}
	return u.Path + "?" + q.Encode()
}

// RequestLogger returns middleware that logs one line per completed request and
// stores a request-scoped logger in the context (read it back with zerolog.Ctx).
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger := Logger().With().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("request_method", r.Method).
				Str("request_uri", redactURI(r.URL)).
				Logger()

			r = r.WithContext(logger.WithContext(r.Context()))

			start := time.Now()
			next.ServeHTTP(ww, r)

			levelFor(logger, r.URL.Path, ww.Status()).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("Request completed")
		}

		return http.HandlerFunc(fn)
	}
}

func levelFor(logger zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	}
	if _, ok := quietPaths[path]; ok {
		return logger.Debug()
	}
	return logger.Info()
}
