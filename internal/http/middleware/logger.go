package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/infra/geoip"
	"server/internal/monitor"
)

// RequestLogger emits one structured log line per request and feeds the
// monitoring store. Requests slower than slowThreshold are logged at warn.
// The geo resolver may be nil, in which case no country field is emitted.
func RequestLogger(logger zerolog.Logger, store *monitor.Store, geo *geoip.Resolver, slowThreshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				handler := r.Method + " " + routePattern(r)
				if store != nil {
					store.Record(handler, status, duration)
				}

				event := logger.Info()
				if status >= 500 {
					event = logger.Error()
				} else if slowThreshold > 0 && duration >= slowThreshold {
					event = logger.Warn().Bool("slow", true)
				}

				event = event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("duration", duration).
					Int("bytes", ww.BytesWritten()).
					Str("remote_ip", remoteIP(r)).
					Str("request_id", chimw.GetReqID(r.Context()))
				if geo != nil {
					if country, err := geo.CountryCode(remoteIP(r)); err == nil && country != "" {
						event = event.Str("country", country)
					}
				}
				event.Msg("http request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern returns the matched chi pattern so monitoring keys stay
// bounded even with path parameters.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
