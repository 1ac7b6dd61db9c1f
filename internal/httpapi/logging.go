package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// logRequest records one completed request. Never logs credentials.
func logRequest(r *http.Request, status int, start time.Time) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("method", r.Method).Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("request")
		return
	}
	log.Printf("http=request path=%s method=%s status=%d dur=%s", r.URL.Path, r.Method, status, time.Since(start))
}

// RequestLogger logs every request at completion.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		logRequest(r, sr.status, start)
	})
}
