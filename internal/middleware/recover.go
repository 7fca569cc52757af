package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/arencloud/bucketgw/internal/logging"
)

// Recoverer turns a panic anywhere below next into a JSON 500. It sits outside
// the router so panics in CORS handling or routing are caught as well.
func Recoverer(next http.Handler, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic recovered", "method", r.Method, "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Infrastructure","message":"internal error"}`))
		}()
		next.ServeHTTP(w, r)
	})
}
