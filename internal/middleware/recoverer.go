package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	xlog "github.com/coah80/vidfix/internal/log"
)

// Recoverer turns a handler panic into a logged 500 with a JSON body.
// http.ErrAbortHandler is re-panicked so net/http can drop the connection.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			xlog.FromContext(r.Context()).Error().
				Interface("panic", rvr).
				Bytes("stack", debug.Stack()).
				Str(xlog.FieldPath, r.URL.Path).
				Msg("handler panic")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}
