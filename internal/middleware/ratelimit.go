package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit throttles each client IP to limit requests per window using a
// sliding window counter. Rejected requests get a JSON 429 and Retry-After.
// Register it after chi's RealIP so proxied clients are keyed correctly.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	message := fmt.Sprintf(`{"error":"Too many requests from this IP, please try again after %s"}`, humanWindow(window))
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(message))
		}),
	)
}

func humanWindow(d time.Duration) string {
	if d < time.Minute || d%time.Minute != 0 {
		return d.String()
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
