package middleware

import (
	"bufio"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"

	xlog "github.com/coah80/vidfix/internal/log"
)

const corsOriginsFile = "cors-origins.txt"

// LoadCORS builds the CORS handler from cors-origins.txt. Without the file
// any origin may call the API, but never with credentials.
func LoadCORS() func(http.Handler) http.Handler {
	return corsFor(loadCORSOrigins(corsOriginsFile))
}

func corsFor(origins []string) func(http.Handler) http.Handler {
	logger := xlog.WithComponent("cors")
	if len(origins) > 0 {
		logger.Info().Int("origins", len(origins)).Msg("loaded CORS origins from " + corsOriginsFile)
		return cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           86400,
		})
	}

	logger.Warn().Msg("no " + corsOriginsFile + " found, allowing all origins (credentials disabled)")
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

func loadCORSOrigins(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var origins []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			origins = append(origins, line)
		}
	}
	return origins
}
