package ipc

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines the CORS policy applied to the webview.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig returns a policy for the given webview origins. An empty
// list allows any origin.
func DefaultCORSConfig(origins ...string) CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  cfg.AllowMethods,
		AllowHeaders:  cfg.AllowHeaders,
		CustomSchemas: customSchemas(cfg.AllowOrigins),
		MaxAge:        cfg.MaxAge,
	})
}

// customSchemas collects the non-http schemes among origins, such as
// "tauri://". cors rejects origins whose scheme it was not told about.
func customSchemas(origins []string) []string {
	var schemas []string
	seen := make(map[string]bool)
	for _, origin := range origins {
		scheme, _, ok := strings.Cut(origin, "://")
		if !ok || scheme == "http" || scheme == "https" {
			continue
		}
		s := scheme + "://"
		if !seen[s] {
			seen[s] = true
			schemas = append(schemas, s)
		}
	}
	return schemas
}
