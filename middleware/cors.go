package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows any origin; the gateway is an API surface authenticated by
// keys, not cookies. The proxy diagnostics headers are exposed so browser
// clients can read them.
func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		"X-Api-Key", "Anthropic-Version", "Anthropic-Beta", "OpenAI-Organization",
	}
	config.ExposeHeaders = []string{"X-Proxy-Account", "X-Proxy-Strategy", "X-Request-Id"}
	return cors.New(config)
}
