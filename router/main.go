// Package router maps the inbound HTTP surface onto the controllers.
package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NodeNestor/CodeGate/controller"
	"github.com/NodeNestor/CodeGate/middleware"
	"github.com/NodeNestor/CodeGate/relay/limiter"
)

// SetRouter installs all routes. Everything under /v1/ except the model
// catalog is proxied through the relay; gin cannot mix a catch-all with
// static siblings, so the proxy hangs off NoRoute.
func SetRouter(engine *gin.Engine, relay *controller.Relay, tenantLimiter *limiter.RateLimiter) {
	engine.Use(middleware.RequestId())
	engine.Use(middleware.CORS())

	engine.GET("/health", controller.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/v1/models", controller.ListModels)

	engine.NoRoute(scopeToV1, middleware.ProxyAuth(tenantLimiter), relay.Proxy)
}

// scopeToV1 turns the NoRoute chain into the /v1/* proxy surface: anything
// else is a plain 404, preflight short-circuits to 204.
func scopeToV1(c *gin.Context) {
	if !strings.HasPrefix(c.Request.URL.Path, "/v1/") {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
