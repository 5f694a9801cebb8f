// Package middleware carries the gin handlers shared across the inbound
// surface: proxy-key auth, CORS, request ids and error rendering.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/common/ctxkey"
	"github.com/NodeNestor/CodeGate/common/helper"
	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/limiter"
)

// ExtractProxyKey pulls the client key from X-Api-Key or a bearer token.
func ExtractProxyKey(c *gin.Context) string {
	if key := c.GetHeader("X-Api-Key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// ProxyAuth authenticates /v1/* requests. Precedence: a process-wide env key
// wins when set; otherwise the stored proxy key grants simple-mode access;
// otherwise the key is looked up as a tenant hash. With no env key, no stored
// key and no matching tenant the gateway is open.
func ProxyAuth(tenantLimiter *limiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ExtractProxyKey(c)

		if config.ProxyAPIKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(config.ProxyAPIKey)) != 1 {
				AbortWithError(c, http.StatusUnauthorized, "invalid proxy API key", nil)
				return
			}
			c.Next()
			return
		}

		stored, err := model.GetSetting(model.SettingProxyAPIKey)
		if err != nil {
			gmw.GetLogger(c).Warn("load stored proxy key", zap.Error(err))
		}
		if stored != "" && subtle.ConstantTimeCompare([]byte(key), []byte(stored)) == 1 {
			c.Next()
			return
		}

		if key != "" {
			tenant, err := model.GetTenantByKey(key)
			if err != nil {
				gmw.GetLogger(c).Warn("tenant lookup", zap.Error(err))
			}
			if tenant != nil {
				if tenantLimiter != nil && tenantLimiter.CheckAndRecord("tenant:"+strconv.Itoa(tenant.Id), tenant.RPMLimit) {
					AbortWithError(c, http.StatusTooManyRequests, "tenant rate limit exceeded", nil)
					return
				}
				c.Set(ctxkey.TenantId, tenant.Id)
				c.Set(ctxkey.TenantName, tenant.Name)
				c.Set(ctxkey.ConfigId, tenant.ConfigId)
				c.Next()
				return
			}
		}

		if stored == "" {
			// no key material configured anywhere: open gateway
			c.Next()
			return
		}
		gmw.GetLogger(c).Warn("rejected proxy key", zap.String("key", helper.MaskAPIKey(key)))
		AbortWithError(c, http.StatusUnauthorized, "invalid proxy API key", nil)
	}
}
