package middleware

import (
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/NodeNestor/CodeGate/common/ctxkey"
	"github.com/NodeNestor/CodeGate/common/helper"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

// RequestId assigns each request an id, exposed via context and response
// header.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := helper.GenRequestID()
		c.Set(ctxkey.RequestId, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// InboundFormat returns the wire format the client is speaking, detected
// from the path once and cached on the context.
func InboundFormat(c *gin.Context) relaymodel.InboundFormat {
	if cached := c.GetString(ctxkey.InboundAPI); cached != "" {
		return relaymodel.InboundFormat(cached)
	}
	format := relaymodel.FormatClaude
	if strings.HasSuffix(c.Request.URL.Path, "/chat/completions") {
		format = relaymodel.FormatOpenAI
	}
	c.Set(ctxkey.InboundAPI, string(format))
	return format
}

// AbortWithError renders the error in the inbound wire format and stops the
// handler chain.
func AbortWithError(c *gin.Context, statusCode int, message string, raw error) {
	lg := gmw.GetLogger(c)
	if statusCode >= http.StatusInternalServerError {
		lg.Error("server abort", zap.Int("status_code", statusCode), zap.String("message", message), zap.Error(raw))
	} else {
		lg.Warn("server abort", zap.Int("status_code", statusCode), zap.String("message", message), zap.Error(raw))
	}

	e := relaymodel.NewError(statusCode, helper.MessageWithRequestId(message, c.GetString(ctxkey.RequestId)), raw)
	c.JSON(statusCode, e.Envelope(InboundFormat(c)))
	c.Abort()
}
