package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// knownClaudeModels is the static catalog served to clients that probe
// /v1/models before sending traffic. Routing itself accepts any model id.
var knownClaudeModels = []string{
	"claude-opus-4-20250514",
	"claude-sonnet-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
}

// ListModels serves a minimal OpenAI-shaped model catalog. Unauthenticated.
func ListModels(c *gin.Context) {
	created := time.Now().Unix()
	data := make([]gin.H, 0, len(knownClaudeModels))
	for _, id := range knownClaudeModels {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  created,
			"owned_by": "anthropic",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
