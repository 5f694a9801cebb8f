package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NodeNestor/CodeGate/common"
)

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   common.Version,
	})
}
