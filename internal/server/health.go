package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/shopfloor/internal/observability/logger"
	"github.com/smallbiznis/shopfloor/pkg/db"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Ready reports whether the database answers a ping.
func (s *Server) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	if err := db.Ping(ctx, s.db, readinessTimeout); err != nil {
		logger.FromContext(ctx).Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"database": "down",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "up",
	})
}
