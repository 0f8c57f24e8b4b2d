package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/shopfloor/internal/orgcontext"
)

const (
	HeaderOrg    = "X-Org-Id"
	HeaderWorker = "X-Worker-Id"
)

// Identity copies the tenant and worker headers into the request context.
// The org header is required; the worker header is checked by the services that need it.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := parseHeaderID(c.GetHeader(HeaderOrg))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		if raw := strings.TrimSpace(c.GetHeader(HeaderWorker)); raw != "" {
			workerID, ok := parseHeaderID(raw)
			if !ok {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			ctx = orgcontext.WithWorkerID(ctx, int64(workerID))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseHeaderID(value string) (snowflake.ID, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
