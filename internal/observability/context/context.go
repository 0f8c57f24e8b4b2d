// Package context carries request correlation values used by logging and tracing.
package context

import (
	"context"
	"strings"

	"github.com/smallbiznis/shopfloor/internal/orgcontext"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func OrgIDFromContext(ctx context.Context) string {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ""
	}
	return orgID.String()
}

func WorkerIDFromContext(ctx context.Context) string {
	workerID, ok := orgcontext.WorkerIDFromContext(ctx)
	if !ok {
		return ""
	}
	return workerID.String()
}
