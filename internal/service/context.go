package service

import (
	"context"

	"wavely/internal/middleware"
)

// WithClientRef tags ctx with the caller's optimistic-update reference so
// broadcast events can be matched back to the provisional copy. Log records
// written under ctx carry it too.
func WithClientRef(ctx context.Context, ref string) context.Context {
	if ref == "" {
		return ctx
	}
	return context.WithValue(ctx, middleware.ClientRefKey, ref)
}

// ClientRefFromContext returns the reference set by WithClientRef.
func ClientRefFromContext(ctx context.Context) string {
	ref, _ := ctx.Value(middleware.ClientRefKey).(string)
	return ref
}
