package shared

import "context"

type correlationContextKey struct{}

// NoContextCorrelationID is the placeholder logged when a correlation ID is
// requested outside any request or job context.
const NoContextCorrelationID = "no-context"

// ContextWithCorrelationID stores the correlation ID carried by a request or
// job on the context so every downstream call can recover it without a
// goroutine-local lookup.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationContextKey{}, id)
}

// CorrelationIDFromContext returns the ambient correlation ID, or
// NoContextCorrelationID when none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(correlationContextKey{}).(string)
	if !ok || id == "" {
		return NoContextCorrelationID
	}
	return id
}

type orgContextKey struct{}
type userContextKey struct{}

// ContextWithOrgID stores the authenticated organization id on the context.
func ContextWithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgContextKey{}, orgID)
}

// OrgIDFromContext returns the authenticated organization id, if any.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(orgContextKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ContextWithUserID stores the authenticated user id on the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userContextKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
