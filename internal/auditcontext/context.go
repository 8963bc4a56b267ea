package auditcontext

import "context"

type contextKey string

const (
	requestIDKey  contextKey = "audit_request_id"
	actorIDKey    contextKey = "audit_actor_id"
	actorNameKey  contextKey = "audit_actor_name"
	actorEmailKey contextKey = "audit_actor_email"
	ipAddressKey  contextKey = "audit_ip_address"
	userAgentKey  contextKey = "audit_user_agent"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithActor(ctx context.Context, actorID, actorName, actorEmail string) context.Context {
	if actorID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actorID)
	}
	if actorName != "" {
		ctx = context.WithValue(ctx, actorNameKey, actorName)
	}
	if actorEmail != "" {
		ctx = context.WithValue(ctx, actorEmailKey, actorEmail)
	}
	return ctx
}

func ActorFromContext(ctx context.Context) (string, string, string) {
	actorID, _ := ctx.Value(actorIDKey).(string)
	actorName, _ := ctx.Value(actorNameKey).(string)
	actorEmail, _ := ctx.Value(actorEmailKey).(string)
	return actorID, actorName, actorEmail
}

func WithIPAddress(ctx context.Context, ipAddress string) context.Context {
	if ipAddress == "" {
		return ctx
	}
	return context.WithValue(ctx, ipAddressKey, ipAddress)
}

func IPAddressFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ipAddressKey).(string)
	return value
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	if userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	value, _ := ctx.Value(userAgentKey).(string)
	return value
}
