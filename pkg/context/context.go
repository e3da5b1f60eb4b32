package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	OwnerIDKey   = ContextKey("X-Owner-Id")
	UserIDKey    = ContextKey("X-User-Id")
	BatchIDKey   = ContextKey("X-Batch-Id")
)

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

// SetOwnerID stores the identity that owns batches and registry records for this request
func SetOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

func GetOwnerID(ctx context.Context) string {
	return get(ctx, OwnerIDKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return get(ctx, UserIDKey)
}

func SetBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func GetBatchID(ctx context.Context) string {
	return get(ctx, BatchIDKey)
}

// Actor returns the user id when present, falling back to the owner id
func Actor(ctx context.Context) string {
	if userID := GetUserID(ctx); userID != "" {
		return userID
	}
	return GetOwnerID(ctx)
}
