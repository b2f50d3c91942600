package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

type ctxKey struct{}

// WithUserID records the acting user for ledger and task audit fields.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// GetUserID returns the acting user from the context, falling back to the
// x-user-id gRPC metadata. It returns "" when neither is set.
func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(ctxKey{}).(string); ok && val != "" {
		return val
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-user-id"); len(val) > 0 {
			return val[0]
		}
	}
	return ""
}
