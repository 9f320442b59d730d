package auth

import (
	"context"
)

type contextKey string

const ClientKey contextKey = "client"

// GetClientFromContext returns the identity the middleware authenticated.
func GetClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(ClientKey).(string)
	return client, ok
}
