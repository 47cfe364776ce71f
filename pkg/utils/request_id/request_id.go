package request_id

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// Header carries the request ID between the CLI client and the server
const Header = "X-Request-ID"

type contextKey struct{}

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func With(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// FromContext returns the request ID or an empty string
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(contextKey{}).(string); ok {
		return requestID
	}
	return ""
}

// Generate sets a new random request ID in ctx
func Generate(ctx context.Context) (context.Context, string) {
	requestID := uuid.New().String()
	return With(ctx, requestID), requestID
}

// Adopt keeps an ID received from a peer when it is a plain token and
// generates a new one otherwise.
func Adopt(ctx context.Context, received string) (context.Context, string) {
	if validID.MatchString(received) {
		return With(ctx, received), received
	}
	return Generate(ctx)
}
