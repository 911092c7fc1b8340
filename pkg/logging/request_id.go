package logging

import (
	"context"

	"github.com/google/uuid"
)

func GetRequestIDFromCtx(ctx context.Context) string {
	if v := ctx.Value(reqKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func MakeContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, reqKey, requestID)
}

func MakeContextWithNewRequestID(ctx context.Context) context.Context {
	return MakeContextWithRequestID(ctx, NewRequestID())
}

// NewRequestID returns a random uuid, or a time-based one if the random
// source fails.
func NewRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Must(uuid.NewUUID()).String()
	}
	return id.String()
}
