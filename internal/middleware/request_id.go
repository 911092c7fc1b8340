package middleware

import (
	"context"

	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

// RequestID tags every frame with a request id for logging, unless the
// context already carries one.
func RequestID(next narpc.Handler) narpc.Handler {
	return narpc.HandlerFunc(func(ctx context.Context, buf *binary.Buffer) (narpc.Message, error) {
		if logging.GetRequestIDFromCtx(ctx) == "" {
			ctx = logging.MakeContextWithNewRequestID(ctx)
		}
		return next.ServeNaRPC(ctx, buf)
	})
}
