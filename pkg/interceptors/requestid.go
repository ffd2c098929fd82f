package interceptors

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

type requestIDKey struct{}

// NewRequestIDInterceptor propagates the request ID from the given header,
// generating one when the client sent none. The ID is echoed on the response.
func NewRequestIDInterceptor(header string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			id := req.Header().Get(header)
			if id == "" {
				id = uuid.NewString()
			}
			ctx = context.WithValue(ctx, requestIDKey{}, id)

			resp, err := next(ctx, req)
			if resp != nil {
				resp.Header().Set(header, id)
			}
			var connectErr *connect.Error
			if err != nil && errors.As(err, &connectErr) {
				connectErr.Meta().Set(header, id)
			}
			return resp, err
		}
	}
}

// RequestIDFromContext returns the request ID set by the interceptor.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
