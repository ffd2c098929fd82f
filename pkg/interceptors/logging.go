package interceptors

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"connectrpc.com/connect"
)

// NewLoggingInterceptor logs one line per RPC with its duration and outcome.
func NewLoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"peer", req.Peer().Addr,
				"duration", time.Since(start),
			}
			if id, ok := RequestIDFromContext(ctx); ok {
				attrs = append(attrs, "request_id", id)
			}

			if err != nil {
				code := connect.CodeOf(err)
				attrs = append(attrs, "code", code.String(), "error", err)
				if code == connect.CodeInternal || code == connect.CodeUnknown {
					logger.ErrorContext(ctx, "rpc failed", attrs...)
				} else {
					logger.WarnContext(ctx, "rpc rejected", attrs...)
				}
				return resp, err
			}

			logger.InfoContext(ctx, "rpc handled", attrs...)
			return resp, nil
		}
	}
}

// NewRecoveryInterceptor turns handler panics into Internal errors.
func NewRecoveryInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "panic in rpc handler",
						"procedure", req.Spec().Procedure,
						"panic", r,
						"stack", string(debug.Stack()))
					resp = nil
					err = connect.NewError(connect.CodeInternal, errors.New("internal error"))
				}
			}()
			return next(ctx, req)
		}
	}
}
