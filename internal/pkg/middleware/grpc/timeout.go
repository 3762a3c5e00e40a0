package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// DefaultRPCTimeout applies to calls whose context carries no deadline.
const DefaultRPCTimeout = 5 * time.Second

// UnaryTimeoutInterceptor bounds client calls that were issued without a deadline.
func UnaryTimeoutInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRPCTimeout)
		defer cancel()
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// UnaryServerLogInterceptor logs failed server calls through logf.
func UnaryServerLogInterceptor(logf func(err error, method string, elapsed time.Duration)) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logf(err, info.FullMethod, time.Since(start))
		}
		return resp, err
	}
}
