package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
)

func TestUnaryTimeoutInterceptorAddsDeadline(t *testing.T) {
	var got time.Time
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		got, _ = ctx.Deadline()
		return nil
	}

	before := time.Now()
	if err := UnaryTimeoutInterceptor(context.Background(), "/x", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if got.IsZero() || got.Before(before.Add(DefaultRPCTimeout-time.Second)) {
		t.Errorf("deadline %v not derived from DefaultRPCTimeout", got)
	}
}

func TestUnaryTimeoutInterceptorKeepsDeadline(t *testing.T) {
	want := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), want)
	defer cancel()

	var got time.Time
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		got, _ = ctx.Deadline()
		return nil
	}
	_ = UnaryTimeoutInterceptor(ctx, "/x", nil, nil, nil, invoker)
	if !got.Equal(want) {
		t.Errorf("deadline = %v, want %v", got, want)
	}
}
