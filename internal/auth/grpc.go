package auth

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// valueMessage is satisfied by wrapper messages such as wrapperspb.BytesValue.
type valueMessage interface {
	GetValue() []byte
}

// SigningBytes returns the bytes a gRPC request signature covers: the inner
// value of a bytes wrapper, or the deterministic proto encoding otherwise.
func SigningBytes(req any) ([]byte, error) {
	switch m := req.(type) {
	case valueMessage:
		return m.GetValue(), nil
	case proto.Message:
		return proto.MarshalOptions{Deterministic: true}.Marshal(m)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("auth: cannot sign %T", req)
	}
}

// UnaryServerInterceptor verifies x-timestamp/x-signature metadata on every call.
func UnaryServerInterceptor(v *Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if v.Disabled() {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		body, err := SigningBytes(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if err := v.Verify(first(md, HeaderTimestamp), first(md, HeaderSignature), body); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

// UnaryClientInterceptor signs every outgoing call with secret.
func UnaryClientInterceptor(secret string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		body, err := SigningBytes(req)
		if err != nil {
			return err
		}
		ts, sig := SignNow(secret, body)
		ctx = metadata.AppendToOutgoingContext(ctx, HeaderTimestamp, ts, HeaderSignature, sig)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
