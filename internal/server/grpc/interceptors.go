package grpcserver

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/runq/internal/auth"
	logpkg "github.com/rzbill/runq/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	tracerName = "github.com/rzbill/runq/internal/server/grpc"
	// metadataRequestID mirrors the HTTP X-Request-Id header.
	metadataRequestID = "x-request-id"
	healthPrefix      = "/grpc.health.v1.Health/"
)

// authInterceptor verifies signatures on everything except the health service.
func authInterceptor(v *auth.Verifier) grpc.UnaryServerInterceptor {
	verify := auth.UnaryServerInterceptor(v)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}
		return verify(ctx, req, info, handler)
	}
}

// metadataCarrier adapts incoming gRPC metadata for trace propagation.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if vals := metadata.MD(c).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// observeInterceptor starts a server span, tags the context with a request
// id and logs the outcome of each call.
func observeInterceptor(logger logpkg.Logger) grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		md, _ := metadata.FromIncomingContext(ctx)
		carrier := metadataCarrier(md)
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.TextMapCarrier(carrier))

		id := carrier.Get(metadataRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		ctx = logpkg.ContextWithRequestID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(metadataRequestID, id))

		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.system", "grpc"), attribute.String("rpc.method", info.FullMethod)))
		defer span.End()

		resp, err := handler(ctx, req)
		code := status.Code(err)
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
		if code == codes.Internal || code == codes.Unknown {
			span.SetStatus(otelcodes.Error, err.Error())
		}

		fields := []logpkg.Field{
			logpkg.Str("method", info.FullMethod),
			logpkg.Str("code", code.String()),
			logpkg.Duration("elapsed", time.Since(start)),
		}
		l := logger.WithContext(ctx)
		if code == codes.Internal || code == codes.Unknown {
			l.Warn("grpc call", fields...)
		} else {
			l.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
