package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/idscan/internal/common"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "x-request-id"

// UnaryLoggingInterceptor stamps a request ID into the context (taken from
// incoming metadata when present), echoes it as a response header, turns
// handler panics into Internal errors and logs every call.
func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, requestID := common.EnsureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))

		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "grpc.panic",
					"method", info.FullMethod,
					"request_id", requestID,
					"panic", r,
					"stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			code := status.Code(err)
			logger.Log(ctx, levelFor(code), "grpc.request",
				"method", info.FullMethod,
				"request_id", requestID,
				"code", code.String(),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		return handler(ctx, req)
	}
}

func levelFor(code codes.Code) slog.Level {
	switch code {
	case codes.OK:
		return slog.LevelInfo
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return slog.LevelError
	}
	return slog.LevelWarn
}
