package handler

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// adminMethods lists the RPCs that require the admin token.
var adminMethods = map[string]bool{
	"/" + stockServiceName + "/SetQuantity": true,
}

// AdminAuthInterceptor rejects admin RPCs whose authorization metadata does
// not carry token. An empty token rejects every admin call.
func AdminAuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !adminMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}
		if !adminAuthorized(header, token) {
			return nil, status.Error(codes.Unauthenticated, "admin token required")
		}
		return handler(ctx, req)
	}
}

func adminAuthorized(header, token string) bool {
	if token == "" {
		return false
	}
	presented := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
