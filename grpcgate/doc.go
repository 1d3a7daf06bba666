// Package grpcgate runs Engine.Gate in front of unary gRPC handlers.
//
// The interceptor reads the bearer token from the "authorization" metadata
// key and maps gate decisions to status codes: RateLimited to
// ResourceExhausted, Unauthenticated to Unauthenticated, Failed to
// Unavailable.
package grpcgate
