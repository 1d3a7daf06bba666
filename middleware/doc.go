// Package middleware adapts Engine.Gate to net/http.
//
// # Guards
//
//   - [Guard] charges the request's rate-limit budget, then requires a valid
//     bearer access token.
//   - [Limit] charges the budget only, for endpoints that authenticate some
//     other way (login, refresh).
//
// Both set X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset on
// every counted request and answer denials with a JSON error body carrying a
// stable error code.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication or counting itself; every decision comes from
// Engine.Gate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Trust forwarding headers for the client address unless a KeyFunc opts in.
package middleware
