// Package authgate issues and rotates JWT access and refresh tokens and gates
// requests behind fixed-window rate limits shared across processes.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config], the gate
// [Decision] and value types ([TokenPair], [Principal], [Admission]). Flow orchestration,
// rate-limit backends and audit dispatch live under internal/ and are never exported.
// Refresh records live in package session, which callers may implement themselves.
//
// # Token lifecycle
//
// Every pair belongs to a session. The session's refresh record holds the jti of the one
// refresh token that may still be exchanged; [Engine.RefreshTokens] swaps it in a single
// compare-and-swap, so of several concurrent exchanges of the same token exactly one wins.
// A rotated-away token is rejected with [ErrRefreshTokenInvalid] and, by default, revokes
// the session.
//
// # What this package must NOT do
//
//   - Expose Redis clients, rate-limit windows or refresh records in its public API.
//   - Consult the session store on [Engine.VerifyToken]; access tokens are stateless.
//   - Retry failed backend calls. Failures surface as [ErrStoreUnavailable].
//   - Import any sub-package that re-imports authgate (no import cycles).
package authgate
