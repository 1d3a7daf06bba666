// Package session persists refresh records: the single live refresh token id of
// each session.
//
// # Rotation
//
// [Store.Rotate] is a compare-and-swap. The presented token id must equal the
// stored one and is replaced by the next id in the same indivisible step, so two
// concurrent refreshes with the same token can never both succeed. The Redis
// implementation runs the swap as one Lua script; the memory implementation
// holds a mutex.
//
// # Architecture boundaries
//
// This package owns record persistence only. It does NOT parse tokens or
// decide policy beyond the revoke-on-reuse switch passed by the caller.
//
// # What this package must NOT do
//
//   - Import authgate or jwt (no upward imports).
//   - Store signed token strings. Only token ids are kept.
package session
