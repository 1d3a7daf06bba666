// Package internal contains helpers that are private to authgate: random
// identifiers, API key generation and key hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - limiters: admission and credential-attempt policies
//   - rate: fixed-window counters with memory and Redis backends
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
