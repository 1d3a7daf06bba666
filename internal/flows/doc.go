// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunRefresh, RunGate, RunLogin, etc.) accepts a
// typed dependency struct and returns a result with a failure kind instead of a
// public error. The root engine maps kinds to its sentinel errors, metrics and
// audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, JWT manager, limiters
// and credential lookups. They do NOT own any of these resources. Ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authgate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
