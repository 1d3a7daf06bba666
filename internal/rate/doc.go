// Package rate implements fixed-window admission counters.
//
// # Window semantics
//
// A window starts at the first admitted request for a key and lasts exactly
// the policy window. A request of cost c is admitted only when count+c does
// not exceed the limit, and only admitted requests increment the count.
// Denied requests leave the counter untouched.
//
// Backends:
//   - [MemoryBackend]: one mutex guards every window of the process.
//   - [RedisBackend]: one Lua script per check, shared by all instances.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authgate module.
package rate
