// Package limiters provides the admission policies built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [Admission]: per-IP and per-API-key request budgets used by the gate.
//   - [CredentialLimiter]: per-identifier + per-IP throttle for login and sign-up.
//
// All limiters are nil-safe: calling any method on a nil receiver admits.
//
// # Architecture boundaries
//
// Each limiter owns its own key namespace. Thresholds come from the
// policies supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authgate or any internal package other than internal and internal/rate.
//   - Make policy decisions beyond counting. Callers decide consequences.
package limiters
