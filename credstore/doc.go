// Package credstore provides authgate.CredentialStore implementations.
//
// [Memory] keeps users in a map and suits tests and single-process demos.
// Package credstore/postgres persists users in PostgreSQL.
package credstore
