// Package jwt issues and verifies the signed access and refresh tokens of a session.
//
// Every token carries sub, typ, sid, jti, iat and exp. Parse classifies failures
// into ErrTokenInvalid, ErrTokenExpired and ErrTokenTypeMismatch so callers can map
// them to stable error codes without inspecting library errors.
package jwt
