package flows

import (
	"errors"

	"github.com/MrEthical07/authgate/jwt"
)

// VerifyFailureKind classifies token verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureInvalid
	VerifyFailureExpired
	VerifyFailureTypeMismatch
)

// VerifyResult carries verified claims or the failure class.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.Claims
}

// VerifyDeps captures verification dependencies.
type VerifyDeps struct {
	Parse func(string, jwt.TokenType) (*jwt.Claims, error)
}

// RunVerify is stateless: it never consults the session store, so access
// tokens stay valid until exp even after logout.
func RunVerify(tokenStr string, expected jwt.TokenType, deps VerifyDeps) VerifyResult {
	claims, err := deps.Parse(tokenStr, expected)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return VerifyResult{Failure: VerifyFailureExpired, Err: err}
		case errors.Is(err, jwt.ErrTokenTypeMismatch):
			return VerifyResult{Failure: VerifyFailureTypeMismatch, Err: err}
		default:
			return VerifyResult{Failure: VerifyFailureInvalid, Err: err}
		}
	}
	return VerifyResult{Claims: claims}
}
