package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/jwt"
)

// GateOutcome is the variant of a gate decision.
type GateOutcome int

const (
	GateAdmitted GateOutcome = iota
	GateRateLimited
	GateUnauthenticated
	GateFailed
)

// ErrMissingBearer is returned when the Authorization header is absent or
// does not carry a bearer token.
var ErrMissingBearer = errors.New("missing bearer token")

// GateRequest is one inbound request as seen by the gate.
type GateRequest struct {
	Class         limiters.Class
	Key           string
	Authorization string
	Cost          int64
	// Address is the caller's network address. Under ClassAPIKey the request
	// must also fit the ClassIP budget of Address.
	Address string
	// SkipAuth admits after the rate check without requiring a token.
	SkipAuth bool
}

// GateResult carries the outcome plus the admission and verification details.
type GateResult struct {
	Outcome GateOutcome
	// DeniedBy is the class whose budget rejected a GateRateLimited request.
	DeniedBy  limiters.Class
	Admission rate.Result
	Verify    VerifyResult
	Err       error
}

// GateDeps captures the gate's collaborators.
type GateDeps struct {
	Admit func(ctx context.Context, class limiters.Class, key string, cost int64) (rate.Result, error)
	// Check peeks at a budget without charging it.
	Check  func(ctx context.Context, class limiters.Class, key string) (rate.Result, error)
	Verify VerifyDeps
}

// RunGate charges the rate limit first and verifies the bearer token only for
// admitted requests, so unauthenticated floods are still throttled.
//
// API-key requests carrying an Address are charged twice: to the key and to
// the address. The address is peeked before the key is charged, so a request
// the address budget already rejects spends nothing.
func RunGate(ctx context.Context, req GateRequest, deps GateDeps) GateResult {
	chargeAddress := req.Class == limiters.ClassAPIKey && req.Address != ""
	if chargeAddress && deps.Check != nil {
		pre, err := deps.Check(ctx, limiters.ClassIP, req.Address)
		if err != nil {
			return GateResult{Outcome: GateFailed, Err: err}
		}
		if !pre.Allowed {
			return GateResult{Outcome: GateRateLimited, DeniedBy: limiters.ClassIP, Admission: pre}
		}
	}

	admission, err := deps.Admit(ctx, req.Class, req.Key, req.Cost)
	if err != nil {
		return GateResult{Outcome: GateFailed, Err: err}
	}
	if !admission.Allowed {
		return GateResult{Outcome: GateRateLimited, DeniedBy: req.Class, Admission: admission}
	}

	if chargeAddress {
		addr, err := deps.Admit(ctx, limiters.ClassIP, req.Address, req.Cost)
		if err != nil {
			return GateResult{Outcome: GateFailed, Err: err}
		}
		if !addr.Allowed {
			return GateResult{Outcome: GateRateLimited, DeniedBy: limiters.ClassIP, Admission: addr}
		}
	}
	if req.SkipAuth {
		return GateResult{Outcome: GateAdmitted, Admission: admission}
	}

	token, ok := BearerToken(req.Authorization)
	if !ok {
		return GateResult{
			Outcome:   GateUnauthenticated,
			Admission: admission,
			Err:       ErrMissingBearer,
		}
	}

	verified := RunVerify(token, jwt.TypeAccess, deps.Verify)
	if verified.Failure != VerifyFailureNone {
		return GateResult{
			Outcome:   GateUnauthenticated,
			Admission: admission,
			Verify:    verified,
			Err:       verified.Err,
		}
	}

	return GateResult{Outcome: GateAdmitted, Admission: admission, Verify: verified}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively and the token must be non-empty.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
