package authgate

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/rate"
)

// DecisionKind is the variant of a gate Decision.
type DecisionKind uint8

const (
	// Admitted means the request was counted and, unless auth was skipped,
	// carried a valid access token.
	Admitted DecisionKind = iota
	// RateLimited means the request's budget was exhausted. No token was parsed.
	RateLimited
	// Unauthenticated means the request was counted but carried no valid access token.
	Unauthenticated
	// Failed means the rate-limit backend could not be reached.
	Failed
)

func (k DecisionKind) String() string {
	switch k {
	case Admitted:
		return "admitted"
	case RateLimited:
		return "rate_limited"
	case Unauthenticated:
		return "unauthenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// GateRequest is one inbound request as seen by the gate.
type GateRequest struct {
	Policy Policy
	// Key identifies the caller under Policy: an IP address or an API key.
	Key string
	// Authorization is the raw Authorization header value.
	Authorization string
	// Cost below 1 counts as 1.
	Cost int64
	// Address is the caller's network address. A request charged under
	// PolicyAPIKey must also fit the PolicyIP budget of Address.
	Address string
	// SkipAuth admits after the rate check without requiring a token.
	SkipAuth bool
}

// Decision is the gate's verdict. Principal is set only for Admitted
// requests that were authenticated; Err is set for every other kind.
type Decision struct {
	Kind      DecisionKind
	Principal Principal
	Admission Admission
	Err       error
}

// RetryAfter is the wait hint of a RateLimited decision.
func (d Decision) RetryAfter() time.Duration {
	if d.Kind != RateLimited {
		return 0
	}
	return d.Admission.RetryAfter
}

// Gate charges the request against its rate-limit budget, then verifies the
// bearer token. Denied requests never reach token parsing, and quota is
// consumed exactly once per admitted request whatever the handler does next.
func (e *Engine) Gate(ctx context.Context, req GateRequest) Decision {
	if !e.ready() {
		return Decision{Kind: Failed, Err: ErrEngineNotReady}
	}

	res := e.flow.Gate(ctx, internalflows.GateRequest{
		Class:         limiters.Class(req.Policy),
		Key:           req.Key,
		Authorization: req.Authorization,
		Cost:          req.Cost,
		Address:       req.Address,
		SkipAuth:      req.SkipAuth,
	})
	adm := admissionFromResult(res.Admission)

	switch res.Outcome {
	case internalflows.GateRateLimited:
		policy := Policy(res.DeniedBy)
		e.emitRateLimit(ctx, policy, adm)
		e.metricInc(MetricGateRateLimited)
		return Decision{Kind: RateLimited, Admission: adm, Err: rateLimitError(policy, res.Admission)}
	case internalflows.GateFailed:
		e.metricInc(MetricGateFailed)
		e.logger.Warn("authgate: rate limit backend unavailable", "policy", req.Policy.String(), "err", res.Err)
		return Decision{Kind: Failed, Err: e.storeError("admit", res.Err)}
	case internalflows.GateUnauthenticated:
		e.metricInc(MetricGateUnauthenticated)
		err := ErrMissingCredentials
		if !errors.Is(res.Err, internalflows.ErrMissingBearer) {
			err = verifyError(res.Verify)
		}
		return Decision{Kind: Unauthenticated, Admission: adm, Err: err}
	}

	e.metricInc(MetricGateAdmitted)
	d := Decision{Kind: Admitted, Admission: adm}
	if res.Verify.Claims != nil {
		d.Principal = principalFromClaims(res.Verify.Claims)
	}
	return d
}

// Admit charges cost against key under policy without looking at tokens.
// A denied request yields a *RateLimitError alongside its Admission.
func (e *Engine) Admit(ctx context.Context, policy Policy, key string, cost int64) (Admission, error) {
	if !e.ready() {
		return Admission{}, ErrEngineNotReady
	}

	res, err := e.admission.Admit(ctx, limiters.Class(policy), key, cost)
	if err != nil {
		return Admission{}, e.storeError("admit", err)
	}
	adm := admissionFromResult(res)
	if !res.Allowed {
		e.emitRateLimit(ctx, policy, adm)
		return adm, rateLimitError(policy, res)
	}
	return adm, nil
}

// RateLimitPolicy returns the configured limit and window of policy.
func (e *Engine) RateLimitPolicy(policy Policy) LimitConfig {
	if e == nil {
		return LimitConfig{}
	}
	p := e.admission.Policy(limiters.Class(policy))
	return LimitConfig{Limit: p.Limit, Window: p.Window}
}

func admissionFromResult(res rate.Result) Admission {
	return Admission{
		Allowed:    res.Allowed,
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		ResetAt:    res.ResetAt,
		RetryAfter: res.RetryAfter,
	}
}

func rateLimitError(policy Policy, res rate.Result) *RateLimitError {
	return &RateLimitError{
		Scope:      policy.String(),
		RetryAfter: res.RetryAfter,
		Limit:      res.Limit,
		ResetAt:    res.ResetAt,
	}
}
