package limiters

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/internal/rate"
)

// Class selects which admission budget a key is charged against.
type Class uint8

const (
	// ClassIP charges the caller's network address.
	ClassIP Class = iota
	// ClassAPIKey charges the presented API key.
	ClassAPIKey
)

// String returns the metric and log label of the class.
func (c Class) String() string {
	switch c {
	case ClassIP:
		return "ip"
	case ClassAPIKey:
		return "api_key"
	default:
		return "unknown"
	}
}

// AdmissionConfig holds the two request budgets.
type AdmissionConfig struct {
	IP     rate.Policy
	APIKey rate.Policy
}

// Admission routes keys to the limiter of their class.
type Admission struct {
	ip     *rate.Limiter
	apiKey *rate.Limiter
}

// NewAdmission builds both limiters on one backend.
func NewAdmission(backend rate.Backend, cfg AdmissionConfig) (*Admission, error) {
	if cfg.IP.Prefix == "" {
		cfg.IP.Prefix = "rl:ip:"
	}
	if cfg.APIKey.Prefix == "" {
		cfg.APIKey.Prefix = "rl:key:"
	}
	if cfg.IP.Name == "" {
		cfg.IP.Name = ClassIP.String()
	}
	if cfg.APIKey.Name == "" {
		cfg.APIKey.Name = ClassAPIKey.String()
	}

	ip, err := rate.New(backend, cfg.IP)
	if err != nil {
		return nil, err
	}
	apiKey, err := rate.New(backend, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return &Admission{ip: ip, apiKey: apiKey}, nil
}

// Admit charges cost to key under class. API keys are hashed before they
// become part of a storage key.
func (a *Admission) Admit(ctx context.Context, class Class, key string, cost int64) (rate.Result, error) {
	if a == nil {
		return rate.Result{Allowed: true}, nil
	}
	switch class {
	case ClassIP:
		return a.ip.Admit(ctx, key, cost)
	case ClassAPIKey:
		return a.apiKey.Admit(ctx, internal.HashKey(key), cost)
	default:
		return rate.Result{}, fmt.Errorf("unknown admission class %d", class)
	}
}

// Check reports whether key has room under class without charging it.
func (a *Admission) Check(ctx context.Context, class Class, key string) (rate.Result, error) {
	if a == nil {
		return rate.Result{Allowed: true}, nil
	}
	switch class {
	case ClassIP:
		return a.ip.Check(ctx, key)
	case ClassAPIKey:
		return a.apiKey.Check(ctx, internal.HashKey(key))
	default:
		return rate.Result{}, fmt.Errorf("unknown admission class %d", class)
	}
}

// Policy returns the policy bound to class.
func (a *Admission) Policy(class Class) rate.Policy {
	if a == nil {
		return rate.Policy{}
	}
	if class == ClassAPIKey {
		return a.apiKey.Policy()
	}
	return a.ip.Policy()
}
