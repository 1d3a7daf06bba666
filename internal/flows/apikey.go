package flows

import "context"

// APIKeyDeps captures API key rotation dependencies.
type APIKeyDeps struct {
	NewAPIKey    func() (string, error)
	GetUser      func(ctx context.Context, userID string) error
	AssignAPIKey func(ctx context.Context, userID, apiKey string) error
}

// RunRotateAPIKey replaces userID's API key. The old key stops identifying
// the user immediately; its rate-limit window simply expires.
func RunRotateAPIKey(ctx context.Context, userID string, deps APIKeyDeps) (string, error) {
	if err := deps.GetUser(ctx, userID); err != nil {
		return "", err
	}
	key, err := deps.NewAPIKey()
	if err != nil {
		return "", err
	}
	if err := deps.AssignAPIKey(ctx, userID, key); err != nil {
		return "", err
	}
	return key, nil
}
