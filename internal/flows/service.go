package flows

import (
	"context"

	"github.com/MrEthical07/authgate/jwt"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.Parse != nil
}

func (s Service) Issue(ctx context.Context, userID string) IssueResult {
	return RunIssue(ctx, userID, s.deps.Issue)
}

func (s Service) IssueForSession(ctx context.Context, userID, sessionID string) IssueResult {
	return RunIssueForSession(ctx, userID, sessionID, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Verify(tokenStr string, expected jwt.TokenType) VerifyResult {
	return RunVerify(tokenStr, expected, s.deps.Verify)
}

func (s Service) Gate(ctx context.Context, req GateRequest) GateResult {
	return RunGate(ctx, req, s.deps.Gate)
}

func (s Service) LogoutSession(ctx context.Context, sessionID string) error {
	return RunLogoutSession(ctx, sessionID, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	return RunLogoutAll(ctx, userID, s.deps.Logout)
}

func (s Service) LogoutByToken(ctx context.Context, token string, typ jwt.TokenType) LogoutByTokenResult {
	return RunLogoutByToken(ctx, token, typ, s.deps.Logout)
}

func (s Service) Login(ctx context.Context, email, password string) LoginResult {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	return RunRegister(ctx, req, s.deps.Register)
}

func (s Service) RotateAPIKey(ctx context.Context, userID string) (string, error) {
	return RunRotateAPIKey(ctx, userID, s.deps.APIKey)
}
