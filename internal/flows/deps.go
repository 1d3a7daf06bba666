package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue    IssueDeps
	Refresh  RefreshDeps
	Verify   VerifyDeps
	Gate     GateDeps
	Logout   LogoutDeps
	Login    LoginDeps
	Register RegisterDeps
	APIKey   APIKeyDeps
}
