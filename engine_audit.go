package authgate

import (
	"context"
	"strconv"
	"time"
)

const (
	auditEventTokensIssued         = "tokens_issued"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventAPIKeyRotated        = "api_key_rotated"
	auditEventStoreUnavailable     = "store_unavailable"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Code:      string(CodeOf(err)),
		Metadata:  metadata,
	})
}

func (e *Engine) emitRateLimit(ctx context.Context, policy Policy, adm Admission) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimitExceeded, func() map[string]string {
		return map[string]string{
			"policy":      policy.String(),
			"limit":       strconv.FormatInt(adm.Limit, 10),
			"retry_after": adm.RetryAfter.Round(time.Second).String(),
		}
	})
}
