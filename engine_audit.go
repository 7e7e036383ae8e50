package catfeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	auditEventSessionStarted              = "session_started"
	auditEventSessionExpired              = "session_expired"
	auditEventLoginSuccess                = "login_success"
	auditEventLoginFailure                = "login_failure"
	auditEventCSRFRejected                = "csrf_rejected"
	auditEventLogout                      = "logout"
	auditEventAccountRegistered           = "account_registered"
	auditEventAccountRegistrationRejected = "account_registration_rejected"
	auditEventProfileUpdated              = "profile_updated"
	auditEventPasswordResetRequest        = "password_reset_request"
	auditEventPasswordResetConfirm        = "password_reset_confirm"
	auditEventPostCreated                 = "post_created"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionConflict    AuditErrorCode = "session_conflict"
	auditErrCSRFMismatch       AuditErrorCode = "csrf_mismatch"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrCorruptCredential  AuditErrorCode = "corrupt_credential"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrDisabled           AuditErrorCode = "disabled"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// NotePostCreated records a post written by username from the session.
// The web layer calls it after the content store committed the post.
func (e *Engine) NotePostCreated(ctx context.Context, username, sessionID, location string) {
	e.metricInc(MetricPostCreated)
	e.emitAudit(ctx, auditEventPostCreated, true, username, sessionID, nil, func() map[string]string {
		return map[string]string{"location": location}
	})
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
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
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Username:  username,
		SessionID: sessionRef(sessionID),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// sessionRef shortens a session identifier to a stable digest that can be
// correlated across events but not replayed as a cookie.
func sessionRef(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:8])
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionConflict):
		return auditErrSessionConflict
	case errors.Is(err, ErrCSRFMismatch):
		return auditErrCSRFMismatch
	case errors.Is(err, ErrCredentialMismatch):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrCorruptCredential):
		return auditErrCorruptCredential
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrRegistrationInvalid):
		return auditErrValidation
	case errors.Is(err, ErrPasswordResetInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrPasswordResetDisabled):
		return auditErrDisabled
	case errors.Is(err, ErrSessionUnavailable),
		errors.Is(err, ErrAccountUnavailable),
		errors.Is(err, ErrPasswordResetUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
