package catfeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/catfeed/session"
)

// Authenticate checks plaintext against the stored credential of username.
// A stored value that is not a salt:digest pair yields ErrCorruptCredential.
func (e *Engine) Authenticate(ctx context.Context, username, plaintext string) (AuthOutcome, error) {
	if e == nil || e.accounts == nil || e.codec == nil {
		return AuthRejected, ErrEngineNotReady
	}

	account, err := e.accounts.FindByUsername(ctx, username)
	if errors.Is(err, ErrAccountNotFound) {
		return AuthUnknownAccount, nil
	}
	if err != nil {
		return AuthRejected, fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}

	ok, err := e.codec.Verify(plaintext, account.Credential)
	if err != nil {
		e.logger.Error().Str("username", username).Msg("catfeed: stored credential is corrupt")
		return AuthRejected, err
	}
	if !ok {
		return AuthRejected, nil
	}
	return AuthAccepted, nil
}

// RoleOf returns the role recorded on the account.
func (e *Engine) RoleOf(ctx context.Context, username string) (Role, error) {
	if e == nil || e.accounts == nil {
		return RolePublicViewer, ErrEngineNotReady
	}

	account, err := e.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return RolePublicViewer, ErrAccountNotFound
		}
		return RolePublicViewer, fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	if !account.Role.Authenticated() {
		return RolePublicViewer, fmt.Errorf("%w: account %q has role %q", ErrAccountUnavailable, username, account.Role)
	}
	return account.Role, nil
}

// Login runs the form login flow against an existing session.
//
// The CSRF token is checked first; a mismatch flashes NoticeCSRFRejected and
// returns ErrCSRFMismatch. Unknown accounts and wrong passwords are not told
// apart: both flash NoticeIncorrectCredentials and return
// ErrCredentialMismatch with the session role unchanged. On success the
// session is promoted to the account's role and username, the token is
// cleared, and NoticeWelcomeBack is flashed.
func (e *Engine) Login(ctx context.Context, sessionID, csrfToken, username, plaintext string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := e.checkCSRF(ctx, csrfToken, sessionID); err != nil {
		if errors.Is(err, ErrCSRFMismatch) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, username, sessionID, err, nil)
		}
		return nil, err
	}

	outcome, err := e.Authenticate(ctx, username, plaintext)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, sessionID, err, nil)
		return nil, err
	}
	if outcome != AuthAccepted {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, sessionID, ErrCredentialMismatch, func() map[string]string {
			return map[string]string{"outcome": outcome.String()}
		})
		if err := e.SetFlash(ctx, sessionID, Notice{Kind: NoticeIncorrectCredentials}); err != nil {
			return nil, err
		}
		return nil, ErrCredentialMismatch
	}

	role, err := e.RoleOf(ctx, username)
	if err != nil {
		return nil, err
	}

	sess, err := e.mutate(ctx, sessionID, func(s *session.Session) error {
		s.Role = role
		s.Username = username
		s.CSRFToken = ""
		s.FlashKind = uint8(NoticeWelcomeBack)
		s.FlashArg = username
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricFlashSet)
	e.emitAudit(ctx, auditEventLoginSuccess, true, username, sessionID, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	return sess, nil
}

// Logout deletes the session.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	var username string
	if sess, err := e.GetSession(ctx, sessionID); err == nil {
		username = sess.Username
	}

	if err := e.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, username, sessionID, nil, nil)
	return nil
}

// Authorize returns ErrForbidden unless the session role is one of allowed.
func Authorize(sess *session.Session, allowed ...Role) error {
	if sess == nil {
		return ErrForbidden
	}
	for _, r := range allowed {
		if sess.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
