package catfeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/catfeed/internal"
	"github.com/MrEthical07/catfeed/internal/stores"
	"github.com/MrEthical07/catfeed/internal/validate"
	"github.com/MrEthical07/catfeed/jwt"
)

// ResetPath is the route a reset link points at.
const ResetPath = "/reset-password"

// RequestPasswordReset issues a single-use reset link for the account
// registered under email and hands it to the ResetNotifier. The link is
// returned as well so callers without a mailer can surface it.
//
// An unknown email yields ErrAccountNotFound. Issuing a new link invalidates
// the previous one for the same account.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.accounts == nil {
		return "", ErrEngineNotReady
	}
	if e.resetTokens == nil || e.resetStore == nil {
		return "", ErrPasswordResetDisabled
	}

	email = strings.TrimSpace(email)
	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			err = fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return "", err
	}

	resetID, err := internal.NewResetID()
	if err != nil {
		return "", err
	}

	now := e.now()
	record := &stores.PasswordResetRecord{
		Username:  account.Username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(e.config.PasswordReset.TTL).Unix(),
	}
	if err := e.resetStore.Save(ctx, resetID, record, now); err != nil {
		err = mapResetStoreError(err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.Username, "", err, nil)
		return "", err
	}

	token, err := e.resetTokens.CreateReset(account.Username, resetID, now)
	if err != nil {
		return "", err
	}

	if err := e.accounts.SetResetKey(ctx, account.Username, resetID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	account.ResetKey = resetID

	link := resetLink(e.config.PasswordReset.BaseURL, token)
	if e.resetNotifier != nil {
		if err := e.resetNotifier.SendResetLink(ctx, account, link); err != nil {
			e.logger.Warn().Err(err).Str("username", account.Username).Msg("catfeed: reset link delivery failed")
			err = fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.Username, "", err, nil)
			return "", err
		}
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.Username, "", nil, nil)
	return link, nil
}

// CheckResetKey reports the username a reset key was issued for without
// consuming it. The reset form uses it before rendering.
func (e *Engine) CheckResetKey(ctx context.Context, key string) (string, error) {
	claims, err := e.resolveResetKey(ctx, key)
	if err != nil {
		return "", err
	}
	if _, err := e.resetStore.Get(ctx, claims.ResetID(), e.now()); err != nil {
		return "", mapResetStoreError(err)
	}
	return claims.Username, nil
}

// ResetPassword sets a new password for the account behind key. The
// password must match confirm and satisfy the password policy; a rejected
// password leaves the key usable. A key is accepted once.
func (e *Engine) ResetPassword(ctx context.Context, key, newPassword, confirm string) error {
	claims, err := e.resolveResetKey(ctx, key)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", err, nil)
		return err
	}

	if verr := validate.PasswordsMatch(newPassword, confirm); verr != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
	}
	if verr := validate.Password(newPassword); verr != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
	}

	if _, err := e.resetStore.Consume(ctx, claims.ResetID(), claims.Username, e.now()); err != nil {
		err = mapResetStoreError(err)
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, claims.Username, "", err, nil)
		return err
	}

	account, err := e.accounts.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrPasswordResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}

	credential, err := e.codec.Hash(newPassword)
	if err != nil {
		return err
	}
	account.Credential = credential
	account.ResetKey = ""

	if err := e.accounts.Update(ctx, account.Username, account); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, account.Username, "", nil, nil)
	return nil
}

// resolveResetKey verifies the link token and that it is still the latest
// key issued to the account.
func (e *Engine) resolveResetKey(ctx context.Context, key string) (*jwt.ResetClaims, error) {
	if e == nil || e.accounts == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if e.resetTokens == nil || e.resetStore == nil {
		return nil, ErrPasswordResetDisabled
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrPasswordResetInvalid
	}

	claims, err := e.resetTokens.ParseReset(key, e.now())
	if err != nil {
		return nil, ErrPasswordResetInvalid
	}
	if !internal.ValidResetID(claims.ResetID()) {
		return nil, ErrPasswordResetInvalid
	}

	account, err := e.accounts.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrPasswordResetInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	if account.ResetKey == "" || account.ResetKey != claims.ResetID() {
		return nil, ErrPasswordResetInvalid
	}

	return claims, nil
}

func resetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + ResetPath + "?key=" + url.QueryEscape(token)
}

func mapResetStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrResetNotFound), errors.Is(err, stores.ErrResetSubjectMismatch):
		return ErrPasswordResetInvalid
	case errors.Is(err, stores.ErrResetRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	default:
		return err
	}
}

func logResetNotifier(e *Engine) ResetNotifier {
	return ResetNotifierFunc(func(_ context.Context, account Account, link string) error {
		e.logger.Info().Str("username", account.Username).Str("email", account.Email).Str("link", link).Msg("catfeed: password reset link issued")
		return nil
	})
}
