package catfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/catfeed/internal/validate"
	"github.com/MrEthical07/catfeed/session"
)

// FieldError names the form field a rejected request failed on and the
// message to show beside it. Errors returned by Register, ChangeProfile and
// ResetPassword wrap one when the input was at fault.
type FieldError = validate.Error

// Register validates in, checks that the username and email are free, and
// stores a new account with the configured default role.
func (e *Engine) Register(ctx context.Context, in RegistrationInput) (Account, error) {
	if e == nil || e.accounts == nil || e.codec == nil {
		return Account{}, ErrEngineNotReady
	}
	return e.register(ctx, in, e.config.Account.DefaultRole)
}

// CreateAccount stores an account with an explicit role after the same
// checks as Register. It is meant for operator tooling, not for the public
// registration form.
func (e *Engine) CreateAccount(ctx context.Context, in RegistrationInput, role Role) (Account, error) {
	if e == nil || e.accounts == nil || e.codec == nil {
		return Account{}, ErrEngineNotReady
	}
	if !role.Authenticated() {
		return Account{}, fmt.Errorf("%w: role %q cannot own an account", ErrRegistrationInvalid, role)
	}
	if in.RepeatPassword == "" {
		in.RepeatPassword = in.Password
	}
	return e.register(ctx, in, role)
}

func (e *Engine) register(ctx context.Context, in RegistrationInput, role Role) (Account, error) {
	form := validate.Registration{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Username:  in.Username,
		Password:  in.Password,
		Repeat:    in.RepeatPassword,
	}.Normalize()

	if verr := validate.CheckRegistration(form); verr != nil {
		return Account{}, e.rejectRegistration(ctx, form.Username, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr))
	}
	if err := e.ensureUsernameFree(ctx, form.Username); err != nil {
		return Account{}, e.rejectRegistration(ctx, form.Username, err)
	}
	if err := e.ensureEmailFree(ctx, form.Email); err != nil {
		return Account{}, e.rejectRegistration(ctx, form.Username, err)
	}

	credential, err := e.codec.Hash(form.Password)
	if err != nil {
		return Account{}, err
	}

	account := Account{
		Username:   form.Username,
		Email:      form.Email,
		FirstName:  collapseSpaces(form.FirstName),
		LastName:   collapseSpaces(form.LastName),
		Credential: credential,
		Role:       role,
		CreatedAt:  e.now().UTC(),
	}

	if err := e.accounts.Create(ctx, account); err != nil {
		return Account{}, e.rejectRegistration(ctx, form.Username, uniquenessError(err))
	}

	e.metricInc(MetricAccountRegistered)
	e.emitAudit(ctx, auditEventAccountRegistered, true, account.Username, "", nil, func() map[string]string {
		return map[string]string{"role": string(account.Role)}
	})
	return account, nil
}

// ChangeProfile applies change to the account behind the session. Empty
// fields keep the stored value. A new password is re-salted, and a new
// username is carried over to the session.
func (e *Engine) ChangeProfile(ctx context.Context, sessionID string, change ProfileChange) (Account, error) {
	if e == nil || e.accounts == nil || e.codec == nil {
		return Account{}, ErrEngineNotReady
	}

	sess, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return Account{}, err
	}
	if err := Authorize(sess, RoleMember, RoleAdmin); err != nil {
		return Account{}, err
	}

	current, err := e.accounts.FindByUsername(ctx, sess.Username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}

	updated, err := e.applyProfileChange(ctx, current, change)
	if err != nil {
		e.emitAudit(ctx, auditEventProfileUpdated, false, current.Username, sessionID, err, nil)
		return Account{}, err
	}

	if err := e.accounts.Update(ctx, current.Username, updated); err != nil {
		err = uniquenessError(err)
		e.emitAudit(ctx, auditEventProfileUpdated, false, current.Username, sessionID, err, nil)
		return Account{}, err
	}

	_, err = e.mutate(ctx, sessionID, func(s *session.Session) error {
		s.Username = updated.Username
		s.FlashKind = uint8(NoticeProfileUpdated)
		s.FlashArg = ""
		return nil
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("username", updated.Username).Msg("catfeed: profile saved but session not updated")
	}

	e.metricInc(MetricProfileUpdated)
	e.emitAudit(ctx, auditEventProfileUpdated, true, updated.Username, sessionID, nil, func() map[string]string {
		meta := map[string]string{}
		if updated.Username != current.Username {
			meta["previous_username"] = current.Username
		}
		if updated.Credential != current.Credential {
			meta["password_changed"] = "true"
		}
		return meta
	})
	return updated, nil
}

func (e *Engine) applyProfileChange(ctx context.Context, current Account, change ProfileChange) (Account, error) {
	updated := current

	if first := strings.TrimSpace(change.FirstName); first != "" {
		if verr := validate.Name(validate.FieldFirstName, first); verr != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
		}
		updated.FirstName = collapseSpaces(first)
	}
	if last := strings.TrimSpace(change.LastName); last != "" {
		if verr := validate.Name(validate.FieldLastName, last); verr != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
		}
		updated.LastName = collapseSpaces(last)
	}

	if email := strings.TrimSpace(change.Email); email != "" && email != current.Email {
		if verr := validate.Email(email); verr != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
		}
		// Emails are unique regardless of case, so a case-only change keeps
		// the address this account already owns.
		if !strings.EqualFold(email, current.Email) {
			if err := e.ensureEmailFree(ctx, email); err != nil {
				return Account{}, err
			}
		}
		updated.Email = email
	}

	if username := strings.TrimSpace(change.Username); username != "" && username != current.Username {
		if verr := validate.Username(username); verr != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
		}
		if err := e.ensureUsernameFree(ctx, username); err != nil {
			return Account{}, err
		}
		updated.Username = username
	}

	if change.Password != "" || change.RepeatPassword != "" {
		if verr := validate.PasswordsMatch(change.Password, change.RepeatPassword); verr != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
		}
		if verr := validate.Password(change.Password); verr != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrRegistrationInvalid, verr)
		}
		credential, err := e.codec.Hash(change.Password)
		if err != nil {
			return Account{}, err
		}
		updated.Credential = credential
	}

	return updated, nil
}

func (e *Engine) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := e.accounts.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %w", ErrUsernameTaken, &validate.Error{Field: validate.FieldUsername, Message: validate.MsgUsernameTaken})
	case errors.Is(err, ErrAccountNotFound):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
}

func (e *Engine) ensureEmailFree(ctx context.Context, email string) error {
	_, err := e.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %w", ErrEmailTaken, &validate.Error{Field: validate.FieldEmail, Message: validate.MsgEmailTaken})
	case errors.Is(err, ErrAccountNotFound):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
}

func (e *Engine) rejectRegistration(ctx context.Context, username string, err error) error {
	e.metricInc(MetricAccountRegistrationRejected)
	e.emitAudit(ctx, auditEventAccountRegistrationRejected, false, username, "", err, func() map[string]string {
		var ferr *FieldError
		if errors.As(err, &ferr) {
			return map[string]string{"field": ferr.Field}
		}
		return nil
	})
	return err
}

// uniquenessError attaches field messages to store-level uniqueness errors
// raised by a concurrent registration.
func uniquenessError(err error) error {
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return fmt.Errorf("%w: %w", ErrUsernameTaken, &validate.Error{Field: validate.FieldUsername, Message: validate.MsgUsernameTaken})
	case errors.Is(err, ErrEmailTaken):
		return fmt.Errorf("%w: %w", ErrEmailTaken, &validate.Error{Field: validate.FieldEmail, Message: validate.MsgEmailTaken})
	case errors.Is(err, ErrAccountNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
