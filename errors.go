package catfeed

import (
	"errors"

	"github.com/MrEthical07/catfeed/content"
	"github.com/MrEthical07/catfeed/password"
	"github.com/MrEthical07/catfeed/upload"
)

var (
	// ErrSessionNotFound is returned for an empty, unknown, or expired session identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict is returned when a session write lost every retry to a concurrent writer.
	ErrSessionConflict = errors.New("session update conflict")
	// ErrSessionUnavailable wraps session store transport failures.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrTokenGenerationExhausted is returned when two consecutive session identifiers collided.
	ErrTokenGenerationExhausted = errors.New("session id generation exhausted")
	// ErrCSRFMismatch is returned by composite flows when the submitted CSRF token was rejected.
	ErrCSRFMismatch = errors.New("csrf token mismatch")
	// ErrCredentialMismatch is returned by Login for an unknown account or a wrong password.
	ErrCredentialMismatch = errors.New("incorrect username or password")
	// ErrCorruptCredential is returned when a stored credential is not a salt:digest pair.
	ErrCorruptCredential = password.ErrCorruptCredential
	// ErrAccountNotFound is returned by AccountProvider lookups for an unknown account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUsernameTaken is returned when a username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("email already taken")
	// ErrRegistrationInvalid wraps a *validate.Error describing the rejected field.
	ErrRegistrationInvalid = errors.New("invalid registration request")
	// ErrAccountUnavailable wraps account store failures.
	ErrAccountUnavailable = errors.New("account backend unavailable")
	// ErrPasswordResetInvalid is returned for an unknown, expired, replayed, or forged reset key.
	ErrPasswordResetInvalid = errors.New("password reset key invalid")
	// ErrPasswordResetDisabled is returned when no reset signing key is configured.
	ErrPasswordResetDisabled = errors.New("password reset disabled")
	// ErrPasswordResetUnavailable wraps reset record store failures.
	ErrPasswordResetUnavailable = errors.New("password reset backend unavailable")
	// ErrForbidden is returned when the session role does not grant access.
	ErrForbidden = errors.New("forbidden")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUploadTooLarge is returned when an uploaded image exceeds the size cap.
	ErrUploadTooLarge = upload.ErrTooLarge
	// ErrLocationUnknown is returned for a post naming a location outside the fixed set.
	ErrLocationUnknown = content.ErrLocationUnknown
)
