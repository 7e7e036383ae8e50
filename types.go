package catfeed

import (
	"context"
	"time"

	"github.com/MrEthical07/catfeed/session"
)

// Role is the authorization tier carried by a session and an account.
type Role = session.Role

const (
	RolePublicViewer = session.RolePublicViewer
	RoleMember       = session.RoleMember
	RoleAdmin        = session.RoleAdmin
)

// CSRFFormField is the form field that carries the CSRF token.
const CSRFFormField = "csrf"

// Account is the persisted user record. Credential holds the
// salt:digest pair produced by the password codec.
type Account struct {
	Username   string
	Email      string
	FirstName  string
	LastName   string
	Credential string
	Role       Role
	ResetKey   string
	CreatedAt  time.Time
}

// AccountProvider is the persistence collaborator for accounts.
//
// Lookups return ErrAccountNotFound for absent accounts. Create and Update
// return ErrUsernameTaken or ErrEmailTaken on uniqueness violations.
type AccountProvider interface {
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, account Account) error
	Update(ctx context.Context, previousUsername string, account Account) error
	SetResetKey(ctx context.Context, username, key string) error
}

// AuthOutcome is the result of a credential check.
type AuthOutcome uint8

const (
	AuthRejected AuthOutcome = iota
	AuthAccepted
	AuthUnknownAccount
)

func (o AuthOutcome) String() string {
	switch o {
	case AuthAccepted:
		return "accepted"
	case AuthUnknownAccount:
		return "unknown_account"
	default:
		return "rejected"
	}
}

// RegistrationInput is the raw registration form.
type RegistrationInput struct {
	FirstName      string
	LastName       string
	Email          string
	Username       string
	Password       string
	RepeatPassword string
}

// ProfileChange carries the editable profile fields. Empty fields keep the
// stored value.
type ProfileChange struct {
	FirstName      string
	LastName       string
	Email          string
	Username       string
	Password       string
	RepeatPassword string
}

// ResetNotifier delivers a password reset link to the account holder.
type ResetNotifier interface {
	SendResetLink(ctx context.Context, account Account, link string) error
}

// ResetNotifierFunc adapts a function to ResetNotifier.
type ResetNotifierFunc func(ctx context.Context, account Account, link string) error

func (f ResetNotifierFunc) SendResetLink(ctx context.Context, account Account, link string) error {
	return f(ctx, account, link)
}
