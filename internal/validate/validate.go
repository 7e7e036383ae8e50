// Package validate holds the input rules applied to registration, profile
// and password reset forms. Rules return an *Error carrying the form field and
// the message shown back to the user.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const (
	MsgEmptyFields      = "All fields must be filled in"
	MsgPasswordMismatch = "Passwords do not match"
	MsgNameLetters      = "Firstname and lastname must contain letters only"
	MsgPasswordPolicy   = "Password Requirements: at least 8 characters, one uppercase letter, one lowercase letter, one digit, one symbol, no whitespaces"
	MsgUsernamePolicy   = "Username Requirements: between 6 and 30 characters, starts with a letter, no whitespaces or \"@\", only letters, digits, \"-\", \".\" and \"_\""
	MsgEmailFormat      = "Invalid email format"
	MsgUsernameTaken    = "Username already taken"
	MsgEmailTaken       = "Email already taken"
)

// Field names as they appear in forms.
const (
	FieldFirstName = "firstname"
	FieldLastName  = "lastname"
	FieldEmail     = "email"
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldRepeat    = "repeat_password"
	FieldForm      = "form"
)

// Tag sets for the single-value rules. Registration uses the same rules
// through its struct tags.
const (
	nameRule     = "personname"
	usernameRule = "min=6,max=30,username"
	passwordRule = "min=8,nowhitespace,containsany=ABCDEFGHIJKLMNOPQRSTUVWXYZ,containsany=abcdefghijklmnopqrstuvwxyz,containsany=0123456789,symbol"
	emailRule    = "mailbox"
)

// passwordSymbols is the punctuation accepted as the password's symbol.
const passwordSymbols = "`~!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9-]+@+[a-zA-Z0-9-]+.+[a-zA-Z0-9-_]{2,63}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)
	namePattern     = regexp.MustCompile(`^[A-Za-z ]*$`)
)

// Violations are reported in this order, whatever the struct layout.
var checkOrder = []string{FieldRepeat, FieldFirstName, FieldLastName, FieldPassword, FieldUsername, FieldEmail}

var fieldMessages = map[string]string{
	FieldRepeat:    MsgPasswordMismatch,
	FieldFirstName: MsgNameLetters,
	FieldLastName:  MsgNameLetters,
	FieldPassword:  MsgPasswordPolicy,
	FieldUsername:  MsgUsernamePolicy,
	FieldEmail:     MsgEmailFormat,
}

var rules = newRules()

func newRules() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})

	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("notblank", validators.NotBlank)
	must("personname", matches(namePattern))
	must("username", matches(usernamePattern))
	must("mailbox", matches(emailPattern))
	must("symbol", func(fl validator.FieldLevel) bool {
		return strings.ContainsAny(fl.Field().String(), passwordSymbols)
	})
	must("nowhitespace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Error is a rule violation tied to one form field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Registration is the raw registration form.
type Registration struct {
	FirstName string `form:"firstname" validate:"notblank,personname"`
	LastName  string `form:"lastname" validate:"notblank,personname"`
	Email     string `form:"email" validate:"notblank,mailbox"`
	Username  string `form:"username" validate:"notblank,min=6,max=30,username"`
	Password  string `form:"password" validate:"notblank,min=8,nowhitespace,containsany=ABCDEFGHIJKLMNOPQRSTUVWXYZ,containsany=abcdefghijklmnopqrstuvwxyz,containsany=0123456789,symbol"`
	Repeat    string `form:"repeat_password" validate:"notblank,eqfield=Password"`
}

// Normalize trims names, email and username. Passwords are left untouched.
func (r Registration) Normalize() Registration {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	return r
}

// CheckRegistration reports the first violation: a blank field, then
// mismatched passwords, names, password, username and email. Uniqueness is
// checked by the caller against the account store.
func CheckRegistration(r Registration) *Error {
	err := rules.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Field: FieldForm, Message: err.Error()}
	}
	return firstViolation(verrs)
}

func firstViolation(verrs validator.ValidationErrors) *Error {
	for _, fe := range verrs {
		if fe.Tag() == "notblank" {
			return &Error{Field: FieldForm, Message: MsgEmptyFields}
		}
	}
	for _, field := range checkOrder {
		for _, fe := range verrs {
			if fe.Field() == field {
				return &Error{Field: field, Message: fieldMessages[field]}
			}
		}
	}
	fe := verrs[0]
	return &Error{Field: fe.Field(), Message: fe.Error()}
}

// Blank reports whether any value is empty after trimming.
func Blank(values ...string) bool {
	for _, v := range values {
		if rules.Var(v, "notblank") != nil {
			return true
		}
	}
	return false
}

func PasswordsMatch(password, repeat string) *Error {
	if rules.VarWithValue(repeat, password, "eqcsfield") != nil {
		return &Error{Field: FieldRepeat, Message: MsgPasswordMismatch}
	}
	return nil
}

// Name accepts ASCII letters and spaces.
func Name(field, v string) *Error {
	if rules.Var(v, nameRule) != nil {
		return &Error{Field: field, Message: MsgNameLetters}
	}
	return nil
}

// Password enforces the complexity policy over ASCII character classes.
func Password(v string) *Error {
	if rules.Var(v, passwordRule) != nil {
		return &Error{Field: FieldPassword, Message: MsgPasswordPolicy}
	}
	return nil
}

// Username enforces length, a leading letter and the portable character set.
func Username(v string) *Error {
	if rules.Var(v, usernameRule) != nil {
		return &Error{Field: FieldUsername, Message: MsgUsernamePolicy}
	}
	return nil
}

func Email(v string) *Error {
	if rules.Var(v, emailRule) != nil {
		return &Error{Field: FieldEmail, Message: MsgEmailFormat}
	}
	return nil
}
