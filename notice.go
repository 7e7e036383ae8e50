package catfeed

import "fmt"

// NoticeKind tags a flash notice. Zero means no notice.
type NoticeKind uint8

const (
	NoticeNone NoticeKind = iota
	NoticeSessionExpired
	NoticeSessionExpiredRegister
	NoticeSessionExpiredReset
	NoticeWelcomeBack
	NoticeCSRFRejected
	NoticeIncorrectCredentials
	NoticeAccountRegistered
	NoticePleaseLogIn
	NoticeMustSignInToPost
	NoticePasswordResetSent
	NoticeInvalidResetKey
	NoticePasswordResetSuccess
	NoticeEmailNotFound
	NoticeProfileUpdated
	NoticePostCreated
	noticeKindCount
)

// Notice is a one-shot message carried in a session until the next page
// view reads it. Arg is only used by kinds that interpolate a value.
type Notice struct {
	Kind NoticeKind
	Arg  string
}

// Valid reports whether n names a known kind other than NoticeNone.
func (n Notice) Valid() bool {
	return n.Kind > NoticeNone && n.Kind < noticeKindCount
}

// Message returns the user-facing copy for n.
func (n Notice) Message() string {
	switch n.Kind {
	case NoticeSessionExpired:
		return "Session expired, Please login again."
	case NoticeSessionExpiredRegister:
		return "Session expired, Please register again."
	case NoticeSessionExpiredReset:
		return "Session expired, Please reset your password again."
	case NoticeWelcomeBack:
		return fmt.Sprintf("Welcome Back %s!", n.Arg)
	case NoticeCSRFRejected:
		return "CSRF token mismatch, approval process rejected"
	case NoticeIncorrectCredentials:
		return "Incorrect username or password."
	case NoticeAccountRegistered:
		return "Account has been successfully registered! Please log in."
	case NoticePleaseLogIn:
		return "Please log in to your account."
	case NoticeMustSignInToPost:
		return "You must be signed in to be able to post."
	case NoticePasswordResetSent:
		return "A link has been sent to your email, check console log to reset password."
	case NoticeInvalidResetKey:
		return "Invalid reset key, Please enter your email again."
	case NoticePasswordResetSuccess:
		return "Password reset successfully."
	case NoticeEmailNotFound:
		return "Email does not exist, Please check and try again."
	case NoticeProfileUpdated:
		return "Profile details updated."
	case NoticePostCreated:
		return "Your update has been posted."
	default:
		return ""
	}
}

// Level classifies a notice for styling.
func (n Notice) Level() string {
	switch n.Kind {
	case NoticeWelcomeBack, NoticeAccountRegistered, NoticePasswordResetSuccess,
		NoticePasswordResetSent, NoticeProfileUpdated, NoticePostCreated:
		return "success"
	case NoticeNone:
		return ""
	default:
		return "error"
	}
}

func (n Notice) String() string {
	return n.Message()
}
