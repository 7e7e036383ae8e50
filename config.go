package catfeed

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config holds every tunable of the Engine. Obtain a populated value from
// DefaultConfig and override fields before passing it to Builder.WithConfig.
type Config struct {
	Session       SessionConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Account       AccountConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and storage.
//
// TTL is absolute. A session expires TTL after it was started no matter how
// often it is read or written.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
	CookieName  string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	SaltLength int
}

// PasswordResetConfig controls the emailed reset link flow. Links are JWTs
// signed with SigningMethod; the matching single-use record lives in Redis
// under RedisPrefix for TTL.
type PasswordResetConfig struct {
	Enabled       bool
	TTL           time.Duration
	RedisPrefix   string
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	BaseURL       string
}

type AccountConfig struct {
	DefaultRole Role
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cookie policy and the production guard rails.
type SecurityConfig struct {
	ProductionMode       bool
	RequireSecureCookies bool
	SameSitePolicy       http.SameSite
}

// DefaultConfig returns the development defaults: a 20 minute session,
// 16 byte salts, reset links valid for 15 minutes.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "cs",
			TTL:         20 * time.Minute,
			CookieName:  "sessionID",
		},
		Password: PasswordConfig{
			SaltLength: 16,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:       false,
			TTL:           15 * time.Minute,
			RedisPrefix:   "cpr",
			SigningMethod: "hs256",
			Issuer:        "catfeed",
			BaseURL:       "http://localhost:8080",
		},
		Account: AccountConfig{
			DefaultRole: RoleMember,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:       false,
			RequireSecureCookies: false,
			SameSitePolicy:       http.SameSiteLaxMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.PasswordReset.PrivateKey = cloneBytes(cfg.PasswordReset.PrivateKey)
	out.PasswordReset.PublicKey = cloneBytes(cfg.PasswordReset.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting. Messages name the field.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TTL < time.Second {
		return errors.New("Session TTL must be >= 1s")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName is required")
	}

	// Password
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}

	// Password reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TTL <= 0 {
			return errors.New("PasswordReset TTL must be > 0")
		}
		if strings.TrimSpace(c.PasswordReset.RedisPrefix) == "" {
			return errors.New("PasswordReset RedisPrefix is required")
		}
		if c.PasswordReset.RedisPrefix == c.Session.RedisPrefix {
			return errors.New("PasswordReset RedisPrefix must differ from Session RedisPrefix")
		}
		if strings.TrimSpace(c.PasswordReset.BaseURL) == "" {
			return errors.New("PasswordReset BaseURL is required when password reset is enabled")
		}
		switch c.PasswordReset.SigningMethod {
		case "hs256":
			if len(c.PasswordReset.PrivateKey) == 0 {
				return errors.New("PasswordReset hs256 requires PrivateKey")
			}
		case "ed25519":
			if len(c.PasswordReset.PrivateKey) == 0 {
				return errors.New("PasswordReset ed25519 requires PrivateKey")
			}
			if len(c.PasswordReset.PublicKey) == 0 {
				return errors.New("PasswordReset ed25519 requires PublicKey")
			}
		default:
			return errors.New("PasswordReset SigningMethod must be 'hs256' or 'ed25519'")
		}
	}

	// Account
	if !c.Account.DefaultRole.Authenticated() {
		return errors.New("Account DefaultRole must be member or admin")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	switch c.Security.SameSitePolicy {
	case http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode, http.SameSiteNoneMode:
		// valid
	default:
		return errors.New("Security SameSitePolicy is invalid")
	}
	if c.Security.SameSitePolicy == http.SameSiteNoneMode && !c.Security.RequireSecureCookies {
		return errors.New("Security SameSite=None requires RequireSecureCookies")
	}

	if c.Security.ProductionMode {
		if !c.Security.RequireSecureCookies {
			return errors.New("ProductionMode requires RequireSecureCookies")
		}
		if c.Session.TTL > 12*time.Hour {
			return errors.New("ProductionMode requires Session TTL <= 12h")
		}
		if c.PasswordReset.Enabled {
			if c.PasswordReset.TTL > time.Hour {
				return errors.New("ProductionMode requires PasswordReset TTL <= 1h")
			}
			if c.PasswordReset.SigningMethod == "hs256" && len(c.PasswordReset.PrivateKey) < 32 {
				return errors.New("ProductionMode requires hs256 key length >= 256 bits")
			}
			if strings.HasPrefix(c.PasswordReset.BaseURL, "http://") {
				return errors.New("ProductionMode requires an https PasswordReset BaseURL")
			}
		}
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning flags a setting that is valid but probably unintended.
type LintWarning struct {
	Code    string
	Message string
}

type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports soft warnings. Unlike Validate it never blocks Build.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if c.Session.TTL > 2*time.Hour {
		ws = append(ws, LintWarning{Code: "session_ttl_long", Message: "Session TTL above 2h keeps abandoned sessions alive"})
	}
	if !c.Security.RequireSecureCookies {
		ws = append(ws, LintWarning{Code: "insecure_cookies", Message: "session cookie is sent over plain http"})
	}
	if !c.PasswordReset.Enabled {
		ws = append(ws, LintWarning{Code: "password_reset_disabled", Message: "forgot-password flow will report every email as unknown"})
	}
	if c.PasswordReset.Enabled && c.PasswordReset.TTL > c.Session.TTL {
		ws = append(ws, LintWarning{Code: "reset_outlives_session", Message: "reset link outlives the session that requested it"})
	}
	if c.Audit.Enabled && c.Audit.DropIfFull {
		ws = append(ws, LintWarning{Code: "audit_drop_if_full", Message: "audit events are dropped under backpressure"})
	}

	return ws
}
