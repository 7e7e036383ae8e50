package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/session"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LoginPath is where visitors without a usable session are sent.
const LoginPath = "/login"

type sessionContextKey struct{}

// SessionFromContext returns the session resolved by LoadSession or
// RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// WithSession stores sess in ctx. Handlers use it after Login replaced the
// session they started with.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// LoadSession resolves the session named by the cookie and silently starts a
// public one when there is none. Pages that anyone may view use it.
func LoadSession(engine *catfeed.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			sess, fresh, err := engine.Visit(r.Context(), cookieValue(r, engine))
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("catfeed: resolve session")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if fresh {
				SetSessionCookie(w, engine.Config(), sess)
			}

			annotateSpan(r, sess, fresh)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireSession resolves the session named by the cookie. When there is
// none it starts a public session carrying entry, sets the cookie and
// redirects to LoginPath without calling next. A zero entry notice means
// NoticeSessionExpired.
func RequireSession(engine *catfeed.Engine, entry catfeed.Notice) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			sess, fresh, err := engine.ResolveSession(r.Context(), cookieValue(r, engine), entry)
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("catfeed: resolve session")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if fresh {
				hlog.FromRequest(r).Debug().Object("session", sess).Msg("catfeed: session replaced")
				SetSessionCookie(w, engine.Config(), sess)
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}

			annotateSpan(r, sess, fresh)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func annotateSpan(r *http.Request, sess *session.Session, fresh bool) {
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("catfeed.session.role", string(sess.Role)),
		attribute.Bool("catfeed.session.fresh", fresh),
	)
}

// ClientContext copies the remote address and user agent into the request
// context for audit events. Put it after chi's RealIP.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := catfeed.WithClientIP(r.Context(), r.RemoteAddr)
		if ua := r.UserAgent(); ua != "" {
			ctx = catfeed.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie points the browser at sess until the session expires.
func SetSessionCookie(w http.ResponseWriter, cfg catfeed.Config, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.Expiry(),
		HttpOnly: true,
		Secure:   cfg.Security.RequireSecureCookies,
		SameSite: cfg.Security.SameSitePolicy,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg catfeed.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Security.RequireSecureCookies,
		SameSite: cfg.Security.SameSitePolicy,
	})
}

// SessionID returns the identifier the request cookie carries, or "".
func SessionID(r *http.Request, engine *catfeed.Engine) string {
	return cookieValue(r, engine)
}

func cookieValue(r *http.Request, engine *catfeed.Engine) string {
	c, err := r.Cookie(engine.Config().Session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
