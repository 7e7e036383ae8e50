package middleware

import (
	"net/http"

	"github.com/MrEthical07/catfeed"
	"github.com/rs/zerolog/hlog"
)

// RequireRole lets the request through when the session resolved earlier in
// the chain holds one of allowed. Otherwise it flashes notice and redirects
// to LoginPath. It must run after LoadSession or RequireSession.
func RequireRole(engine *catfeed.Engine, notice catfeed.Notice, allowed ...catfeed.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if err := catfeed.Authorize(sess, allowed...); err != nil {
				if ferr := engine.SetFlash(r.Context(), sess.ID, notice); ferr != nil {
					hlog.FromRequest(r).Error().Err(ferr).Msg("catfeed: flash")
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
