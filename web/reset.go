package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/internal/validate"
	"github.com/MrEthical07/catfeed/middleware"
)

const forgotPasswordPath = "/forgot-password"

func (s *Server) forgotPasswordForm(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(w, r, "Forgot password")
	if !s.withCSRF(w, r, p) {
		return
	}
	s.views.render(w, r, "forgot_password", p)
}

func (s *Server) submitEmail(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCSRF(w, r, forgotPasswordPath) {
		return
	}

	email := strings.TrimSpace(r.PostFormValue(validate.FieldEmail))
	if email == "" {
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticeEmailNotFound}, forgotPasswordPath)
		return
	}

	_, err := s.engine.RequestPasswordReset(r.Context(), email)
	switch {
	case errors.Is(err, catfeed.ErrAccountNotFound):
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticeEmailNotFound}, forgotPasswordPath)
	case errors.Is(err, catfeed.ErrPasswordResetDisabled):
		p := s.newPage(w, r, "Forgot password")
		p.Error = "Password reset is not available."
		p.Status = http.StatusServiceUnavailable
		s.views.render(w, r, "forgot_password", p)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticePasswordResetSent}, forgotPasswordPath)
	}
}

func (s *Server) resetPasswordForm(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if _, err := s.engine.CheckResetKey(r.Context(), key); err != nil {
		s.rejectResetKey(w, r, err)
		return
	}

	p := s.newPage(w, r, "Reset password")
	p.ResetKey = key
	if !s.withCSRF(w, r, p) {
		return
	}
	s.views.render(w, r, "reset_password", p)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCSRF(w, r, forgotPasswordPath) {
		return
	}

	key := r.PostFormValue("key")
	err := s.engine.ResetPassword(r.Context(), key, r.PostFormValue(validate.FieldPassword), r.PostFormValue(validate.FieldRepeat))

	var ferr *catfeed.FieldError
	switch {
	case err == nil:
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticePasswordResetSuccess}, middleware.LoginPath)
	case errors.As(err, &ferr):
		p := s.newPage(w, r, "Reset password")
		p.Error = ferr.Message
		p.ResetKey = key
		if !s.withCSRF(w, r, p) {
			return
		}
		s.views.render(w, r, "reset_password", p)
	default:
		s.rejectResetKey(w, r, err)
	}
}

func (s *Server) rejectResetKey(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catfeed.ErrPasswordResetInvalid) || errors.Is(err, catfeed.ErrPasswordResetDisabled) {
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticeInvalidResetKey}, forgotPasswordPath)
		return
	}
	s.fail(w, r, err)
}
