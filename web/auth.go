package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/internal/validate"
	"github.com/MrEthical07/catfeed/middleware"
	"github.com/rs/zerolog/hlog"
)

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(w, r, "Log in")
	if !s.withCSRF(w, r, p) {
		return
	}
	s.views.render(w, r, "login", p)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	username := strings.TrimSpace(r.PostFormValue(validate.FieldUsername))
	password := r.PostFormValue(validate.FieldPassword)

	if validate.Blank(username, password) {
		p := s.newPage(w, r, "Log in")
		p.Error = validate.MsgEmptyFields
		p.Form[validate.FieldUsername] = username
		if !s.withCSRF(w, r, p) {
			return
		}
		s.views.render(w, r, "login", p)
		return
	}

	updated, err := s.engine.Login(r.Context(), sess.ID, r.PostFormValue(catfeed.CSRFFormField), username, password)
	switch {
	case errors.Is(err, catfeed.ErrCSRFMismatch), errors.Is(err, catfeed.ErrCredentialMismatch):
		// Login already flashed the reason.
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return
	case errors.Is(err, catfeed.ErrCorruptCredential):
		hlog.FromRequest(r).Error().Err(err).Str("username", username).Msg("catfeed: stored credential unreadable")
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticeIncorrectCredentials}, middleware.LoginPath)
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	http.Redirect(w, r, landingFor(updated.Role), http.StatusFound)
}

func (s *Server) registerForm(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(w, r, "Register")
	if !s.withCSRF(w, r, p) {
		return
	}
	s.views.render(w, r, "register", p)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCSRF(w, r, "/register") {
		return
	}

	in := catfeed.RegistrationInput{
		FirstName:      r.PostFormValue(validate.FieldFirstName),
		LastName:       r.PostFormValue(validate.FieldLastName),
		Email:          r.PostFormValue(validate.FieldEmail),
		Username:       r.PostFormValue(validate.FieldUsername),
		Password:       r.PostFormValue(validate.FieldPassword),
		RepeatPassword: r.PostFormValue(validate.FieldRepeat),
	}

	_, err := s.engine.Register(r.Context(), in)
	var ferr *catfeed.FieldError
	switch {
	case errors.As(err, &ferr):
		p := s.newPage(w, r, "Register")
		p.Error = ferr.Message
		p.Form[validate.FieldFirstName] = in.FirstName
		p.Form[validate.FieldLastName] = in.LastName
		p.Form[validate.FieldEmail] = in.Email
		p.Form[validate.FieldUsername] = in.Username
		if !s.withCSRF(w, r, p) {
			return
		}
		s.views.render(w, r, "register", p)
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticeAccountRegistered}, middleware.LoginPath)
}
