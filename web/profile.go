package web

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/internal/validate"
	"github.com/MrEthical07/catfeed/middleware"
)

const profilePath = "/change-profile-details"

func (s *Server) profileForm(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(w, r, "Profile details")
	if !s.loadAccount(w, r, p) || !s.withCSRF(w, r, p) {
		return
	}
	s.views.render(w, r, "profile", p)
}

func (s *Server) changeProfile(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCSRF(w, r, profilePath) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())

	change := catfeed.ProfileChange{
		FirstName:      r.PostFormValue(validate.FieldFirstName),
		LastName:       r.PostFormValue(validate.FieldLastName),
		Email:          r.PostFormValue(validate.FieldEmail),
		Username:       r.PostFormValue(validate.FieldUsername),
		Password:       r.PostFormValue(validate.FieldPassword),
		RepeatPassword: r.PostFormValue(validate.FieldRepeat),
	}

	_, err := s.engine.ChangeProfile(r.Context(), sess.ID, change)
	var ferr *catfeed.FieldError
	switch {
	case err == nil:
		http.Redirect(w, r, landingFor(sess.Role), http.StatusFound)
	case errors.As(err, &ferr):
		p := s.newPage(w, r, "Profile details")
		p.Error = ferr.Message
		p.Form[validate.FieldFirstName] = change.FirstName
		p.Form[validate.FieldLastName] = change.LastName
		p.Form[validate.FieldEmail] = change.Email
		p.Form[validate.FieldUsername] = change.Username
		if !s.loadAccount(w, r, p) || !s.withCSRF(w, r, p) {
			return
		}
		s.views.render(w, r, "profile", p)
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) loadAccount(w http.ResponseWriter, r *http.Request, p *page) bool {
	account, err := s.accounts.FindByUsername(r.Context(), p.Session.Username)
	if err != nil {
		s.fail(w, r, err)
		return false
	}
	account.Credential = ""
	p.Account = account
	return true
}
