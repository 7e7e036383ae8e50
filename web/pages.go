package web

import (
	"net/http"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/middleware"
)

func (s *Server) landing(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(w, r, "")
	locations, err := s.content.Locations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p.Locations = locations
	s.views.render(w, r, "landing", p)
}

func (s *Server) about(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, r, "about", s.newPage(w, r, "About"))
}

func (s *Server) memberPage(w http.ResponseWriter, r *http.Request) {
	s.dashboard(w, r, "Member Dashboard")
}

func (s *Server) adminPage(w http.ResponseWriter, r *http.Request) {
	s.dashboard(w, r, "Admin Dashboard")
}

func (s *Server) adminHome(w http.ResponseWriter, r *http.Request) {
	s.dashboard(w, r, "Admin Home")
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request, title string) {
	p := s.newPage(w, r, title)
	locations, err := s.content.Locations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p.Locations = locations
	s.views.render(w, r, "dashboard", p)
}

// logout works with or without a live session and always clears the cookie.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), middleware.SessionID(r, s.engine)); err != nil {
		s.logger.Warn().Err(err).Msg("catfeed: logout")
	}
	middleware.ClearSessionCookie(w, s.engine.Config())

	p := &page{Title: "Logged out", Form: map[string]string{}, Now: s.clock.Now()}
	s.views.render(w, r, "logout", p)
}

func landingFor(role catfeed.Role) string {
	if role == catfeed.RoleAdmin {
		return "/admin-page"
	}
	return "/member-page"
}
