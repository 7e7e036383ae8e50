package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/content"
	"github.com/MrEthical07/catfeed/middleware"
	"github.com/MrEthical07/catfeed/upload"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/thejerf/abtime"
	"go.opentelemetry.io/otel/trace"
)

// Options wires a Server to its collaborators. Engine, Content, Accounts
// and Uploads are required.
type Options struct {
	Engine   *catfeed.Engine
	Content  *content.Store
	Accounts catfeed.AccountProvider
	Uploads  upload.Store

	// MaxUploadBytes caps a single image. Default: upload.DefaultConfig().
	MaxUploadBytes int64

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// HTTPMetrics records per-route request metrics when set.
	HTTPMetrics *middleware.HTTPMetrics
	// TracerProvider enables request tracing when set.
	TracerProvider trace.TracerProvider

	Logger zerolog.Logger
	Clock  abtime.AbstractTime
}

// Server holds the HTTP handlers of the catfeed site.
type Server struct {
	engine   *catfeed.Engine
	content  *content.Store
	accounts catfeed.AccountProvider
	uploads  upload.Store

	maxUpload   int64
	metrics     http.Handler
	httpMetrics *middleware.HTTPMetrics
	tracer      trace.TracerProvider

	logger zerolog.Logger
	clock  abtime.AbstractTime
	views  *renderer
}

// New validates opts and parses the embedded templates.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("web: engine required")
	case opts.Content == nil:
		return nil, errors.New("web: content store required")
	case opts.Accounts == nil:
		return nil, errors.New("web: account provider required")
	case opts.Uploads == nil:
		return nil, errors.New("web: upload store required")
	}

	views, err := newRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:      opts.Engine,
		content:     opts.Content,
		accounts:    opts.Accounts,
		uploads:     opts.Uploads,
		maxUpload:   opts.MaxUploadBytes,
		metrics:     opts.MetricsHandler,
		httpMetrics: opts.HTTPMetrics,
		tracer:      opts.TracerProvider,
		logger:      opts.Logger,
		clock:       opts.Clock,
		views:       views,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = upload.DefaultConfig().MaxFileSize
	}
	if s.clock == nil {
		s.clock = abtime.NewRealTime()
	}
	return s, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(chimw.Recoverer)
	if s.tracer != nil {
		r.Use(middleware.Tracing(middleware.WithTracerProvider(s.tracer)))
	}
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Handler)
	}
	r.Use(middleware.ClientContext)

	expired := catfeed.Notice{Kind: catfeed.NoticeSessionExpired}
	expiredRegister := catfeed.Notice{Kind: catfeed.NoticeSessionExpiredRegister}
	expiredReset := catfeed.Notice{Kind: catfeed.NoticeSessionExpiredReset}
	pleaseLogIn := catfeed.Notice{Kind: catfeed.NoticePleaseLogIn}

	// Open pages.
	r.Group(func(r chi.Router) {
		r.Use(middleware.LoadSession(s.engine))
		r.Get("/", s.landing)
		r.Get("/about", s.about)
		r.Get("/posts", s.posts)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, expired))
		r.Get("/login", s.loginForm)
		r.Post("/login", s.login)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, expiredRegister))
		r.Get("/register", s.registerForm)
		r.Post("/register", s.register)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, expiredReset))
		r.Get("/forgot-password", s.forgotPasswordForm)
		r.Post("/submit-email", s.submitEmail)
		r.Get(catfeed.ResetPath, s.resetPasswordForm)
		r.Post(catfeed.ResetPath, s.resetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, expired))
		r.Use(middleware.RequireRole(s.engine, pleaseLogIn, catfeed.RoleMember, catfeed.RoleAdmin))
		r.Get("/member-page", s.memberPage)
		r.Get("/change-profile-details", s.profileForm)
		r.Post("/change-profile-details", s.changeProfile)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, expired))
		r.Use(middleware.RequireRole(s.engine, pleaseLogIn, catfeed.RoleAdmin))
		r.Get("/admin-page", s.adminPage)
		r.Get("/admin-home", s.adminHome)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, expired))
		r.Use(middleware.RequireRole(s.engine, catfeed.Notice{Kind: catfeed.NoticeMustSignInToPost}, catfeed.RoleMember, catfeed.RoleAdmin))
		r.Post("/posts", s.createPost)
	})

	r.Get("/logout", s.logout)
	r.Get("/uploads/{key}", s.serveUpload)
	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.NotFound(s.notFound)
	return r
}

// newPage fills the fields every template needs and takes the pending
// flash notice.
func (s *Server) newPage(w http.ResponseWriter, r *http.Request, title string) *page {
	p := &page{
		Title: title,
		Form:  map[string]string{},
		Now:   s.clock.Now(),
	}
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return p
	}
	p.Session = sess

	n, ok, err := s.engine.TakeFlash(r.Context(), sess.ID)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("catfeed: take flash")
		return p
	}
	if ok {
		p.Flash = n
	}
	return p
}

// withCSRF mints a token for the form on p. It reports false after writing
// a 500 response.
func (s *Server) withCSRF(w http.ResponseWriter, r *http.Request, p *page) bool {
	if p.Session == nil {
		return true
	}
	token, err := s.engine.IssueCSRF(r.Context(), p.Session.ID)
	if err != nil {
		s.fail(w, r, err)
		return false
	}
	p.CSRF = token
	return true
}

// flashRedirect stores n on the session and redirects to target.
func (s *Server) flashRedirect(w http.ResponseWriter, r *http.Request, n catfeed.Notice, target string) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if ok {
		if err := s.engine.SetFlash(r.Context(), sess.ID, n); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// verifyCSRF checks the submitted token. On mismatch it flashes
// NoticeCSRFRejected and redirects to onReject.
func (s *Server) verifyCSRF(w http.ResponseWriter, r *http.Request, onReject string) bool {
	sess, _ := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return false
	}
	ok, err := s.engine.VerifyCSRF(r.Context(), r.PostFormValue(catfeed.CSRFFormField), sess.ID)
	if err != nil {
		s.fail(w, r, err)
		return false
	}
	if !ok {
		s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticeCSRFRejected}, onReject)
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("catfeed: request failed")
	if errors.Is(err, catfeed.ErrSessionNotFound) {
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return
	}
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	p := &page{Title: "Not found", Form: map[string]string{}, Now: s.clock.Now(), Status: http.StatusNotFound}
	s.views.render(w, r, "not_found", p)
}
