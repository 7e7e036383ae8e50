package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/content"
	"github.com/MrEthical07/catfeed/session"
	"github.com/rs/zerolog/hlog"
)

//go:embed templates/*.html
var templateFS embed.FS

// page is the data every template receives.
type page struct {
	Title     string
	Session   *session.Session
	Flash     catfeed.Notice
	CSRF      string
	CSRFField string
	Error     string
	Form      map[string]string
	Now       time.Time

	Locations []content.Location
	Posts     []content.Post
	Account   catfeed.Account
	ResetKey  string
	Status    int
}

// Member reports whether the visitor is logged in as a member.
func (p *page) Member() bool { return p.Session != nil && p.Session.Role == catfeed.RoleMember }

// Admin reports whether the visitor is logged in as an admin.
func (p *page) Admin() bool { return p.Session != nil && p.Session.Role == catfeed.RoleAdmin }

// LoggedIn reports whether the visitor holds an account role.
func (p *page) LoggedIn() bool { return p.Session != nil && p.Session.Role.Authenticated() }

type renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"ago":        ago,
	"capitalize": capitalize,
	"levels":     func() []content.Level { return []content.Level{content.LevelLow, content.LevelMedium, content.LevelHigh} },
}

// newRenderer parses every page together with layout.html.
func newRenderer() (*renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &renderer{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		base := strings.TrimSuffix(path.Base(name), ".html")
		if base == "layout" {
			continue
		}
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[base] = t
	}
	return r, nil
}

// render writes the named page. The page is executed into a buffer first so
// a template error never leaves a half-written 200.
func (rd *renderer) render(w http.ResponseWriter, r *http.Request, name string, data *page) {
	t, ok := rd.pages[name]
	if !ok {
		hlog.FromRequest(r).Error().Str("page", name).Msg("catfeed: unknown template")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if data.CSRFField == "" {
		data.CSRFField = catfeed.CSRFFormField
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("page", name).Msg("catfeed: render")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	status := data.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// ago formats the time since t as whole seconds, minutes or hours.
func ago(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d sec", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d/time.Minute))
	default:
		return fmt.Sprintf("%d hr", int(d/time.Hour))
	}
}

func capitalize(v any) string {
	s := fmt.Sprint(v)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
