package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/accounts"
	"github.com/MrEthical07/catfeed/content"
	"github.com/MrEthical07/catfeed/upload"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	csrfInput      = regexp.MustCompile(`name="csrf" value="([^"]+)"`)
	credentialForm = regexp.MustCompile(`^[0-9a-f]{32}:[0-9a-f]{128}$`)
	pngHeader      = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
)

type linkRecorder struct {
	mu    sync.Mutex
	links []string
}

func (l *linkRecorder) SendResetLink(_ context.Context, _ catfeed.Account, link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.links = append(l.links, link)
	return nil
}

func (l *linkRecorder) last(t *testing.T) string {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.links) == 0 {
		t.Fatal("no reset link was sent")
	}
	return l.links[len(l.links)-1]
}

type site struct {
	t        *testing.T
	engine   *catfeed.Engine
	accounts *accounts.SQLiteStore
	content  *content.Store
	uploads  *upload.DiskStore
	links    *linkRecorder
	srv      *httptest.Server
	client   *http.Client
}

func newSite(t *testing.T) *site {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	accountStore, err := accounts.NewSQLiteStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	contentStore, err := content.Open(ctx, db, nil)
	if err != nil {
		t.Fatalf("content.Open failed: %v", err)
	}
	uploads, err := upload.NewDiskStore(t.TempDir(), upload.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	cfg := catfeed.DefaultConfig()
	cfg.PasswordReset.Enabled = true
	cfg.PasswordReset.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	links := &linkRecorder{}
	engine, err := catfeed.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accountStore).
		WithResetNotifier(links).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	srv, err := New(Options{
		Engine:   engine,
		Content:  contentStore,
		Accounts: accountStore,
		Uploads:  uploads,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("web.New failed: %v", err)
	}

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar failed: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &site{
		t:        t,
		engine:   engine,
		accounts: accountStore,
		content:  contentStore,
		uploads:  uploads,
		links:    links,
		srv:      ts,
		client:   client,
	}
}

func (s *site) get(path string) (*http.Response, string) {
	s.t.Helper()
	resp, err := s.client.Get(s.srv.URL + path)
	if err != nil {
		s.t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (s *site) post(path string, form url.Values) (*http.Response, string) {
	s.t.Helper()
	resp, err := s.client.PostForm(s.srv.URL+path, form)
	if err != nil {
		s.t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

// csrf loads a form page and returns the token rendered into it.
func (s *site) csrf(path string) string {
	s.t.Helper()
	resp, body := s.get(path)
	if resp.StatusCode != http.StatusOK {
		s.t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
	}
	m := csrfInput.FindStringSubmatch(body)
	if m == nil {
		s.t.Fatalf("GET %s: no csrf token in page", path)
	}
	return m[1]
}

func (s *site) sessionID() string {
	s.t.Helper()
	u, _ := url.Parse(s.srv.URL)
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == "sessionID" {
			return c.Value
		}
	}
	s.t.Fatal("no session cookie")
	return ""
}

// visit lands on the home page so the client holds a session cookie.
func (s *site) visit() {
	s.t.Helper()
	if resp, _ := s.get("/"); resp.StatusCode != http.StatusOK {
		s.t.Fatalf("GET /: expected 200, got %d", resp.StatusCode)
	}
}

func (s *site) seedAccount(username, email, plaintext string, role catfeed.Role) {
	s.t.Helper()
	_, err := s.engine.CreateAccount(context.Background(), catfeed.RegistrationInput{
		FirstName:      "Test",
		LastName:       "User",
		Email:          email,
		Username:       username,
		Password:       plaintext,
		RepeatPassword: plaintext,
	}, role)
	if err != nil {
		s.t.Fatalf("CreateAccount failed: %v", err)
	}
}

func (s *site) login(username, plaintext string) *http.Response {
	s.t.Helper()
	token := s.csrf("/login")
	resp, _ := s.post("/login", url.Values{"csrf": {token}, "username": {username}, "password": {plaintext}})
	return resp
}

func expectRedirect(t *testing.T, resp *http.Response, target string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != target {
		t.Fatalf("expected redirect to %s, got %s", target, got)
	}
}

func registrationForm(token, username string) url.Values {
	return url.Values{
		"csrf":            {token},
		"firstname":       {"Mia"},
		"lastname":        {"Tabby"},
		"email":           {"mia@cats.org"},
		"username":        {username},
		"password":        {"Purr!2024"},
		"repeat_password": {"Purr!2024"},
	}
}

func TestRegisterRejectsShortUsername(t *testing.T) {
	s := newSite(t)
	s.visit()

	token := s.csrf("/register")
	resp, body := s.post("/register", registrationForm(token, "ab"))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected form re-render, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Username Requirements") {
		t.Fatalf("expected username policy message, got:\n%s", body)
	}
	if !strings.Contains(body, `value="mia@cats.org"`) {
		t.Fatal("expected submitted email to be kept")
	}
	if n, err := s.accounts.Count(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected no account, got %d (err=%v)", n, err)
	}
}

func TestRegisterCreatesMember(t *testing.T) {
	s := newSite(t)
	s.visit()

	token := s.csrf("/register")
	resp, _ := s.post("/register", registrationForm(token, "mia_tabby"))
	expectRedirect(t, resp, "/login")

	account, err := s.accounts.FindByUsername(context.Background(), "mia_tabby")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if account.Role != catfeed.RoleMember {
		t.Fatalf("expected member role, got %q", account.Role)
	}
	if !credentialForm.MatchString(account.Credential) {
		t.Fatalf("unexpected credential format %q", account.Credential)
	}

	_, body := s.get("/login")
	if !strings.Contains(body, "Account has been successfully registered! Please log in.") {
		t.Fatalf("expected registration notice, got:\n%s", body)
	}
}

func TestLoginWrongPasswordKeepsPublicRole(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()

	expectRedirect(t, s.login("alice_member", "Wrong!2024"), "/login")

	sess, err := s.engine.GetSession(context.Background(), s.sessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.Role != catfeed.RolePublicViewer || sess.Username != "" {
		t.Fatalf("expected public session, got role=%q user=%q", sess.Role, sess.Username)
	}

	_, body := s.get("/login")
	if !strings.Contains(body, "Incorrect username or password.") {
		t.Fatalf("expected credential notice, got:\n%s", body)
	}
}

func TestLoginUnreadableCredentialLooksLikeWrongPassword(t *testing.T) {
	s := newSite(t)
	err := s.accounts.Create(context.Background(), catfeed.Account{
		Username:   "broken_cat",
		Email:      "broken@cats.org",
		FirstName:  "Broken",
		LastName:   "Cat",
		Credential: "not-a-pair",
		Role:       catfeed.RoleMember,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	s.visit()

	expectRedirect(t, s.login("broken_cat", "Meow!2024"), "/login")

	sess, err := s.engine.GetSession(context.Background(), s.sessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.Role != catfeed.RolePublicViewer || sess.Username != "" {
		t.Fatalf("expected public session, got role=%q user=%q", sess.Role, sess.Username)
	}

	_, body := s.get("/login")
	if !strings.Contains(body, "Incorrect username or password.") {
		t.Fatalf("expected credential notice, got:\n%s", body)
	}
}

func TestLoginTokenMismatchClearsToken(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()

	_ = s.csrf("/login")
	resp, _ := s.post("/login", url.Values{"csrf": {"forged"}, "username": {"alice_member"}, "password": {"Meow!2024"}})
	expectRedirect(t, resp, "/login")

	sess, err := s.engine.GetSession(context.Background(), s.sessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.CSRFToken != "" {
		t.Fatal("expected token to be cleared after a mismatch")
	}
	if sess.Role != catfeed.RolePublicViewer {
		t.Fatalf("expected role unchanged, got %q", sess.Role)
	}

	_, body := s.get("/login")
	if !strings.Contains(body, "CSRF token mismatch, approval process rejected") {
		t.Fatalf("expected csrf notice, got:\n%s", body)
	}
}

func TestLoginSuccessPromotesSession(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()

	expectRedirect(t, s.login("alice_member", "Meow!2024"), "/member-page")

	sess, err := s.engine.GetSession(context.Background(), s.sessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.Role != catfeed.RoleMember || sess.Username != "alice_member" {
		t.Fatalf("expected member session, got role=%q user=%q", sess.Role, sess.Username)
	}
	if sess.CSRFToken != "" {
		t.Fatal("expected token to be cancelled after login")
	}

	resp, body := s.get("/member-page")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected member page, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Welcome Back alice_member!") {
		t.Fatalf("expected welcome notice, got:\n%s", body)
	}
	if _, again := s.get("/member-page"); strings.Contains(again, "Welcome Back") {
		t.Fatal("welcome notice must be shown once")
	}
}

func TestAdminLoginLandsOnAdminPage(t *testing.T) {
	s := newSite(t)
	s.seedAccount("boss_admin", "boss@cats.org", "Meow!2024", catfeed.RoleAdmin)
	s.visit()

	expectRedirect(t, s.login("boss_admin", "Meow!2024"), "/admin-page")
	if resp, _ := s.get("/admin-home"); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected admin home, got %d", resp.StatusCode)
	}
}

func TestMemberCannotOpenAdminPage(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()
	s.login("alice_member", "Meow!2024")

	resp, _ := s.get("/admin-page")
	expectRedirect(t, resp, "/login")

	_, body := s.get("/login")
	if !strings.Contains(body, "Please log in to your account.") {
		t.Fatalf("expected please-log-in notice, got:\n%s", body)
	}
}

func TestExpiredSessionOnRegisterRedirects(t *testing.T) {
	s := newSite(t)

	resp, _ := s.get("/register")
	expectRedirect(t, resp, "/login")

	_, body := s.get("/login")
	if !strings.Contains(body, "Session expired, Please register again.") {
		t.Fatalf("expected register expiry notice, got:\n%s", body)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()
	s.login("alice_member", "Meow!2024")
	sid := s.sessionID()

	resp, body := s.get("/logout")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Logged out") {
		t.Fatalf("expected logout page, got %d", resp.StatusCode)
	}
	if _, err := s.engine.GetSession(context.Background(), sid); !errors.Is(err, catfeed.ErrSessionNotFound) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
}

func TestPublicViewerCannotPost(t *testing.T) {
	s := newSite(t)
	s.visit()

	resp, _ := s.post("/posts", url.Values{"location_name": {"Karama"}, "text_post": {"hi"}})
	expectRedirect(t, resp, "/login")

	_, body := s.get("/login")
	if !strings.Contains(body, "You must be signed in to be able to post.") {
		t.Fatalf("expected sign-in notice, got:\n%s", body)
	}
}

func TestMemberPostsWithImage(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()
	s.login("alice_member", "Meow!2024")

	token := s.csrf("/posts")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"csrf":           token,
		"location_name":  "Karama",
		"text_post":      "Bowls refilled",
		"food_level":     "high",
		"water_level":    "medium",
		"number_of_cats": "4",
		"letterbox":      "true",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("submission", "karama.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	_, _ = fw.Write(pngHeader)
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, s.srv.URL+"/posts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("POST /posts failed: %v", err)
	}
	resp.Body.Close()
	expectRedirect(t, resp, "/posts")

	posts, err := s.content.Posts(context.Background())
	if err != nil || len(posts) != 1 {
		t.Fatalf("expected one post, got %d (err=%v)", len(posts), err)
	}
	post := posts[0]
	if post.Author != "alice_member" || post.CatCount != 4 || post.FoodLevel != content.LevelHigh || !post.Critical.Letterbox {
		t.Fatalf("unexpected post %+v", post)
	}
	if !strings.HasSuffix(post.ImageKey, "_karama.png") {
		t.Fatalf("unexpected image key %q", post.ImageKey)
	}

	_, body := s.get("/posts")
	if !strings.Contains(body, "Your update has been posted.") || !strings.Contains(body, "Bowls refilled") {
		t.Fatalf("expected post and notice on page, got:\n%s", body)
	}

	imgResp, img := s.get("/uploads/" + post.ImageKey)
	if imgResp.StatusCode != http.StatusOK || imgResp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %q", imgResp.StatusCode, imgResp.Header.Get("Content-Type"))
	}
	if img != string(pngHeader) {
		t.Fatal("served image differs from upload")
	}

	loc, err := s.content.Location(context.Background(), "Karama")
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc.CatCount != 4 || loc.LastUpdated.IsZero() {
		t.Fatalf("expected location details to follow the post, got %+v", loc)
	}
}

func TestPostUnknownLocationReRenders(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()
	s.login("alice_member", "Meow!2024")

	token := s.csrf("/posts")
	resp, body := s.post("/posts", url.Values{
		"csrf":          {token},
		"location_name": {"Atlantis"},
		"text_post":     {"Anyone here?"},
	})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Unknown feeding location.") {
		t.Fatalf("expected re-render with error, got %d", resp.StatusCode)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()

	token := s.csrf("/forgot-password")
	resp, _ := s.post("/submit-email", url.Values{"csrf": {token}, "email": {"alice@cats.org"}})
	expectRedirect(t, resp, "/forgot-password")

	link, err := url.Parse(s.links.last(t))
	if err != nil {
		t.Fatalf("parse link failed: %v", err)
	}
	key := link.Query().Get("key")

	token = s.csrf(catfeed.ResetPath + "?key=" + url.QueryEscape(key))
	resp, _ = s.post(catfeed.ResetPath, url.Values{
		"csrf":            {token},
		"key":             {key},
		"password":        {"Fresh!2025"},
		"repeat_password": {"Fresh!2025"},
	})
	expectRedirect(t, resp, "/login")

	expectRedirect(t, s.login("alice_member", "Fresh!2025"), "/member-page")

	resp, _ = s.get(catfeed.ResetPath + "?key=" + url.QueryEscape(key))
	expectRedirect(t, resp, "/forgot-password")
}

func TestSubmitUnknownEmail(t *testing.T) {
	s := newSite(t)
	s.visit()

	token := s.csrf("/forgot-password")
	resp, _ := s.post("/submit-email", url.Values{"csrf": {token}, "email": {"nobody@cats.org"}})
	expectRedirect(t, resp, "/forgot-password")

	_, body := s.get("/forgot-password")
	if !strings.Contains(body, "Email does not exist, Please check and try again.") {
		t.Fatalf("expected unknown email notice, got:\n%s", body)
	}
}

func TestChangeProfileRenamesSession(t *testing.T) {
	s := newSite(t)
	s.seedAccount("alice_member", "alice@cats.org", "Meow!2024", catfeed.RoleMember)
	s.visit()
	s.login("alice_member", "Meow!2024")
	s.get("/member-page")

	token := s.csrf("/change-profile-details")
	resp, _ := s.post("/change-profile-details", url.Values{"csrf": {token}, "username": {"alice_renamed"}})
	expectRedirect(t, resp, "/member-page")

	sess, err := s.engine.GetSession(context.Background(), s.sessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.Username != "alice_renamed" {
		t.Fatalf("expected renamed session, got %q", sess.Username)
	}
	if _, body := s.get("/member-page"); !strings.Contains(body, "Profile details updated.") {
		t.Fatal("expected profile notice")
	}
}

func TestHealthzAndNotFound(t *testing.T) {
	s := newSite(t)

	resp, body := s.get("/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("unexpected health response %d: %s", resp.StatusCode, body)
	}

	resp, _ = s.get("/no-such-page")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = s.get("/uploads/not-a-key")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for bad upload key, got %d", resp.StatusCode)
	}
}

func TestAgo(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		since time.Duration
		want  string
	}{
		{30 * time.Second, "30 sec"},
		{5 * time.Minute, "5 min"},
		{3 * time.Hour, "3 hr"},
		{-time.Minute, "0 sec"},
	}
	for _, tc := range cases {
		if got := ago(now, now.Add(-tc.since)); got != tc.want {
			t.Fatalf("ago(%v) = %q, want %q", tc.since, got, tc.want)
		}
	}
	if got := ago(now, time.Time{}); got != "never" {
		t.Fatalf("zero time: got %q", got)
	}
}
