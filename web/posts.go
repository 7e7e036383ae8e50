package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/content"
	"github.com/MrEthical07/catfeed/middleware"
	"github.com/MrEthical07/catfeed/upload"
)

const (
	postsPath       = "/posts"
	imageField      = "submission"
	multipartMemory = 1 << 20
)

var postFields = []string{"location_name", "text_post", "number_of_cats", "health_issue"}

func (s *Server) posts(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(w, r, "Posts")
	s.renderPosts(w, r, p)
}

func (s *Server) renderPosts(w http.ResponseWriter, r *http.Request, p *page) {
	locations, err := s.content.Locations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, err := s.content.Posts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p.Locations = locations
	p.Posts = posts

	if p.LoggedIn() && !s.withCSRF(w, r, p) {
		return
	}
	s.views.render(w, r, "posts", p)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.postRejected(w, r, "Image is too large.")
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !s.verifyCSRF(w, r, middleware.LoginPath) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())

	in := content.PostInput{
		Location: r.PostFormValue("location_name"),
		Author:   sess.Username,
		Text:     r.PostFormValue("text_post"),
		Details: content.Details{
			FoodLevel:   content.Level(r.PostFormValue("food_level")),
			WaterLevel:  content.Level(r.PostFormValue("water_level")),
			HealthIssue: r.PostFormValue("health_issue"),
			Critical: content.CriticalItems{
				Letterbox: r.PostFormValue("letterbox") == "true",
				FoodBowl:  r.PostFormValue("food_bowl") == "true",
				WaterBowl: r.PostFormValue("water_bowl") == "true",
			},
		},
	}
	if raw := strings.TrimSpace(r.PostFormValue("number_of_cats")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.postRejected(w, r, "Number of cats must be a whole number.")
			return
		}
		in.CatCount = n
	}

	key, ok := s.saveImage(w, r)
	if !ok {
		return
	}
	in.ImageKey = key

	// A saved image without a post is removed by the upload janitor.
	post, err := s.content.CreatePost(r.Context(), in)
	switch {
	case errors.Is(err, content.ErrLocationUnknown):
		s.postRejected(w, r, "Unknown feeding location.")
		return
	case errors.Is(err, content.ErrInvalidPost):
		s.postRejected(w, r, capitalize(strings.TrimPrefix(err.Error(), content.ErrInvalidPost.Error()+": "))+".")
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	s.engine.NotePostCreated(r.Context(), sess.Username, sess.ID, post.Location)
	s.flashRedirect(w, r, catfeed.Notice{Kind: catfeed.NoticePostCreated}, postsPath)
}

// saveImage stores the optional photo. It reports false after writing a
// response.
func (s *Server) saveImage(w http.ResponseWriter, r *http.Request) (string, bool) {
	file, header, err := r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", true
	}
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return "", false
	}
	defer file.Close()

	key, err := s.uploads.Save(r.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		s.postRejected(w, r, "Image is too large.")
		return "", false
	case errors.Is(err, upload.ErrUnsupportedType):
		s.postRejected(w, r, "Only JPEG, PNG, GIF or WebP images can be posted.")
		return "", false
	case err != nil:
		s.fail(w, r, err)
		return "", false
	}
	return key, true
}

func (s *Server) postRejected(w http.ResponseWriter, r *http.Request, msg string) {
	p := s.newPage(w, r, "Posts")
	p.Error = msg
	for _, f := range postFields {
		p.Form[f] = r.PostFormValue(f)
	}
	s.renderPosts(w, r, p)
}
