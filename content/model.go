package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrLocationUnknown is returned for a location outside the seeded set.
	ErrLocationUnknown = errors.New("unknown feeding location")
	// ErrInvalidPost is returned for a post with missing or malformed fields.
	ErrInvalidPost = errors.New("invalid post")
	// ErrUnavailable wraps database failures.
	ErrUnavailable = errors.New("content store unavailable")
)

// Level is a coarse supply level reported for food or water.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel accepts the three level names in any case. The empty string
// parses as the zero Level, meaning "not reported".
func ParseLevel(raw string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(raw))); l {
	case "", LevelLow, LevelMedium, LevelHigh:
		return l, nil
	default:
		return "", errors.New("level must be low, medium or high")
	}
}

// CriticalItems flags the fixtures a volunteer found missing or broken.
type CriticalItems struct {
	Letterbox bool
	FoodBowl  bool
	WaterBowl bool
}

// Details is the status reported for a location.
type Details struct {
	FoodLevel   Level
	WaterLevel  Level
	CatCount    int
	HealthIssue string
	Critical    CriticalItems
}

// Location is a fixed feeding site with its most recently reported details.
// LastUpdated is zero until the first post.
type Location struct {
	Name string
	Details
	LastUpdated time.Time
}

// Post is one status report.
type Post struct {
	ID       string
	Location string
	Author   string
	Text     string
	Details
	ImageKey  string
	CreatedAt time.Time
}

// PostInput is a post as submitted, before an ID and timestamp are assigned.
type PostInput struct {
	Location string
	Author   string
	Text     string
	Details
	ImageKey string
}

// DefaultLocations is the seeded set of feeding sites, in display order.
var DefaultLocations = []string{
	"Rochester",
	"Waterloo",
	"Al Wahda",
	"Al Barsha",
	"Karama",
	"Jumeirah",
}

func (in *PostInput) normalize() error {
	in.Location = strings.TrimSpace(in.Location)
	in.Author = strings.TrimSpace(in.Author)
	in.Text = strings.TrimSpace(in.Text)
	in.HealthIssue = strings.TrimSpace(in.HealthIssue)

	switch {
	case in.Location == "":
		return fmt.Errorf("%w: location is required", ErrInvalidPost)
	case in.Author == "":
		return fmt.Errorf("%w: author is required", ErrInvalidPost)
	case in.Text == "":
		return fmt.Errorf("%w: post text is required", ErrInvalidPost)
	case in.CatCount < 0:
		return fmt.Errorf("%w: number of cats cannot be negative", ErrInvalidPost)
	}

	var err error
	if in.FoodLevel, err = ParseLevel(string(in.FoodLevel)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}
	if in.WaterLevel, err = ParseLevel(string(in.WaterLevel)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}
	return nil
}
