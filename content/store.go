package content

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/thejerf/abtime"
)

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	name         TEXT PRIMARY KEY,
	position     INTEGER NOT NULL,
	food_level   TEXT NOT NULL DEFAULT '',
	water_level  TEXT NOT NULL DEFAULT '',
	cat_number   INTEGER NOT NULL DEFAULT 0,
	health_issue TEXT NOT NULL DEFAULT '',
	letterbox    INTEGER NOT NULL DEFAULT 0,
	food_bowl    INTEGER NOT NULL DEFAULT 0,
	water_bowl   INTEGER NOT NULL DEFAULT 0,
	last_updated INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS posts (
	id           TEXT PRIMARY KEY,
	location     TEXT NOT NULL REFERENCES locations(name),
	author       TEXT NOT NULL,
	text_post    TEXT NOT NULL,
	food_level   TEXT NOT NULL,
	water_level  TEXT NOT NULL,
	cat_number   INTEGER NOT NULL,
	health_issue TEXT NOT NULL,
	letterbox    INTEGER NOT NULL,
	food_bowl    INTEGER NOT NULL,
	water_bowl   INTEGER NOT NULL,
	image_key    TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_created_at ON posts(created_at DESC);
`

type detailsRow struct {
	FoodLevel   string `db:"food_level"`
	WaterLevel  string `db:"water_level"`
	CatNumber   int    `db:"cat_number"`
	HealthIssue string `db:"health_issue"`
	Letterbox   bool   `db:"letterbox"`
	FoodBowl    bool   `db:"food_bowl"`
	WaterBowl   bool   `db:"water_bowl"`
}

func (r detailsRow) details() Details {
	return Details{
		FoodLevel:   Level(r.FoodLevel),
		WaterLevel:  Level(r.WaterLevel),
		CatCount:    r.CatNumber,
		HealthIssue: r.HealthIssue,
		Critical: CriticalItems{
			Letterbox: r.Letterbox,
			FoodBowl:  r.FoodBowl,
			WaterBowl: r.WaterBowl,
		},
	}
}

func rowFromDetails(d Details) detailsRow {
	return detailsRow{
		FoodLevel:   string(d.FoodLevel),
		WaterLevel:  string(d.WaterLevel),
		CatNumber:   d.CatCount,
		HealthIssue: d.HealthIssue,
		Letterbox:   d.Critical.Letterbox,
		FoodBowl:    d.Critical.FoodBowl,
		WaterBowl:   d.Critical.WaterBowl,
	}
}

type locationRow struct {
	Name        string `db:"name"`
	LastUpdated int64  `db:"last_updated"`
	detailsRow
}

type postRow struct {
	ID        string `db:"id"`
	Location  string `db:"location"`
	Author    string `db:"author"`
	Text      string `db:"text_post"`
	ImageKey  string `db:"image_key"`
	CreatedAt int64  `db:"created_at"`
	detailsRow
}

// Store persists locations and posts in SQLite through sqlx.
type Store struct {
	db    *sqlx.DB
	clock abtime.AbstractTime

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open creates the schema if needed and seeds [DefaultLocations]. The caller
// owns db. A nil clock uses wall time.
func Open(ctx context.Context, db *sqlx.DB, clock abtime.AbstractTime) (*Store, error) {
	if db == nil {
		return nil, errors.New("content: nil database")
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	s := &Store{
		db:      db,
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	for i, name := range DefaultLocations {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO locations (name, position) VALUES (?, ?)`, name, i); err != nil {
			return fmt.Errorf("%w: seed %s: %v", ErrUnavailable, name, err)
		}
	}
	return nil
}

// Locations returns every feeding site in display order.
func (s *Store) Locations(ctx context.Context) ([]Location, error) {
	var rows []locationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT name, last_updated, food_level, water_level, cat_number,
		       health_issue, letterbox, food_bowl, water_bowl
		FROM locations ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Location, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.location())
	}
	return out, nil
}

// Location returns one site by exact name.
func (s *Store) Location(ctx context.Context, name string) (Location, error) {
	var r locationRow
	err := s.db.GetContext(ctx, &r, `
		SELECT name, last_updated, food_level, water_level, cat_number,
		       health_issue, letterbox, food_bowl, water_bowl
		FROM locations WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, ErrLocationUnknown
	}
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return r.location(), nil
}

func (r locationRow) location() Location {
	loc := Location{
		Name:    r.Name,
		Details: r.details(),
	}
	if r.LastUpdated > 0 {
		loc.LastUpdated = time.Unix(r.LastUpdated, 0).UTC()
	}
	return loc
}

// Posts returns every post, newest first.
func (s *Store) Posts(ctx context.Context) ([]Post, error) {
	var rows []postRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, location, author, text_post, image_key, created_at,
		       food_level, water_level, cat_number, health_issue,
		       letterbox, food_bowl, water_bowl
		FROM posts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Post, 0, len(rows))
	for _, r := range rows {
		out = append(out, Post{
			ID:        r.ID,
			Location:  r.Location,
			Author:    r.Author,
			Text:      r.Text,
			Details:   r.details(),
			ImageKey:  r.ImageKey,
			CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

// CreatePost inserts a post and copies its details onto the location in a
// single transaction.
func (s *Store) CreatePost(ctx context.Context, in PostInput) (Post, error) {
	if err := in.normalize(); err != nil {
		return Post{}, err
	}

	now := s.clock.Now().UTC()
	id, err := s.newID(now)
	if err != nil {
		return Post{}, err
	}
	row := postRow{
		ID:         id,
		Location:   in.Location,
		Author:     in.Author,
		Text:       in.Text,
		ImageKey:   in.ImageKey,
		CreatedAt:  now.Unix(),
		detailsRow: rowFromDetails(in.Details),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `
		UPDATE locations SET
			food_level = :food_level, water_level = :water_level,
			cat_number = :cat_number, health_issue = :health_issue,
			letterbox = :letterbox, food_bowl = :food_bowl, water_bowl = :water_bowl,
			last_updated = :created_at
		WHERE name = :location`, row)
	if err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	} else if n == 0 {
		return Post{}, ErrLocationUnknown
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO posts (
			id, location, author, text_post, food_level, water_level, cat_number,
			health_issue, letterbox, food_bowl, water_bowl, image_key, created_at
		) VALUES (
			:id, :location, :author, :text_post, :food_level, :water_level, :cat_number,
			:health_issue, :letterbox, :food_bowl, :water_bowl, :image_key, :created_at
		)`, row); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Post{
		ID:        id,
		Location:  in.Location,
		Author:    in.Author,
		Text:      in.Text,
		Details:   in.Details,
		ImageKey:  in.ImageKey,
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
	}, nil
}

// newID draws a monotonic ULID; the entropy source is not goroutine safe.
func (s *Store) newID(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", fmt.Errorf("content: post id: %w", err)
	}
	return id.String(), nil
}

// ImageInUse reports whether any post refers to the upload key.
func (s *Store) ImageInUse(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM posts WHERE image_key = ?`, key); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
