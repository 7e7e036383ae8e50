package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrNotFound is returned by Open for an unknown or malformed key.
var ErrNotFound = errors.New("upload: file not found")

// ErrUnsupportedType is returned when the sniffed content type is not allowed.
var ErrUnsupportedType = errors.New("upload: unsupported file type")

// Store is the interface for post image storage backends.
type Store interface {
	// Save stores the file and returns its key, "<ulid>_<sanitized name>".
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (key string, err error)

	// Open returns a reader for a stored file. The caller closes it.
	Open(ctx context.Context, key string) (*File, error)

	// Cleanup removes files older than maxAge for which keep returns false,
	// and reports how many were removed.
	Cleanup(ctx context.Context, maxAge time.Duration, keep func(key string) bool) (int, error)
}

// File is an opened upload.
type File struct {
	Key         string
	ContentType string
	Size        int64
	ModTime     time.Time
	Reader      io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// Config holds limits shared by every Store.
type Config struct {
	// MaxFileSize is the maximum allowed file size in bytes.
	// Default: 5MB.
	MaxFileSize int64

	// AllowedTypes lists sniffed MIME types accepted by Save.
	// If empty, all types are allowed.
	AllowedTypes []string
}

// DefaultConfig accepts common web image formats up to 5MB.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:  5 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}
}

// readLimited buffers r, failing with ErrTooLarge past max bytes, and checks
// the sniffed type against cfg.AllowedTypes.
func readLimited(cfg Config, size int64, r io.Reader) ([]byte, string, error) {
	if cfg.MaxFileSize > 0 && size > cfg.MaxFileSize {
		return nil, "", ErrTooLarge
	}

	var buf bytes.Buffer
	reader := r
	if cfg.MaxFileSize > 0 {
		reader = io.LimitReader(r, cfg.MaxFileSize+1) // +1 to detect overflow
	}
	n, err := io.Copy(&buf, reader)
	if err != nil {
		return nil, "", fmt.Errorf("upload: read: %w", err)
	}
	if cfg.MaxFileSize > 0 && n > cfg.MaxFileSize {
		return nil, "", ErrTooLarge
	}

	sniffed := http.DetectContentType(buf.Bytes())
	if len(cfg.AllowedTypes) > 0 && !typeAllowed(cfg.AllowedTypes, sniffed) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, sniffed)
	}
	return buf.Bytes(), sniffed, nil
}

func typeAllowed(allowed []string, contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	for _, a := range allowed {
		if strings.EqualFold(a, strings.TrimSpace(mediaType)) {
			return true
		}
	}
	return false
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewKey builds "<ulid>_<sanitized filename>" for a file saved at now.
func NewKey(filename string, now time.Time) (string, error) {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("upload: key: %w", err)
	}
	return id.String() + "_" + SanitizeFilename(filename), nil
}

const maxNameLength = 64

// SanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '_'.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxNameLength {
		out = out[len(out)-maxNameLength:]
	}
	out = strings.TrimLeft(out, ".")
	if out == "" || out == "_" {
		return "upload"
	}
	return out
}

// ValidKey reports whether key has the shape produced by NewKey. Open
// rejects anything else, so keys never escape the store root.
func ValidKey(key string) bool {
	id, name, ok := strings.Cut(key, "_")
	if !ok || name == "" || len(name) > maxNameLength {
		return false
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return false
	}
	return SanitizeFilename(name) == name
}

// KeyTime returns the time encoded in a key's ULID.
func KeyTime(key string) (time.Time, bool) {
	id, _, ok := strings.Cut(key, "_")
	if !ok {
		return time.Time{}, false
	}
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
