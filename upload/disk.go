package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thejerf/abtime"
)

const tempPrefix = ".tmp-"

// DiskStore stores uploads as files in a single directory.
type DiskStore struct {
	dir   string
	cfg   Config
	clock abtime.AbstractTime
}

// NewDiskStore creates dir if needed. A nil clock uses wall time.
func NewDiskStore(dir string, cfg Config, clock abtime.AbstractTime) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("upload: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &DiskStore{
		dir:   dir,
		cfg:   cfg,
		clock: clock,
	}, nil
}

// Dir returns the directory files are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Save writes the file under a fresh key. The write goes to a temp file
// first so a reader never sees a partial image.
func (s *DiskStore) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	data, _, err := readLimited(s.cfg, size, r)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := NewKey(filename, s.clock.Now())
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("upload: create: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("upload: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("upload: write: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, key)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("upload: rename: %w", err)
	}
	return key, nil
}

// Open returns the stored file for key.
func (s *DiskStore) Open(_ context.Context, key string) (*File, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("upload: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("upload: stat: %w", err)
	}

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("upload: seek: %w", err)
	}

	return &File{
		Key:         key,
		ContentType: http.DetectContentType(head[:n]),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Reader:      f,
	}, nil
}

// Cleanup removes keyed files and abandoned temp files older than maxAge.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration, keep func(key string) bool) (int, error) {
	cutoff := s.clock.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		isTemp := strings.HasPrefix(name, tempPrefix)
		if !isTemp && !ValidKey(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if !isTemp && keep != nil && keep(name) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
