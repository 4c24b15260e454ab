package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// Store keeps rendered HTML on disk. Entries are keyed by slug plus the
// post's last update, so an edited post never hits an old entry even when
// invalidation was missed.
type Store struct {
	dir    string
	maxAge time.Duration
	remove func(string) error
}

func NewStore(dir string, maxAge time.Duration) *Store {
	return &Store{dir: filepath.Join(dir, "blog"), maxAge: maxAge, remove: os.Remove}
}

func (s *Store) Path(slug string, version time.Time) string {
	hash := generateHash(fmt.Sprintf("%s:%d", slug, version.UnixNano()))
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.html", slug, hash[:16]))
}

func generateHash(v string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(v))
}

func (s *Store) Write(slug string, version time.Time, html string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.Path(slug, version), []byte(html), 0644)
}

// Read returns the cached HTML if present and younger than maxAge.
func (s *Store) Read(slug string, version time.Time) (string, bool) {
	path := s.Path(slug, version)

	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if s.maxAge > 0 && time.Since(info.ModTime()) > s.maxAge {
		return "", false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(content), true
}

// Clear removes every version cached for the given slugs.
func (s *Store) Clear(slugs ...string) error {
	for _, slug := range slugs {
		if slug == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(s.dir, slug+"_*.html"))
		if err != nil {
			return err
		}
		for _, match := range matches {
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

func (s *Store) ClearAll() error {
	return os.RemoveAll(s.dir)
}

// ClearOld removes entries older than maxAge. A file that cannot be removed
// does not stop the sweep; its error is reported with the others.
func (s *Store) ClearOld() error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return nil
	}

	var failed []error
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		if time.Since(info.ModTime()) > s.maxAge {
			if err := s.remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", path).Msg("failed to remove cached page")
				failed = append(failed, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(failed...)
}
