// Package storage keeps uploaded book covers on an afero filesystem.
package storage

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// PublicPrefix is the URL prefix under which covers are served.
	PublicPrefix = "/uploads/"
	coverDir     = "/books"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CoverStore saves covers under <root>/books and hands out references of the
// form /uploads/books/<name>.
type CoverStore struct {
	fs  afero.Fs
	now func() time.Time
}

// NewCoverStore roots a store at dir on the OS filesystem.
func NewCoverStore(dir string) (*CoverStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return NewCoverStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewCoverStoreFs uses fs as the upload root.
func NewCoverStoreFs(fs afero.Fs) *CoverStore {
	return &CoverStore{fs: fs, now: time.Now}
}

// Save writes r under a fresh name carrying a random id and returns its
// public reference. An existing file is never overwritten.
func (s *CoverStore) Save(filename string, r io.Reader) (string, error) {
	if err := s.fs.MkdirAll(coverDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cover dir: %w", err)
	}

	name := strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + uuid.NewString() + "-" + sanitize(filename)
	f, err := s.fs.OpenFile(path.Join(coverDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create cover file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		s.fs.Remove(path.Join(coverDir, name))
		return "", fmt.Errorf("failed to write cover file: %w", err)
	}
	return strings.TrimSuffix(PublicPrefix, "/") + coverDir + "/" + name, nil
}

// Delete removes the file behind a reference returned by Save. Unknown or
// already removed references are ignored.
func (s *CoverStore) Delete(ref string) error {
	rel, ok := s.resolve(ref)
	if !ok {
		return nil
	}
	if err := s.fs.Remove(rel); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cover %s: %w", ref, err)
	}
	return nil
}

// Exists reports whether the file behind ref is present.
func (s *CoverStore) Exists(ref string) bool {
	rel, ok := s.resolve(ref)
	if !ok {
		return false
	}
	ok, err := afero.Exists(s.fs, rel)
	return err == nil && ok
}

// Handler serves stored files read-only. Mount it with the PublicPrefix
// stripped.
func (s *CoverStore) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(afero.NewReadOnlyFs(s.fs)).Dir("/"))
}

func (s *CoverStore) resolve(ref string) (string, bool) {
	rel, ok := strings.CutPrefix(ref, strings.TrimSuffix(PublicPrefix, "/")+coverDir+"/")
	if !ok || rel == "" || strings.Contains(rel, "/") || strings.Contains(rel, "..") {
		return "", false
	}
	return path.Join(coverDir, rel), true
}

func sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "cover"
	}
	return base
}
