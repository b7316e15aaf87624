// Package upload stores uploaded images on disk and implements the
// write-then-point replacement workflow: a new file is fully written before
// any database row points at it, and the file it replaces is deleted only
// afterwards, best effort.
package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/penlight/penlight/internal/imaging"
	"github.com/penlight/penlight/internal/util"
)

// Upload kinds name the subdirectory a file lands in.
const (
	KindArticle = "articles"
	KindProfile = "profiles"
)

// MaxUploadSize caps uploaded image size at 10 MiB.
const MaxUploadSize = 10 << 20

// ErrTooLarge is returned for uploads over MaxUploadSize.
var ErrTooLarge = fmt.Errorf("upload exceeds maximum size of %d bytes", MaxUploadSize)

// SavedFile describes a stored upload.
type SavedFile struct {
	// Path is the root-relative stored path, e.g. "articles/2026..._alice_x.jpg".
	Path string
	// OriginalName is the sanitized client filename.
	OriginalName string
	MimeType     string
	Size         int64
}

// Store writes and removes upload files under a root directory.
type Store struct {
	root string
}

// NewStore creates the upload root and its kind subdirectories.
func NewStore(root string) (*Store, error) {
	for _, kind := range []string{KindArticle, KindProfile} {
		if err := os.MkdirAll(filepath.Join(root, kind), 0o755); err != nil {
			return nil, fmt.Errorf("creating upload directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the upload root directory.
func (s *Store) Root() string {
	return s.root
}

// ProcessAndSave validates an uploaded image and writes it under a generated
// name. Nothing is written when validation fails; a failed write leaves no
// database-visible state behind, so callers can abort their update cleanly.
func (s *Store) ProcessAndSave(kind, actorName, originalName string, r io.Reader) (*SavedFile, error) {
	safeName, err := util.SanitizeFilename(originalName)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}

	mimeType, err := imaging.Validate(data)
	if err != nil {
		return nil, err
	}

	data, err = imaging.NormalizeOrientation(data)
	if err != nil {
		return nil, fmt.Errorf("normalizing orientation: %w", err)
	}

	filename := GenerateFilename(actorName, safeName, time.Now())
	relPath := filepath.Join(kind, filename)

	fullPath, err := util.SafeJoinPath(s.root, relPath)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	return &SavedFile{
		Path:         relPath,
		OriginalName: safeName,
		MimeType:     mimeType,
		Size:         int64(len(data)),
	}, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Store) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}

	fullPath, err := util.SafeJoinPath(s.root, relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing upload: %w", err)
	}
	return nil
}

// RemoveQuietly deletes a stored file best effort. Failures are logged and
// swallowed; replacement and delete flows never fail on old-file cleanup.
func (s *Store) RemoveQuietly(relPath string) {
	if err := s.Remove(relPath); err != nil {
		slog.Warn("failed to remove upload file", "path", relPath, "error", err)
	}
}

// Exists reports whether a stored file is present on disk.
func (s *Store) Exists(relPath string) bool {
	fullPath, err := util.SafeJoinPath(s.root, relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}
