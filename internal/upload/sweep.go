package upload

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SweepGrace is how long an unreferenced file is left alone before the
// sweep removes it. It covers the window between writing a new file and
// pointing a row at it.
const SweepGrace = time.Hour

// Sweep removes files under the store root that no database row references.
// referenced holds root-relative paths that must be kept. Files newer than
// the grace window are skipped. It returns the number of files removed.
func (s *Store) Sweep(referenced map[string]bool, grace time.Duration) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-grace)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if referenced[rel] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			slog.Warn("sweep failed to remove orphaned file", "path", rel, "error", err)
			return nil
		}
		removed++
		slog.Info("removed orphaned upload file", "path", rel)
		return nil
	})

	return removed, err
}
