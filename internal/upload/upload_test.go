package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGenerateFilename(t *testing.T) {
	now := time.Date(2026, 8, 28, 13, 45, 9, 0, time.UTC)

	name := GenerateFilename("Alice Müller", "Photo.JPG", now)

	if !strings.HasPrefix(name, "20260828134509_alice-muller_") {
		t.Errorf("unexpected prefix: %s", name)
	}
	if !strings.HasSuffix(name, ".jpg") {
		t.Errorf("extension not lowercased: %s", name)
	}

	pattern := regexp.MustCompile(`^\d{14}_[a-z0-9-]+_[a-zA-Z0-9]{25}\.[a-z0-9]+$`)
	if !pattern.MatchString(name) {
		t.Errorf("filename %q does not match expected shape", name)
	}
}

func TestGenerateFilenameNoExtension(t *testing.T) {
	now := time.Now()
	name := GenerateFilename("Bob", "README", now)
	if strings.Contains(name, ".") {
		t.Errorf("expected no extension, got %s", name)
	}
}

func TestGenerateFilenameEmptyActor(t *testing.T) {
	name := GenerateFilename("", "a.png", time.Now())
	if !strings.Contains(name, "_user_") {
		t.Errorf("empty actor name should fall back to 'user': %s", name)
	}
}

// Same actor, same instant: the random component must keep names unique.
func TestGenerateFilenameUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		name := GenerateFilename("Alice", "photo.jpg", now)
		if seen[name] {
			t.Fatalf("duplicate filename after %d generations: %s", i, name)
		}
		seen[name] = true
	}
}

func TestProcessAndSave(t *testing.T) {
	s := newStore(t)

	saved, err := s.ProcessAndSave(KindArticle, "Alice", "photo.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("ProcessAndSave: %v", err)
	}

	if saved.OriginalName != "photo.png" {
		t.Errorf("OriginalName = %q", saved.OriginalName)
	}
	if saved.MimeType != "image/png" {
		t.Errorf("MimeType = %q", saved.MimeType)
	}
	if !strings.HasPrefix(saved.Path, KindArticle+string(filepath.Separator)) {
		t.Errorf("Path = %q; want under %s/", saved.Path, KindArticle)
	}
	if !s.Exists(saved.Path) {
		t.Error("saved file missing on disk")
	}
}

func TestProcessAndSaveRejectsNonImage(t *testing.T) {
	s := newStore(t)

	_, err := s.ProcessAndSave(KindArticle, "Alice", "evil.png", strings.NewReader("<?php echo 'hi'; ?>"))
	if err == nil {
		t.Fatal("expected validation error for non-image payload")
	}

	// Nothing may be written for a rejected upload
	entries, err := os.ReadDir(filepath.Join(s.Root(), KindArticle))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected upload left %d files behind", len(entries))
	}
}

func TestProcessAndSaveRejectsOversize(t *testing.T) {
	s := newStore(t)

	big := make([]byte, MaxUploadSize+1)
	copy(big, pngBytes(t))

	if _, err := s.ProcessAndSave(KindArticle, "Alice", "big.png", bytes.NewReader(big)); err == nil {
		t.Fatal("expected size error")
	}
}

func TestProcessAndSaveSanitizesTraversal(t *testing.T) {
	s := newStore(t)

	saved, err := s.ProcessAndSave(KindProfile, "Alice", "../../escape.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("ProcessAndSave: %v", err)
	}
	if saved.OriginalName != "escape.png" {
		t.Errorf("OriginalName = %q; directory components must be stripped", saved.OriginalName)
	}
}

func TestRemove(t *testing.T) {
	s := newStore(t)

	saved, err := s.ProcessAndSave(KindArticle, "Alice", "photo.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(saved.Path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Exists(saved.Path) {
		t.Error("file still exists after Remove")
	}

	// Removing an already-missing file must not fail
	if err := s.Remove(saved.Path); err != nil {
		t.Errorf("Remove of missing file: %v", err)
	}
	if err := s.Remove(""); err != nil {
		t.Errorf("Remove of empty path: %v", err)
	}
}

func TestSweep(t *testing.T) {
	s := newStore(t)

	keep, err := s.ProcessAndSave(KindArticle, "Alice", "keep.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatal(err)
	}
	orphan, err := s.ProcessAndSave(KindArticle, "Alice", "orphan.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatal(err)
	}

	// Age the orphan past the grace window
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.Root(), orphan.Path), old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Sweep(map[string]bool{keep.Path: true}, time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d; want 1", removed)
	}
	if !s.Exists(keep.Path) {
		t.Error("referenced file was swept")
	}
	if s.Exists(orphan.Path) {
		t.Error("orphaned file survived sweep")
	}
}

func TestSweepSkipsFreshFiles(t *testing.T) {
	s := newStore(t)

	fresh, err := s.ProcessAndSave(KindProfile, "Bob", "fresh.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatal(err)
	}

	removed, err := s.Sweep(map[string]bool{}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d; want 0", removed)
	}
	if !s.Exists(fresh.Path) {
		t.Error("fresh unreferenced file should survive the grace window")
	}
}
