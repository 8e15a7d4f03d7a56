package qrtoken

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skip2/go-qrcode"
)

// DefaultImageSize is the PNG edge length in pixels.
const DefaultImageSize = 256

// ArtifactStore persists rendered QR images keyed by subject code. Saving a new
// artifact supersedes any older one for the same code.
type ArtifactStore interface {
	Save(ctx context.Context, tok Token, png []byte) (location string, err error)
	// Remove deletes every artifact for subjectCode. Missing artifacts are not
	// an error.
	Remove(ctx context.Context, subjectCode string) error
}

// Render encodes the token payload into a PNG.
func (c *Codec) Render(tok Token, size int) ([]byte, error) {
	payload, err := c.Encode(tok)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrtoken: render: %w", err)
	}
	return png, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeCode maps a subject code to a string usable in file names and public ids.
func SafeCode(code string) string {
	return unsafeChars.ReplaceAllString(code, "_")
}

// DirStore writes artifacts to a local directory as <code>-<signature>.png.
type DirStore struct {
	Dir string
}

// NewDirStore creates the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("qrtoken: artifact dir: %w", err)
	}
	return &DirStore{Dir: dir}, nil
}

// Save writes the new image then removes stale images for the same code.
func (s *DirStore) Save(_ context.Context, tok Token, png []byte) (string, error) {
	code := SafeCode(tok.SubjectCode)
	name := code + "-" + tok.Signature + ".png"
	path := filepath.Join(s.Dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return "", fmt.Errorf("qrtoken: write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("qrtoken: write artifact: %w", err)
	}

	if _, err := s.removeStale(code, name); err != nil {
		return path, err
	}
	return path, nil
}

func (s *DirStore) removeStale(code, keep string) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, fmt.Errorf("qrtoken: list artifacts: %w", err)
	}
	removed := 0
	prefix := code + "-"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == keep || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".png") {
			continue
		}
		// "<code>-<8 hex>.png" only, so code "A" never removes "A-B-xxxx.png"
		if len(name) != len(prefix)+signatureLen+len(".png") {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("qrtoken: remove stale artifact: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Remove implements ArtifactStore.
func (s *DirStore) Remove(_ context.Context, subjectCode string) error {
	_, err := s.removeStale(SafeCode(subjectCode), "")
	return err
}
