// Package blob persists raw captured images on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FS stores images under <root>/<YYYYMMDD>/<device_id>/<frame_id>.jpg.
type FS struct {
	root string
	now  func() time.Time
}

// NewFS creates a filesystem blob store rooted at root. now may be nil.
func NewFS(root string, now func() time.Time) *FS {
	if now == nil {
		now = time.Now
	}
	return &FS{root: root, now: now}
}

// Pending is an image written to a temporary file next to its final path.
// Nothing is visible at Ref until Commit.
type Pending struct {
	ref  string
	tmp  string
	done bool
}

// Ref is the path the image will have once committed.
func (p *Pending) Ref() string {
	return p.ref
}

// Commit moves the image into place, replacing any file at Ref.
func (p *Pending) Commit() error {
	if p.done {
		return nil
	}
	if err := os.Rename(p.tmp, p.ref); err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	p.done = true
	return nil
}

// Discard removes an uncommitted image. It is a no-op after Commit.
func (p *Pending) Discard() {
	if p.done {
		return
	}
	os.Remove(p.tmp)
	p.done = true
}

// Stage writes data to a temporary file. The caller must Commit or Discard
// the returned Pending.
func (s *FS) Stage(ctx context.Context, deviceID, frameID string, data []byte) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := ValidComponent(deviceID); err != nil {
		return nil, fmt.Errorf("store image: device_id: %w", err)
	}
	if err := ValidComponent(frameID); err != nil {
		return nil, fmt.Errorf("store image: frame_id: %w", err)
	}
	device := strings.TrimSpace(deviceID)
	frame := strings.TrimSpace(frameID)

	day := s.now().UTC().Format("20060102")
	dir := filepath.Join(s.root, day, device)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+frame+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("store image: %w", err)
	}
	return &Pending{ref: filepath.Join(dir, frame+".jpg"), tmp: f.Name()}, nil
}

// ValidComponent reports whether id can name a file inside its directory.
func ValidComponent(id string) error {
	id = strings.TrimSpace(id)
	switch {
	case id == "", id == ".", id == "..":
		return errors.New("invalid path component")
	case strings.ContainsAny(id, `/\`), strings.ContainsRune(id, 0):
		return fmt.Errorf("%q contains a path separator", id)
	}
	return nil
}
