package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FSStore implements the artifact store on a local directory. It is intended
// for development and single-node deployments; SignedURL is unsupported.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed artifact store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// resolve maps a ref onto a path under the root, rejecting escapes.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("artifact ref is required")
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact ref escapes store root: %s", ref)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *FSStore) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("open artifact %s: %w", ref, err)
	}
	return f, nil
}

// Put writes the body to a temp file in the target directory and renames it
// into place so readers never observe a partial artifact.
func (s *FSStore) Put(ctx context.Context, ref string, body io.Reader, contentType string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return fmt.Errorf("create artifact temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact %s: %w", ref, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize artifact %s: %w", ref, err)
	}
	return nil
}

func (s *FSStore) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact %s: %w", ref, err)
	}
	return nil
}

func (s *FSStore) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat artifact %s: %w", ref, err)
	}
	return true, nil
}

// SignedURL is unsupported for the filesystem backend; callers fall back to
// streaming the artifact through the API.
func (s *FSStore) SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	return "", nil
}
