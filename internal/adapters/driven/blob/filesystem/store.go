// Package filesystem stores uploaded documents as files under a root
// directory, one subdirectory per user, and watches it for new uploads.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// contentTypeSuffix names the hidden sidecar holding a declared content type.
const contentTypeSuffix = ".content-type"

// Store is a driven.BlobStore over a local directory tree.
// Writes go to a hidden temp file first and are renamed into place,
// so readers and the watcher never see a partial object.
type Store struct {
	root string
}

// New creates a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: blob root is required", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Head returns object metadata.
func (s *Store) Head(_ context.Context, key domain.DocumentKey) (*driven.BlobInfo, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && st.IsDir()) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &driven.BlobInfo{
		Key:         key,
		Size:        st.Size(),
		ContentType: readContentType(p),
		ModTime:     st.ModTime(),
	}, nil
}

// Get returns the object bytes.
func (s *Store) Get(ctx context.Context, key domain.DocumentKey) ([]byte, *driven.BlobInfo, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	p, _ := s.path(key)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", key, err)
	}
	info.Size = int64(len(data))
	return data, info, nil
}

// Put writes an object atomically, replacing any existing one.
func (s *Store) Put(ctx context.Context, key domain.DocumentKey, data []byte, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	sidecar := sidecarPath(p)
	if contentType != "" {
		if err := writeAtomic(sidecar, []byte(contentType)); err != nil {
			return fmt.Errorf("write content type for %s: %w", key, err)
		}
	} else if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear content type for %s: %w", key, err)
	}

	if err := writeAtomic(p, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes an object and its sidecar.
func (s *Store) Delete(_ context.Context, key domain.DocumentKey) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	for _, f := range []string{p, sidecarPath(p)} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// path maps a key onto the filesystem, refusing keys that escape the root.
func (s *Store) path(key domain.DocumentKey) (string, error) {
	parsed, _, err := domain.ParseDocumentKey(string(key))
	if err != nil {
		return "", err
	}
	clean := path.Clean("/" + string(parsed))
	if clean != "/"+string(parsed) || isHidden(clean) {
		return "", domain.NewValidationError(domain.ErrInvalidDocumentKey, "%q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// keyFor maps a file path under the root back to its document key.
func (s *Store) keyFor(p string) (domain.DocumentKey, bool) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if isHidden(rel) {
		return "", false
	}
	key, _, err := domain.ParseDocumentKey(rel)
	if err != nil {
		return "", false
	}
	return key, true
}

func sidecarPath(p string) string {
	return filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+contentTypeSuffix)
}

func readContentType(p string) string {
	b, err := os.ReadFile(sidecarPath(p))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func writeAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// isHidden reports whether any element of a slash path starts with a dot.
// "." and ".." are not considered hidden.
func isHidden(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}

// List returns the keys of every stored object for a user, or for all
// users when userKey is empty, in lexical order.
func (s *Store) List(ctx context.Context, userKey string) ([]domain.DocumentKey, error) {
	start := s.root
	if userKey != "" {
		start = filepath.Join(s.root, filepath.FromSlash(userKey))
	}
	keys := []domain.DocumentKey{}
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if key, ok := s.keyFor(p); ok {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", start, err)
	}
	return keys, nil
}
