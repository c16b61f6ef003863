// Package fs stores archive blobs below a local directory. Each blob is a
// regular file next to a JSON sidecar named <file>.meta holding its attributes.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"crmcore/internal/blob/core"
)

const metaSuffix = ".meta"

// DefaultRoot is used when New receives an empty root.
const DefaultRoot = "./data/archive"

// Store implements core.Store on the local filesystem.
type Store struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

// New opens (and creates when missing) a store rooted at root.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: abs, now: time.Now}, nil
}

// Root returns the absolute directory holding the blobs.
func (s *Store) Root() string { return s.root }

// Driver reports core.DriverFilesystem.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

func (s *Store) paths(key string) (string, string, string, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	if strings.HasSuffix(clean, metaSuffix) {
		return "", "", "", fmt.Errorf("%w: %q uses the reserved %s suffix", core.ErrInvalidKey, key, metaSuffix)
	}
	data := filepath.Join(s.root, filepath.FromSlash(clean))
	return clean, data, data + metaSuffix, nil
}

// Put streams r into a temporary file and moves it into place once the
// content and its digest are complete.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(dataPath); err == nil {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, clean)
	}
	dir := filepath.Dir(dataPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.Info{}, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return core.Info{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", clean, err)
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		StoredAt:    s.now().UTC(),
	}
	if err := writeSidecar(metaPath, meta); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		_ = os.Remove(metaPath)
		return core.Info{}, fmt.Errorf("publish blob %s: %w", clean, err)
	}
	return meta.info(clean), nil
}

// Get opens the blob for reading. The caller closes the reader.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	clean, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return core.Info{}, nil, notFound(clean, err)
	}
	meta, err := readSidecar(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, notFound(clean, err)
	}
	return meta.info(clean), file, nil
}

// Head returns blob attributes from the sidecar.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	clean, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err != nil {
		return core.Info{}, notFound(clean, err)
	}
	meta, err := readSidecar(metaPath)
	if err != nil {
		return core.Info{}, notFound(clean, err)
	}
	return meta.info(clean), nil
}

// Delete removes a blob and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return true, err
	}
	return true, nil
}

// List walks the root and returns the blobs whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readSidecar(p)
		if err != nil {
			return err
		}
		out = append(out, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a file URL for existing blobs. Links carry no
// credentials and never expire.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if !opts.ReadOnly() {
		return "", core.ErrUnsupported
	}
	if _, err := s.Head(ctx, key); err != nil {
		return "", err
	}
	_, dataPath, _, _ := s.paths(key)
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dataPath)}).String(), nil
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.StoredAt,
	}
}

func notFound(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return err
}

func writeSidecar(path string, meta sidecar) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode blob sidecar: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write blob sidecar: %w", err)
	}
	return nil
}

func readSidecar(path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode blob sidecar %s: %w", path, err)
	}
	return meta, nil
}
