// Package memory keeps archive blobs in process memory.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"crmcore/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store implements core.Store on a guarded map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for LastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{objects: make(map[string]object), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver reports core.DriverMemory.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores the content of r under key.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	sum := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now().UTC(),
	}
	s.objects[key] = object{info: info, data: data}
	return copyInfo(info), nil
}

// Get returns the blob and a reader over a private copy of its content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return copyInfo(obj.info), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Head returns blob metadata.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return copyInfo(obj.info), nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns the blobs whose key starts with prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, copyInfo(obj.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not available for process memory.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func (s *Store) lookup(key string) (object, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return object{}, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return object{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return obj, nil
}

func copyInfo(info core.Info) core.Info {
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}
