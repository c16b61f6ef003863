// Package core holds the contracts shared by the archive blob backends.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver names a blob backend.
type Driver string

const (
	// DriverFilesystem stores archives below a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores archives in an S3 compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps archives in process memory.
	DriverMemory Driver = "memory"
)

// Valid reports whether d is a known driver.
func (d Driver) Valid() bool {
	switch d {
	case DriverFilesystem, DriverS3, DriverMemory:
		return true
	}
	return false
}

// DefaultPresignExpiry applies when SignedURLOptions.Expiry is not positive.
const DefaultPresignExpiry = 15 * time.Minute

// PutOptions carries optional attributes for a new blob.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// SignedURLOptions configures PresignURL. Only GET is supported by the
// current backends.
type SignedURLOptions struct {
	Method string
	Expiry time.Duration
}

// Expiration returns the effective link lifetime.
func (o SignedURLOptions) Expiration() time.Duration {
	if o.Expiry <= 0 {
		return DefaultPresignExpiry
	}
	return o.Expiry
}

// ReadOnly reports whether the requested method is GET (the default).
func (o SignedURLOptions) ReadOnly() bool {
	return o.Method == "" || strings.EqualFold(o.Method, "GET")
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the write-once object store audit archives are exported to.
// Put never overwrites: a second Put of the same key fails with ErrExists.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported marks an optional capability a backend lacks.
	ErrUnsupported = errors.New("blob: unsupported operation")
	// ErrNotFound is returned for keys that do not exist.
	ErrNotFound = errors.New("blob: not found")
	// ErrExists is returned when Put targets an existing key.
	ErrExists = errors.New("blob: already exists")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// CleanKey normalises key to a slash separated relative path and rejects
// keys that are empty, absolute or climb out of the store root.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidKey, key)
		}
	}
	return path.Clean(key), nil
}

// CloneMetadata copies user metadata so callers cannot alias stored maps.
func CloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
