// Package blob opens the archive store audit exports are written to and
// re-exports the backend contracts from internal/blob/core.
package blob

import "crmcore/internal/blob/core"

type (
	// Driver names a blob backend.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures link signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes a stored blob.
	Info = core.Info
	// Store is implemented by every backend.
	Store = core.Store
)

// Backend names accepted by Open.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// DefaultPresignExpiry is the link lifetime used when none is configured.
const DefaultPresignExpiry = core.DefaultPresignExpiry

// Errors shared by every backend.
var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrInvalidKey  = core.ErrInvalidKey
)
