// Package auditexport archives audit log entries to a blob store as JSON
// lines or CSV, either inline (Exporter) or through a background queue
// (Worker).
package auditexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"crmcore/internal/blob"
	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

// KeyPrefix is the blob prefix every archive is written below.
const KeyPrefix = "audit/"

// Format selects the archive encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// Valid reports whether f is a supported encoding.
func (f Format) Valid() bool { return f == FormatJSONL || f == FormatCSV }

// ContentType returns the MIME type stored with archives of this format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/x-ndjson"
}

// Source yields the entries to archive. *core.Service satisfies it.
type Source interface {
	ListAuditEntries(ctx context.Context, filter core.AuditFilter) ([]domain.AuditLogEntry, error)
}

// Request describes one export.
type Request struct {
	Filter      core.AuditFilter `json:"filter"`
	Format      Format           `json:"format"`
	RequestedBy string           `json:"requested_by,omitempty"`
}

// Artifact is the stored archive.
type Artifact struct {
	Key          string     `json:"key"`
	Format       Format     `json:"format"`
	ContentType  string     `json:"content_type"`
	Entries      int        `json:"entries"`
	SizeBytes    int64      `json:"size_bytes"`
	ETag         string     `json:"etag,omitempty"`
	URL          string     `json:"url,omitempty"`
	URLExpiresAt *time.Time `json:"url_expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Exporter writes archives synchronously.
type Exporter struct {
	source  Source
	store   blob.Store
	logger  core.Logger
	now     func() time.Time
	linkTTL time.Duration
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithClock overrides the time used in keys and artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLinkTTL sets the lifetime of presigned download links.
func WithLinkTTL(ttl time.Duration) Option {
	return func(e *Exporter) { e.linkTTL = ttl }
}

// WithLogger routes export outcomes to logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an Exporter reading from source and writing to store.
func New(source Source, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		source:  source,
		store:   store,
		logger:  nopLogger{},
		now:     time.Now,
		linkTTL: blob.SignedURLOptions{}.Expiration(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize defaults the format and rejects unknown ones.
func (r Request) Normalize() (Request, error) {
	if r.Format == "" {
		r.Format = FormatJSONL
	}
	if !r.Format.Valid() {
		return r, domain.ValidationError{Entity: "audit_exports", Field: "format", Message: fmt.Sprintf("unsupported format %q", r.Format)}
	}
	if r.Filter.Limit < 0 {
		return r, domain.ValidationError{Entity: "audit_exports", Field: "limit", Message: "must not be negative"}
	}
	return r, nil
}

// Export archives the entries matching req.Filter and returns the stored
// artifact. Stores without link signing yield an artifact without URL.
func (e *Exporter) Export(ctx context.Context, req Request) (Artifact, error) {
	req, err := req.Normalize()
	if err != nil {
		return Artifact{}, err
	}
	entries, err := e.source.ListAuditEntries(ctx, req.Filter)
	if err != nil {
		return Artifact{}, fmt.Errorf("load audit entries: %w", err)
	}
	payload, err := encode(req.Format, entries)
	if err != nil {
		return Artifact{}, err
	}
	created := e.now().UTC()
	key := fmt.Sprintf("%s%s-%s.%s", KeyPrefix, created.Format("20060102T150405Z"), uuid.NewString(), req.Format)
	meta := map[string]string{
		"entries": strconv.Itoa(len(entries)),
		"format":  string(req.Format),
	}
	if req.RequestedBy != "" {
		meta["requested-by"] = req.RequestedBy
	}
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: req.Format.ContentType(), Metadata: meta})
	if err != nil {
		e.logger.Error("audit export failed", "key", key, "error", err)
		return Artifact{}, fmt.Errorf("store audit archive: %w", err)
	}
	artifact := Artifact{
		Key:         info.Key,
		Format:      req.Format,
		ContentType: req.Format.ContentType(),
		Entries:     len(entries),
		SizeBytes:   int64(len(payload)),
		ETag:        info.ETag,
		CreatedAt:   created,
	}
	url, err := e.store.PresignURL(ctx, info.Key, blob.SignedURLOptions{Expiry: e.linkTTL})
	switch {
	case err == nil:
		artifact.URL = url
		if e.store.Driver() == blob.DriverS3 {
			expires := created.Add(e.linkTTL)
			artifact.URLExpiresAt = &expires
		}
	case errors.Is(err, blob.ErrUnsupported):
	default:
		e.logger.Warn("audit export link unavailable", "key", info.Key, "error", err)
	}
	e.logger.Info("audit export stored", "key", info.Key, "entries", len(entries), "driver", string(e.store.Driver()))
	return artifact, nil
}

// Archives lists previously written archives, oldest key first.
func (e *Exporter) Archives(ctx context.Context) ([]blob.Info, error) {
	return e.store.List(ctx, KeyPrefix)
}

var csvHeader = []string{"id", "created_at", "user_id", "table_name", "record_id", "action", "before_state", "after_state"}

func encode(format Format, entries []domain.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	if format == FormatCSV {
		w := csv.NewWriter(&buf)
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
		for _, entry := range entries {
			user := ""
			if entry.UserID != nil {
				user = *entry.UserID
			}
			row := []string{
				entry.ID,
				entry.CreatedAt.UTC().Format(time.RFC3339Nano),
				user,
				string(entry.TableName),
				entry.RecordID,
				string(entry.Action),
				string(entry.Before.Raw()),
				string(entry.After.Raw()),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("encode csv archive: %w", err)
		}
		return buf.Bytes(), nil
	}
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
		}
	}
	return buf.Bytes(), nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
