// Package blobtest holds the behaviour every archive backend must share.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"crmcore/internal/blob/core"
)

// Options adjusts Run for backend specific capabilities.
type Options struct {
	// Presign is true when PresignURL returns links for GET.
	Presign bool
	// Metadata is true when Head and Get return user metadata.
	Metadata bool
}

// Run exercises store with a fixed script of writes, reads and deletes. The
// store must start empty.
func Run(t *testing.T, store core.Store, opts Options) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("{\"id\":\"a1\"}\n{\"id\":\"a2\"}\n")

	info, err := store.Put(ctx, "audit/2024/export-1.jsonl", bytes.NewReader(payload), core.PutOptions{
		ContentType: "application/x-ndjson",
		Metadata:    map[string]string{"entries": "2"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "audit/2024/export-1.jsonl" || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected put info %+v", info)
	}
	if info.ETag == "" {
		t.Fatalf("expected etag on put")
	}

	if _, err := store.Put(ctx, "audit/2024/export-1.jsonl", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists on second put, got %v", err)
	}

	head, err := store.Head(ctx, "audit/2024/export-1.jsonl")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != int64(len(payload)) || head.ContentType != "application/x-ndjson" {
		t.Fatalf("unexpected head %+v", head)
	}
	if opts.Metadata && head.Metadata["entries"] != "2" {
		t.Fatalf("expected metadata on head, got %+v", head.Metadata)
	}

	got, body, err := store.Get(ctx, "audit/2024/export-1.jsonl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("content mismatch: %q", data)
	}
	if got.Key != head.Key {
		t.Fatalf("get returned key %q", got.Key)
	}

	if _, err := store.Put(ctx, "audit/2024/export-2.jsonl", strings.NewReader("{}\n"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := store.Put(ctx, "other/readme.txt", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put third: %v", err)
	}
	listed, err := store.List(ctx, "audit/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].Key != "audit/2024/export-1.jsonl" || listed[1].Key != "audit/2024/export-2.jsonl" {
		t.Fatalf("unexpected listing %+v", listed)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 blobs, got %d (%v)", len(all), err)
	}

	url, err := store.PresignURL(ctx, "audit/2024/export-1.jsonl", core.SignedURLOptions{})
	switch {
	case opts.Presign && (err != nil || url == ""):
		t.Fatalf("expected presigned url, got %q %v", url, err)
	case !opts.Presign && !errors.Is(err, core.ErrUnsupported):
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "audit/2024/export-1.jsonl", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected PUT links to be unsupported, got %v", err)
	}

	existed, err := store.Delete(ctx, "audit/2024/export-1.jsonl")
	if err != nil || !existed {
		t.Fatalf("delete existing: %v %v", existed, err)
	}
	existed, err = store.Delete(ctx, "audit/2024/export-1.jsonl")
	if err != nil || existed {
		t.Fatalf("delete missing: %v %v", existed, err)
	}
	if _, err := store.Head(ctx, "audit/2024/export-1.jsonl"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, _, err := store.Get(ctx, "audit/2024/export-1.jsonl"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}

	for _, bad := range []string{"", "/abs", "../escape", "a/../../b"} {
		if _, err := store.Put(ctx, bad, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", bad, err)
		}
	}
}
