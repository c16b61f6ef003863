package integration

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"crmcore/internal/adapters/auditexport"
	"crmcore/internal/blob"
	"crmcore/internal/core"
	fsstore "crmcore/internal/infra/blob/fs"
	memblob "crmcore/internal/infra/blob/memory"
	s3store "crmcore/internal/infra/blob/s3"
	"crmcore/pkg/domain"
)

// TestIntegrationSmoke runs one pipeline write/read cycle and one audit
// archive for every in-process storage and archive backend pairing.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(t *testing.T) domain.PersistentStore {
				store, err := core.OpenStore(core.StorageConfig{Driver: core.StorageMemory}, nil)
				if err != nil {
					t.Fatalf("open memory store: %v", err)
				}
				return store
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				path := filepath.Join(t.TempDir(), "crm.db")
				store, err := core.OpenStore(core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: path}, nil)
				if err != nil {
					t.Fatalf("open sqlite store: %v", err)
				}
				return store
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(*testing.T) blob.Store { return memblob.New() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				store, err := fsstore.New(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return store
			},
		},
		{
			name: "fake-s3-blob",
			open: func(t *testing.T) blob.Store {
				store, _, err := s3store.NewFake(ctx, "audit-archive")
				if err != nil {
					t.Fatalf("new fake s3: %v", err)
				}
				return store
			},
		},
	}

	alice := domain.Principal{UserID: "alice"}
	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				var traces bytes.Buffer
				tracer := core.NewJSONTracer(&traces)
				svc := core.NewService(sv.open(t), core.WithTracer(tracer))
				t.Cleanup(func() { _ = svc.Close() })

				lead, _, err := svc.CreateLead(ctx, alice, domain.Lead{FirstName: "Ada", LastName: "Lovelace"})
				if err != nil {
					t.Fatalf("create lead: %v", err)
				}
				deal, _, err := svc.CreateDeal(ctx, alice, domain.Deal{LeadID: lead.ID, Title: "Engine", Amount: 900, Probability: 60})
				if err != nil {
					t.Fatalf("create deal: %v", err)
				}
				if _, _, err := svc.UpdateDealStatus(ctx, alice, deal.ID, domain.DealStatusClosedWon); err != nil {
					t.Fatalf("close deal: %v", err)
				}
				got, err := svc.GetLead(ctx, lead.ID)
				if err != nil {
					t.Fatalf("get lead: %v", err)
				}
				if got.Status != domain.LeadStatusWon {
					t.Fatalf("expected lead won after deal closed, got %s", got.Status)
				}

				archive := bv.open(t)
				artifact, err := auditexport.New(svc, archive).Export(ctx, auditexport.Request{})
				if err != nil {
					t.Fatalf("export: %v", err)
				}
				// lead create, deal create, deal update, cascaded lead update
				if artifact.Entries != 4 {
					t.Fatalf("expected 4 archived entries, got %d", artifact.Entries)
				}
				_, body, err := archive.Get(ctx, artifact.Key)
				if err != nil {
					t.Fatalf("get archive: %v", err)
				}
				defer body.Close()
				lines := 0
				scanner := bufio.NewScanner(body)
				for scanner.Scan() {
					lines++
				}
				if lines != artifact.Entries {
					t.Fatalf("archive has %d lines, artifact reports %d", lines, artifact.Entries)
				}
				if len(tracer.Entries()) == 0 || traces.Len() == 0 {
					t.Fatalf("expected operation spans to be recorded")
				}
			})
		}
	}
}

// TestSQLiteStateSurvivesReopen checks that records and their audit trail are
// read back from the database file by a fresh service.
func TestSQLiteStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "crm.db")}
	alice := domain.Principal{UserID: "alice"}

	store, err := core.OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := core.NewService(store)
	lead, _, err := svc.CreateLead(ctx, alice, domain.Lead{FirstName: "Grace", LastName: "Hopper"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if _, _, err := svc.SoftDeleteLead(ctx, alice, lead.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = core.OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	svc = core.NewService(store)
	defer svc.Close()
	reloaded, err := svc.GetLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("get lead after reopen: %v", err)
	}
	if !reloaded.Deleted() {
		t.Fatalf("expected soft delete to persist, got %+v", reloaded)
	}
	trail, err := svc.AuditTrail(ctx, domain.EntityLead, lead.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(trail) != 2 || trail[0].Action != domain.ActionCreate || trail[1].Action != domain.ActionUpdate {
		t.Fatalf("unexpected trail after reopen: %+v", trail)
	}
}
