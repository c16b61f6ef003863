package domain

import "testing"

func TestTrackedEntities(t *testing.T) {
	tracked := []EntityType{EntityLead, EntityInteraction, EntityDeal, EntityTask, EntityCampaign}
	for _, e := range tracked {
		if !e.Tracked() {
			t.Fatalf("%s should be audited", e)
		}
	}
	for _, e := range []EntityType{EntityCampaignLead, EntityLeadSource, "users"} {
		if e.Tracked() {
			t.Fatalf("%s should not be audited", e)
		}
	}
}

func TestAuditEntryMatchesChange(t *testing.T) {
	entry := AuditLogEntry{TableName: EntityDeal, RecordID: "d1", Action: ActionUpdate}
	if !entry.Matches(Change{Entity: EntityDeal, RecordID: "d1", Action: ActionUpdate}) {
		t.Fatalf("expected match")
	}
	if entry.Matches(Change{Entity: EntityDeal, RecordID: "d1", Action: ActionDelete}) {
		t.Fatalf("action mismatch should not match")
	}
}

func TestLeadDeletedAndPrincipal(t *testing.T) {
	var lead Lead
	if lead.Deleted() {
		t.Fatalf("zero lead is not deleted")
	}
	if !(Principal{}).Anonymous() || (Principal{UserID: "u1"}).Anonymous() {
		t.Fatalf("principal anonymity mismatch")
	}
}
