package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the entity buckets durable backends store as JSON documents.
// The audit log is excluded; backends keep it in an append-only table.
var Buckets = []string{
	"leads",
	"interactions",
	"deals",
	"tasks",
	"campaigns",
	"campaign_leads",
	"lead_sources",
}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "leads":
		return &s.Leads, true
	case "interactions":
		return &s.Interactions, true
	case "deals":
		return &s.Deals, true
	case "tasks":
		return &s.Tasks, true
	case "campaigns":
		return &s.Campaigns, true
	case "campaign_leads":
		return &s.CampaignLeads, true
	case "lead_sources":
		return &s.LeadSources, true
	default:
		return nil, false
	}
}

// EncodeBucket marshals one entity bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are
// ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
