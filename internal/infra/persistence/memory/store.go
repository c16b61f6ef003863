// Package memory provides an in-memory implementation of the CRM persistence
// store used for tests, ephemeral environments, and as the working set of the
// durable SQL backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crmcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// CommitHook runs after rules pass and before the new state becomes visible.
// It receives the full post-commit snapshot and the audit entries appended by
// the transaction. A returned error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot, appended []domain.AuditLogEntry) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides record identifier generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.idFn = gen
		}
	}
}

// WithCommitHook registers a hook that persists committed state.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// Store provides an in-memory transactional store for the CRM domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
	idFn   func() string
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn against a cloned working state. The clone
// replaces the live state only when fn succeeds, every tracked change carries
// exactly one audit entry, no blocking rule fires and the commit hook accepts
// the result.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store:     s,
		state:     s.state.clone(),
		now:       s.nowFn(),
		auditBase: len(s.state.audit),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	appended := tx.state.audit[tx.auditBase:]
	if err := verifyAuditCoverage(tx.changes, appended); err != nil {
		return domain.Result{}, domain.TransactionError{Op: "audit", Err: err}
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil {
		entries := append([]domain.AuditLogEntry(nil), appended...)
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state), entries); err != nil {
			return result, domain.TransactionError{Op: "commit", Err: err}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

type auditKey struct {
	entity domain.EntityType
	record string
	action domain.Action
}

// verifyAuditCoverage pairs every tracked change with one appended audit entry.
func verifyAuditCoverage(changes []domain.Change, appended []domain.AuditLogEntry) error {
	pending := make(map[auditKey]int, len(appended))
	for _, entry := range appended {
		pending[auditKey{entry.TableName, entry.RecordID, entry.Action}]++
	}
	for _, change := range changes {
		if !change.Entity.Tracked() {
			continue
		}
		key := auditKey{change.Entity, change.RecordID, change.Action}
		if pending[key] == 0 {
			return fmt.Errorf("%s %s on %s has no audit entry", change.Entity, change.RecordID, change.Action)
		}
		pending[key]--
	}
	for key, n := range pending {
		if n > 0 {
			return fmt.Errorf("audit entry for %s %s on %s has no matching change", key.entity, key.record, key.action)
		}
	}
	return nil
}

type transaction struct {
	store     *Store
	state     memoryState
	changes   []domain.Change
	now       time.Time
	auditBase int
}

func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) newID() string { return tx.store.idFn() }

// record builds and appends a change. Missing sides are passed as nil.
func (tx *transaction) record(entity domain.EntityType, action domain.Action, id string, before, after any) (domain.Change, error) {
	change := domain.Change{Entity: entity, Action: action, RecordID: id}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		if err != nil {
			return domain.Change{}, fmt.Errorf("encode %s %s: %w", entity, id, err)
		}
		change.Before = payload
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		if err != nil {
			return domain.Change{}, fmt.Errorf("encode %s %s: %w", entity, id, err)
		}
		change.After = payload
	}
	tx.changes = append(tx.changes, change)
	return change, nil
}

func (tx *transaction) requireLead(id string) error {
	if _, ok := tx.state.leads[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}
	return nil
}

func (tx *transaction) requireSource(id *string) error {
	if id == nil {
		return nil
	}
	if _, ok := tx.state.sources[*id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityLeadSource, ID: *id}
	}
	return nil
}

// Leads

func (tx *transaction) CreateLead(l domain.Lead) (domain.Lead, domain.Change, error) {
	if l.ID == "" {
		l.ID = tx.newID()
	}
	if _, exists := tx.state.leads[l.ID]; exists {
		return domain.Lead{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityLead, Field: "id", Value: l.ID}
	}
	if err := tx.requireSource(l.SourceID); err != nil {
		return domain.Lead{}, domain.Change{}, err
	}
	if l.Status == "" {
		l.Status = domain.LeadStatusNew
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	l.DeletedAt = nil
	tx.state.leads[l.ID] = cloneLead(l)
	change, err := tx.record(domain.EntityLead, domain.ActionCreate, l.ID, nil, l)
	if err != nil {
		return domain.Lead{}, domain.Change{}, err
	}
	return cloneLead(l), change, nil
}

func (tx *transaction) UpdateLead(id string, mutator func(*domain.Lead) error) (domain.Lead, domain.Change, error) {
	current, ok := tx.state.leads[id]
	if !ok {
		return domain.Lead{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}
	before := cloneLead(current)
	if err := mutator(&current); err != nil {
		return domain.Lead{}, domain.Change{}, err
	}
	if err := tx.requireSource(current.SourceID); err != nil {
		return domain.Lead{}, domain.Change{}, err
	}
	current.ID = id
	current.OwnerID = before.OwnerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	return tx.putLead(domain.ActionUpdate, before, current)
}

func (tx *transaction) SoftDeleteLead(id string) (domain.Lead, domain.Change, error) {
	current, ok := tx.state.leads[id]
	if !ok {
		return domain.Lead{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}
	before := cloneLead(current)
	deletedAt := tx.now
	current.DeletedAt = &deletedAt
	current.UpdatedAt = tx.now
	return tx.putLead(domain.ActionUpdate, before, current)
}

func (tx *transaction) RestoreLead(id string) (domain.Lead, domain.Change, error) {
	current, ok := tx.state.leads[id]
	if !ok {
		return domain.Lead{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}
	before := cloneLead(current)
	current.DeletedAt = nil
	current.UpdatedAt = tx.now
	return tx.putLead(domain.ActionRestore, before, current)
}

func (tx *transaction) putLead(action domain.Action, before, after domain.Lead) (domain.Lead, domain.Change, error) {
	tx.state.leads[after.ID] = cloneLead(after)
	change, err := tx.record(domain.EntityLead, action, after.ID, before, after)
	if err != nil {
		return domain.Lead{}, domain.Change{}, err
	}
	return cloneLead(after), change, nil
}

// DeleteLead removes the lead together with its interactions, deals, tasks
// (linked directly or through one of its deals) and campaign memberships.
func (tx *transaction) DeleteLead(id string) ([]domain.Change, error) {
	lead, ok := tx.state.leads[id]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}

	dealIDs := make(map[string]struct{})
	for _, deal := range tx.state.deals {
		if deal.LeadID == id {
			dealIDs[deal.ID] = struct{}{}
		}
	}

	var changes []domain.Change
	for _, interactionID := range sortedKeys(tx.state.interactions, func(i domain.Interaction) bool { return i.LeadID == id }) {
		change, err := tx.DeleteInteraction(interactionID)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	for _, taskID := range sortedKeys(tx.state.tasks, func(t domain.Task) bool {
		if t.LeadID != nil && *t.LeadID == id {
			return true
		}
		if t.DealID != nil {
			_, linked := dealIDs[*t.DealID]
			return linked
		}
		return false
	}) {
		change, err := tx.DeleteTask(taskID)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	for _, dealID := range sortedKeys(tx.state.deals, func(d domain.Deal) bool { return d.LeadID == id }) {
		deal := tx.state.deals[dealID]
		delete(tx.state.deals, dealID)
		change, err := tx.record(domain.EntityDeal, domain.ActionDelete, dealID, deal, nil)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	for _, linkID := range sortedKeys(tx.state.campaignLeads, func(c domain.CampaignLead) bool { return c.LeadID == id }) {
		link := tx.state.campaignLeads[linkID]
		delete(tx.state.campaignLeads, linkID)
		if _, err := tx.record(domain.EntityCampaignLead, domain.ActionDelete, linkID, link, nil); err != nil {
			return nil, err
		}
	}

	delete(tx.state.leads, id)
	change, err := tx.record(domain.EntityLead, domain.ActionDelete, id, lead, nil)
	if err != nil {
		return nil, err
	}
	return append(changes, change), nil
}

// Interactions

func (tx *transaction) CreateInteraction(i domain.Interaction) (domain.Interaction, domain.Change, error) {
	if i.ID == "" {
		i.ID = tx.newID()
	}
	if _, exists := tx.state.interactions[i.ID]; exists {
		return domain.Interaction{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityInteraction, Field: "id", Value: i.ID}
	}
	if err := tx.requireLead(i.LeadID); err != nil {
		return domain.Interaction{}, domain.Change{}, err
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.interactions[i.ID] = cloneInteraction(i)
	change, err := tx.record(domain.EntityInteraction, domain.ActionCreate, i.ID, nil, i)
	if err != nil {
		return domain.Interaction{}, domain.Change{}, err
	}
	return cloneInteraction(i), change, nil
}

func (tx *transaction) UpdateInteraction(id string, mutator func(*domain.Interaction) error) (domain.Interaction, domain.Change, error) {
	current, ok := tx.state.interactions[id]
	if !ok {
		return domain.Interaction{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityInteraction, ID: id}
	}
	before := cloneInteraction(current)
	if err := mutator(&current); err != nil {
		return domain.Interaction{}, domain.Change{}, err
	}
	if err := tx.requireLead(current.LeadID); err != nil {
		return domain.Interaction{}, domain.Change{}, err
	}
	current.ID = id
	current.OwnerID = before.OwnerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.interactions[id] = cloneInteraction(current)
	change, err := tx.record(domain.EntityInteraction, domain.ActionUpdate, id, before, current)
	if err != nil {
		return domain.Interaction{}, domain.Change{}, err
	}
	return cloneInteraction(current), change, nil
}

func (tx *transaction) DeleteInteraction(id string) (domain.Change, error) {
	current, ok := tx.state.interactions[id]
	if !ok {
		return domain.Change{}, domain.NotFoundError{Entity: domain.EntityInteraction, ID: id}
	}
	delete(tx.state.interactions, id)
	return tx.record(domain.EntityInteraction, domain.ActionDelete, id, current, nil)
}

// Deals

func (tx *transaction) CreateDeal(d domain.Deal) (domain.Deal, domain.Change, error) {
	if d.ID == "" {
		d.ID = tx.newID()
	}
	if _, exists := tx.state.deals[d.ID]; exists {
		return domain.Deal{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityDeal, Field: "id", Value: d.ID}
	}
	if err := tx.requireLead(d.LeadID); err != nil {
		return domain.Deal{}, domain.Change{}, err
	}
	if d.Status == "" {
		d.Status = domain.DealStatusProspecting
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.deals[d.ID] = cloneDeal(d)
	change, err := tx.record(domain.EntityDeal, domain.ActionCreate, d.ID, nil, d)
	if err != nil {
		return domain.Deal{}, domain.Change{}, err
	}
	return cloneDeal(d), change, nil
}

// UpdateDeal does not require the lead to exist: a deal orphaned by data
// drift must stay editable so the cascade can surface the inconsistency.
func (tx *transaction) UpdateDeal(id string, mutator func(*domain.Deal) error) (domain.Deal, domain.Change, error) {
	current, ok := tx.state.deals[id]
	if !ok {
		return domain.Deal{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityDeal, ID: id}
	}
	before := cloneDeal(current)
	if err := mutator(&current); err != nil {
		return domain.Deal{}, domain.Change{}, err
	}
	if current.LeadID != before.LeadID {
		if err := tx.requireLead(current.LeadID); err != nil {
			return domain.Deal{}, domain.Change{}, err
		}
	}
	current.ID = id
	current.OwnerID = before.OwnerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.deals[id] = cloneDeal(current)
	change, err := tx.record(domain.EntityDeal, domain.ActionUpdate, id, before, current)
	if err != nil {
		return domain.Deal{}, domain.Change{}, err
	}
	return cloneDeal(current), change, nil
}

// DeleteDeal removes the deal and detaches tasks that referenced it. The
// deal deletion comes first, followed by the task updates.
func (tx *transaction) DeleteDeal(id string) ([]domain.Change, error) {
	current, ok := tx.state.deals[id]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityDeal, ID: id}
	}
	delete(tx.state.deals, id)
	change, err := tx.record(domain.EntityDeal, domain.ActionDelete, id, current, nil)
	if err != nil {
		return nil, err
	}
	changes := []domain.Change{change}
	for _, taskID := range sortedKeys(tx.state.tasks, func(t domain.Task) bool { return t.DealID != nil && *t.DealID == id }) {
		_, taskChange, err := tx.UpdateTask(taskID, func(t *domain.Task) error {
			t.DealID = nil
			return nil
		})
		if err != nil {
			return nil, err
		}
		changes = append(changes, taskChange)
	}
	return changes, nil
}

// Tasks

func (tx *transaction) checkTaskLinks(t domain.Task) error {
	if t.LeadID != nil {
		if err := tx.requireLead(*t.LeadID); err != nil {
			return err
		}
	}
	if t.DealID != nil {
		if _, ok := tx.state.deals[*t.DealID]; !ok {
			return domain.NotFoundError{Entity: domain.EntityDeal, ID: *t.DealID}
		}
	}
	return nil
}

func (tx *transaction) CreateTask(t domain.Task) (domain.Task, domain.Change, error) {
	if t.ID == "" {
		t.ID = tx.newID()
	}
	if _, exists := tx.state.tasks[t.ID]; exists {
		return domain.Task{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityTask, Field: "id", Value: t.ID}
	}
	if err := tx.checkTaskLinks(t); err != nil {
		return domain.Task{}, domain.Change{}, err
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusOpen
	}
	if t.Priority == "" {
		t.Priority = domain.TaskPriorityMedium
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tasks[t.ID] = cloneTask(t)
	change, err := tx.record(domain.EntityTask, domain.ActionCreate, t.ID, nil, t)
	if err != nil {
		return domain.Task{}, domain.Change{}, err
	}
	return cloneTask(t), change, nil
}

func (tx *transaction) UpdateTask(id string, mutator func(*domain.Task) error) (domain.Task, domain.Change, error) {
	current, ok := tx.state.tasks[id]
	if !ok {
		return domain.Task{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	before := cloneTask(current)
	if err := mutator(&current); err != nil {
		return domain.Task{}, domain.Change{}, err
	}
	if err := tx.checkTaskLinks(current); err != nil {
		return domain.Task{}, domain.Change{}, err
	}
	current.ID = id
	current.OwnerID = before.OwnerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tasks[id] = cloneTask(current)
	change, err := tx.record(domain.EntityTask, domain.ActionUpdate, id, before, current)
	if err != nil {
		return domain.Task{}, domain.Change{}, err
	}
	return cloneTask(current), change, nil
}

func (tx *transaction) DeleteTask(id string) (domain.Change, error) {
	current, ok := tx.state.tasks[id]
	if !ok {
		return domain.Change{}, domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	delete(tx.state.tasks, id)
	return tx.record(domain.EntityTask, domain.ActionDelete, id, current, nil)
}

// Campaigns

func (tx *transaction) CreateCampaign(c domain.Campaign) (domain.Campaign, domain.Change, error) {
	if c.ID == "" {
		c.ID = tx.newID()
	}
	if _, exists := tx.state.campaigns[c.ID]; exists {
		return domain.Campaign{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityCampaign, Field: "id", Value: c.ID}
	}
	if c.Status == "" {
		c.Status = domain.CampaignStatusDraft
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.campaigns[c.ID] = cloneCampaign(c)
	change, err := tx.record(domain.EntityCampaign, domain.ActionCreate, c.ID, nil, c)
	if err != nil {
		return domain.Campaign{}, domain.Change{}, err
	}
	return cloneCampaign(c), change, nil
}

func (tx *transaction) UpdateCampaign(id string, mutator func(*domain.Campaign) error) (domain.Campaign, domain.Change, error) {
	current, ok := tx.state.campaigns[id]
	if !ok {
		return domain.Campaign{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityCampaign, ID: id}
	}
	before := cloneCampaign(current)
	if err := mutator(&current); err != nil {
		return domain.Campaign{}, domain.Change{}, err
	}
	current.ID = id
	current.OwnerID = before.OwnerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.campaigns[id] = cloneCampaign(current)
	change, err := tx.record(domain.EntityCampaign, domain.ActionUpdate, id, before, current)
	if err != nil {
		return domain.Campaign{}, domain.Change{}, err
	}
	return cloneCampaign(current), change, nil
}

// DeleteCampaign removes the campaign and its lead memberships.
func (tx *transaction) DeleteCampaign(id string) (domain.Change, error) {
	current, ok := tx.state.campaigns[id]
	if !ok {
		return domain.Change{}, domain.NotFoundError{Entity: domain.EntityCampaign, ID: id}
	}
	for _, linkID := range sortedKeys(tx.state.campaignLeads, func(c domain.CampaignLead) bool { return c.CampaignID == id }) {
		link := tx.state.campaignLeads[linkID]
		delete(tx.state.campaignLeads, linkID)
		if _, err := tx.record(domain.EntityCampaignLead, domain.ActionDelete, linkID, link, nil); err != nil {
			return domain.Change{}, err
		}
	}
	delete(tx.state.campaigns, id)
	return tx.record(domain.EntityCampaign, domain.ActionDelete, id, current, nil)
}

func (tx *transaction) AddCampaignLead(link domain.CampaignLead) (domain.CampaignLead, domain.Change, error) {
	if _, ok := tx.state.campaigns[link.CampaignID]; !ok {
		return domain.CampaignLead{}, domain.Change{}, domain.NotFoundError{Entity: domain.EntityCampaign, ID: link.CampaignID}
	}
	if err := tx.requireLead(link.LeadID); err != nil {
		return domain.CampaignLead{}, domain.Change{}, err
	}
	for _, existing := range tx.state.campaignLeads {
		if existing.CampaignID == link.CampaignID && existing.LeadID == link.LeadID {
			return domain.CampaignLead{}, domain.Change{}, domain.ConflictError{
				Entity: domain.EntityCampaignLead,
				Field:  "campaign_id,lead_id",
				Value:  link.CampaignID + "," + link.LeadID,
			}
		}
	}
	if link.ID == "" {
		link.ID = tx.newID()
	}
	link.AddedAt = tx.now
	tx.state.campaignLeads[link.ID] = link
	change, err := tx.record(domain.EntityCampaignLead, domain.ActionCreate, link.ID, nil, link)
	if err != nil {
		return domain.CampaignLead{}, domain.Change{}, err
	}
	return link, change, nil
}

func (tx *transaction) RemoveCampaignLead(campaignID, leadID string) (domain.Change, error) {
	for id, link := range tx.state.campaignLeads {
		if link.CampaignID == campaignID && link.LeadID == leadID {
			delete(tx.state.campaignLeads, id)
			return tx.record(domain.EntityCampaignLead, domain.ActionDelete, id, link, nil)
		}
	}
	return domain.Change{}, domain.NotFoundError{Entity: domain.EntityCampaignLead, ID: campaignID + "/" + leadID}
}

// Lead sources

func (tx *transaction) CreateLeadSource(src domain.LeadSource) (domain.LeadSource, domain.Change, error) {
	if src.ID == "" {
		src.ID = tx.newID()
	}
	if _, exists := tx.state.sources[src.ID]; exists {
		return domain.LeadSource{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityLeadSource, Field: "id", Value: src.ID}
	}
	for _, existing := range tx.state.sources {
		if existing.OwnerID == src.OwnerID && existing.Name == src.Name {
			return domain.LeadSource{}, domain.Change{}, domain.ConflictError{Entity: domain.EntityLeadSource, Field: "name", Value: src.Name}
		}
	}
	src.CreatedAt = tx.now
	src.UpdatedAt = tx.now
	tx.state.sources[src.ID] = src
	change, err := tx.record(domain.EntityLeadSource, domain.ActionCreate, src.ID, nil, src)
	if err != nil {
		return domain.LeadSource{}, domain.Change{}, err
	}
	return src, change, nil
}

// DeleteLeadSource removes the source and clears source_id on referencing leads.
func (tx *transaction) DeleteLeadSource(id string) ([]domain.Change, error) {
	current, ok := tx.state.sources[id]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityLeadSource, ID: id}
	}
	delete(tx.state.sources, id)
	change, err := tx.record(domain.EntityLeadSource, domain.ActionDelete, id, current, nil)
	if err != nil {
		return nil, err
	}
	changes := []domain.Change{change}
	for _, leadID := range sortedKeys(tx.state.leads, func(l domain.Lead) bool { return l.SourceID != nil && *l.SourceID == id }) {
		_, leadChange, err := tx.UpdateLead(leadID, func(l *domain.Lead) error {
			l.SourceID = nil
			return nil
		})
		if err != nil {
			return nil, err
		}
		changes = append(changes, leadChange)
	}
	return changes, nil
}

// Audit

// AppendAudit adds an immutable entry to the audit log. Entries may only be
// appended; there is no update or delete counterpart.
func (tx *transaction) AppendAudit(entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if !entry.TableName.Tracked() {
		return domain.AuditLogEntry{}, domain.ValidationError{Entity: entry.TableName, Field: "table_name", Message: "entity is not audited"}
	}
	if entry.RecordID == "" {
		return domain.AuditLogEntry{}, domain.ValidationError{Entity: entry.TableName, Field: "record_id", Message: "required"}
	}
	switch entry.Action {
	case domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete, domain.ActionRestore:
	default:
		return domain.AuditLogEntry{}, domain.ValidationError{Entity: entry.TableName, Field: "action", Message: fmt.Sprintf("unsupported action %q", entry.Action)}
	}
	if entry.ID == "" {
		entry.ID = tx.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = tx.now
	}
	if entry.UserID != nil {
		uid := *entry.UserID
		entry.UserID = &uid
	}
	tx.state.audit = append(tx.state.audit, entry)
	return entry, nil
}

func sortedKeys[T any](m map[string]T, match func(T) bool) []string {
	keys := make([]string, 0)
	for k, v := range m {
		if match(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Read-only view

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListLeads() []domain.Lead {
	return sortedValues(v.state.leads, leadCreated, cloneLead)
}

func (v transactionView) FindLead(id string) (domain.Lead, bool) {
	l, ok := v.state.leads[id]
	if !ok {
		return domain.Lead{}, false
	}
	return cloneLead(l), true
}

func (v transactionView) ListInteractions() []domain.Interaction {
	return sortedValues(v.state.interactions, interactionCreated, cloneInteraction)
}

func (v transactionView) FindInteraction(id string) (domain.Interaction, bool) {
	i, ok := v.state.interactions[id]
	if !ok {
		return domain.Interaction{}, false
	}
	return cloneInteraction(i), true
}

func (v transactionView) ListDeals() []domain.Deal {
	return sortedValues(v.state.deals, dealCreated, cloneDeal)
}

func (v transactionView) FindDeal(id string) (domain.Deal, bool) {
	d, ok := v.state.deals[id]
	if !ok {
		return domain.Deal{}, false
	}
	return cloneDeal(d), true
}

func (v transactionView) ListTasks() []domain.Task {
	return sortedValues(v.state.tasks, taskCreated, cloneTask)
}

func (v transactionView) FindTask(id string) (domain.Task, bool) {
	t, ok := v.state.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return cloneTask(t), true
}

func (v transactionView) ListCampaigns() []domain.Campaign {
	return sortedValues(v.state.campaigns, campaignCreated, cloneCampaign)
}

func (v transactionView) FindCampaign(id string) (domain.Campaign, bool) {
	c, ok := v.state.campaigns[id]
	if !ok {
		return domain.Campaign{}, false
	}
	return cloneCampaign(c), true
}

func (v transactionView) ListCampaignLeads() []domain.CampaignLead {
	return sortedValues(v.state.campaignLeads, campaignLeadAdded, identity[domain.CampaignLead])
}

func (v transactionView) ListLeadSources() []domain.LeadSource {
	return sortedValues(v.state.sources, sourceCreated, identity[domain.LeadSource])
}

func (v transactionView) FindLeadSource(id string) (domain.LeadSource, bool) {
	s, ok := v.state.sources[id]
	return s, ok
}

// ListAuditEntries returns the audit log in append order.
func (v transactionView) ListAuditEntries() []domain.AuditLogEntry {
	return append([]domain.AuditLogEntry(nil), v.state.audit...)
}
