package core

import (
	"context"
	"math"
	"testing"
	"time"

	"crmcore/pkg/domain"
)

func TestCampaignConversionRate(t *testing.T) {
	cases := []struct {
		leads, conversions int
		want               float64
	}{
		{leads: 0, conversions: 0, want: 0},
		{leads: 0, conversions: 5, want: 0},
		{leads: 4, conversions: 1, want: 25},
		{leads: 3, conversions: 3, want: 100},
	}
	for _, tc := range cases {
		got := CampaignConversionRate(domain.Campaign{LeadsCount: tc.leads, ConversionsCount: tc.conversions})
		if math.IsNaN(got) || got != tc.want {
			t.Fatalf("rate(%d/%d) = %v, want %v", tc.conversions, tc.leads, got, tc.want)
		}
	}
}

func TestLeadDetail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lead := mustCreateLead(t, svc, domain.Lead{})
	mustCreateDeal(t, svc, lead.ID, "")
	mustCreateDeal(t, svc, lead.ID, "")
	if _, _, err := svc.CreateInteraction(ctx, alice, domain.Interaction{LeadID: lead.ID, Kind: domain.InteractionEmail}); err != nil {
		t.Fatalf("create interaction: %v", err)
	}
	if _, _, err := svc.CreateTask(ctx, alice, domain.Task{LeadID: strPtr(lead.ID), Title: "open"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, _, err := svc.CreateTask(ctx, alice, domain.Task{LeadID: strPtr(lead.ID), Title: "done", Status: domain.TaskStatusCompleted}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	detail, err := svc.LeadDetail(ctx, lead.ID)
	if err != nil {
		t.Fatalf("lead detail: %v", err)
	}
	if detail.InteractionsCount != 1 || detail.DealsCount != 2 || detail.TasksCount != 2 || detail.OpenTasksCount != 1 {
		t.Fatalf("unexpected counts: %+v", detail)
	}
	if detail.TotalDealAmount != 2400 {
		t.Fatalf("expected total 2400, got %v", detail.TotalDealAmount)
	}

	_, err = svc.LeadDetail(ctx, "missing")
	expectKind(t, err, domain.ErrNotFound)
}

func TestDealPipelineSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lead := mustCreateLead(t, svc, domain.Lead{})
	for _, d := range []domain.Deal{
		{LeadID: lead.ID, Title: "a", Amount: 100, Probability: 20},
		{LeadID: lead.ID, Title: "b", Amount: 300, Probability: 40},
		{LeadID: lead.ID, Title: "c", Amount: 50, Probability: 90, Status: domain.DealStatusNegotiation},
	} {
		if _, _, err := svc.CreateDeal(ctx, alice, d); err != nil {
			t.Fatalf("create deal: %v", err)
		}
	}

	stages, err := svc.DealPipelineSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("expected two stages, got %+v", stages)
	}
	if stages[0].Status != domain.DealStatusProspecting || stages[0].Count != 2 || stages[0].TotalAmount != 400 || stages[0].AverageProbability != 30 {
		t.Fatalf("unexpected prospecting stage: %+v", stages[0])
	}
	if stages[1].Status != domain.DealStatusNegotiation || stages[1].Count != 1 || stages[1].AverageProbability != 90 {
		t.Fatalf("unexpected negotiation stage: %+v", stages[1])
	}
}

func TestUpcomingTasks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	due := func(d time.Duration) *time.Time { return timePtr(testNow.Add(d)) }

	create := func(task domain.Task) domain.Task {
		t.Helper()
		created, _, err := svc.CreateTask(ctx, alice, task)
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		return created
	}
	later := create(domain.Task{Title: "later", DueDate: due(72 * time.Hour), Priority: domain.TaskPriorityLow})
	urgent := create(domain.Task{Title: "urgent", DueDate: due(24 * time.Hour), Priority: domain.TaskPriorityUrgent})
	low := create(domain.Task{Title: "low", DueDate: due(24 * time.Hour), Priority: domain.TaskPriorityLow})
	create(domain.Task{Title: "overdue", DueDate: due(-24 * time.Hour)})
	create(domain.Task{Title: "far", DueDate: due(30 * 24 * time.Hour)})
	create(domain.Task{Title: "undated"})
	create(domain.Task{Title: "cancelled", DueDate: due(time.Hour), Status: domain.TaskStatusCancelled})
	done := create(domain.Task{Title: "soon", DueDate: due(2 * time.Hour)})

	got, err := svc.UpcomingTasks(ctx, 7)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	want := []string{done.ID, urgent.ID, low.ID, later.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks, got %+v", len(want), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s (%s)", i, id, got[i].ID, got[i].Title)
		}
	}

	if _, _, err := svc.UpdateTaskStatus(ctx, alice, done.ID, domain.TaskStatusCompleted); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	got, err = svc.UpcomingTasks(ctx, 7)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	for _, task := range got {
		if task.ID == done.ID {
			t.Fatalf("completed task still listed")
		}
	}

	_, err = svc.UpcomingTasks(ctx, -1)
	expectKind(t, err, domain.ErrValidation)
}

func TestCompletedPastDueTaskLeavesUpcoming(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	task, _, err := svc.CreateTask(ctx, alice, domain.Task{Title: "renew", DueDate: timePtr(testNow.Add(time.Hour))})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	clock.advance(3 * time.Hour)
	if _, _, err := svc.UpdateTaskStatus(ctx, alice, task.ID, domain.TaskStatusCompleted); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	got, err := svc.UpcomingTasks(ctx, 7)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no upcoming tasks, got %+v", got)
	}
}

func TestCampaignMetricsAndSourcePerformance(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	empty, _, err := svc.CreateCampaign(ctx, alice, domain.Campaign{Name: "Empty"})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	clock.advance(time.Minute)
	if _, _, err := svc.CreateCampaign(ctx, alice, domain.Campaign{Name: "Busy", LeadsCount: 8, ConversionsCount: 2}); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	metrics, err := svc.CampaignMetrics(ctx)
	if err != nil || len(metrics) != 2 {
		t.Fatalf("campaign metrics: %+v (%v)", metrics, err)
	}
	if metrics[0].ConversionRate != 0 || metrics[1].ConversionRate != 25 {
		t.Fatalf("unexpected rates: %+v", metrics)
	}
	one, err := svc.CampaignMetric(ctx, empty.ID)
	if err != nil || one.ConversionRate != 0 {
		t.Fatalf("campaign metric: %+v (%v)", one, err)
	}

	web, _, err := svc.CreateLeadSource(ctx, alice, domain.LeadSource{Name: "Web"})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	clock.advance(time.Minute)
	if _, _, err := svc.CreateLeadSource(ctx, alice, domain.LeadSource{Name: "Events"}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	mustCreateLead(t, svc, domain.Lead{SourceID: strPtr(web.ID), Status: domain.LeadStatusWon})
	mustCreateLead(t, svc, domain.Lead{SourceID: strPtr(web.ID)})
	gone := mustCreateLead(t, svc, domain.Lead{SourceID: strPtr(web.ID), Status: domain.LeadStatusWon})
	if _, _, err := svc.SoftDeleteLead(ctx, alice, gone.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	perf, err := svc.LeadSourcePerformance(ctx)
	if err != nil || len(perf) != 2 {
		t.Fatalf("source performance: %+v (%v)", perf, err)
	}
	if perf[0].Source.ID != web.ID || perf[0].Leads != 2 || perf[0].WonLeads != 1 || perf[0].ConversionRate != 50 {
		t.Fatalf("unexpected web performance: %+v", perf[0])
	}
	if perf[1].Leads != 0 || perf[1].ConversionRate != 0 {
		t.Fatalf("unexpected empty source performance: %+v", perf[1])
	}
}
