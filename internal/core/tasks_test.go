package core

import (
	"context"
	"testing"
	"time"

	"crmcore/pkg/domain"
)

func TestCreateTaskDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	task, _, err := svc.CreateTask(context.Background(), alice, domain.Task{Title: "follow up"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.TaskStatusOpen || task.Priority != domain.TaskPriorityMedium {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	if task.AssigneeID != alice.UserID {
		t.Fatalf("expected assignee to default to owner, got %q", task.AssigneeID)
	}
	if task.CompletedAt != nil {
		t.Fatalf("expected no completion stamp")
	}
}

func TestTaskCompletionStamp(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	task, _, err := svc.CreateTask(ctx, alice, domain.Task{Title: "ship"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	clock.advance(time.Hour)
	done, _, err := svc.UpdateTaskStatus(ctx, alice, task.ID, domain.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("expected completion stamped at clock time, got %v", done.CompletedAt)
	}

	reopened, _, err := svc.UpdateTaskStatus(ctx, alice, task.ID, domain.TaskStatusInProgress)
	if err != nil {
		t.Fatalf("reopen task: %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Fatalf("expected completion cleared, got %v", reopened.CompletedAt)
	}

	_, _, err = svc.UpdateTaskStatus(ctx, alice, task.ID, "blocked")
	expectKind(t, err, domain.ErrValidation)
	_, _, err = svc.UpdateTask(ctx, alice, task.ID, func(tk *domain.Task) error {
		tk.Priority = "critical"
		return nil
	})
	expectKind(t, err, domain.ErrValidation)
}

func TestTaskLinksMustExist(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.CreateTask(ctx, alice, domain.Task{Title: "x", LeadID: strPtr("missing")})
	expectKind(t, err, domain.ErrNotFound)
	_, _, err = svc.CreateTask(ctx, alice, domain.Task{Title: "x", DealID: strPtr("missing")})
	expectKind(t, err, domain.ErrNotFound)

	lead := mustCreateLead(t, svc, domain.Lead{})
	task, _, err := svc.CreateTask(ctx, alice, domain.Task{Title: "x"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, _, err := svc.SoftDeleteLead(ctx, alice, lead.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_, _, err = svc.UpdateTask(ctx, alice, task.ID, func(tk *domain.Task) error {
		tk.LeadID = strPtr(lead.ID)
		return nil
	})
	expectKind(t, err, domain.ErrNotFound)
}

func TestListAndDeleteTasks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lead := mustCreateLead(t, svc, domain.Lead{})
	first, _, err := svc.CreateTask(ctx, alice, domain.Task{Title: "a", LeadID: strPtr(lead.ID)})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, _, err := svc.CreateTask(ctx, alice, domain.Task{Title: "b", AssigneeID: "user-bob"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	byLead, err := svc.ListTasks(ctx, TaskFilter{LeadID: lead.ID})
	if err != nil || len(byLead) != 1 || byLead[0].ID != first.ID {
		t.Fatalf("unexpected lead filter result: %+v (%v)", byLead, err)
	}
	byAssignee, err := svc.ListTasks(ctx, TaskFilter{AssigneeID: "user-bob"})
	if err != nil || len(byAssignee) != 1 {
		t.Fatalf("unexpected assignee filter result: %+v (%v)", byAssignee, err)
	}

	if _, err := svc.DeleteTask(ctx, alice, first.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	_, err = svc.GetTask(ctx, first.ID)
	expectKind(t, err, domain.ErrNotFound)
	if countAction(auditFor(t, svc, domain.EntityTask, first.ID), domain.ActionDelete) != 1 {
		t.Fatalf("expected task delete audited")
	}
}
