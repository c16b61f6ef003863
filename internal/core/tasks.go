package core

import (
	"context"

	"crmcore/pkg/domain"
)

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	LeadID     string
	DealID     string
	AssigneeID string
	Status     domain.TaskStatus
}

func (f TaskFilter) match(t domain.Task) bool {
	if f.LeadID != "" && (t.LeadID == nil || *t.LeadID != f.LeadID) {
		return false
	}
	if f.DealID != "" && (t.DealID == nil || *t.DealID != f.DealID) {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func checkTaskLead(view domain.TransactionView, t domain.Task) error {
	if t.LeadID == nil {
		return nil
	}
	_, err := activeLead(view, *t.LeadID)
	return err
}

// CreateTask persists a task. The assignee defaults to the owner.
func (s *Service) CreateTask(ctx context.Context, principal domain.Principal, task domain.Task) (domain.Task, domain.Result, error) {
	var created domain.Task
	var res domain.Result
	err := s.run(ctx, "create_task", func(ctx context.Context) error {
		if err := validateTask(task); err != nil {
			return err
		}
		owner, err := ownerFor(domain.EntityTask, principal, task.OwnerID)
		if err != nil {
			return err
		}
		task.OwnerID = owner
		if task.AssigneeID == "" {
			task.AssigneeID = owner
		}
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			if err := checkTaskLead(u.tx.Snapshot(), task); err != nil {
				return err
			}
			stampTaskCompletion(&task, u.tx.Now())
			var change domain.Change
			var err error
			created, change, err = u.tx.CreateTask(task)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return created, res, err
}

// UpdateTask applies mutator and keeps completed_at consistent with the status.
func (s *Service) UpdateTask(ctx context.Context, principal domain.Principal, id string, mutator func(*domain.Task) error) (domain.Task, domain.Result, error) {
	return s.updateTask(ctx, "update_task", principal, id, func(t *domain.Task) error {
		if err := mutator(t); err != nil {
			return err
		}
		return validateTask(*t)
	})
}

// UpdateTaskStatus moves a task to status.
func (s *Service) UpdateTaskStatus(ctx context.Context, principal domain.Principal, id string, status domain.TaskStatus) (domain.Task, domain.Result, error) {
	if !status.Valid() {
		err := outOfDomain(domain.EntityTask, "status", status)
		return domain.Task{}, domain.Result{}, s.run(ctx, "update_task_status", func(context.Context) error { return err })
	}
	return s.updateTask(ctx, "update_task_status", principal, id, func(t *domain.Task) error {
		t.Status = status
		return nil
	})
}

func (s *Service) updateTask(ctx context.Context, op string, principal domain.Principal, id string, mutator func(*domain.Task) error) (domain.Task, domain.Result, error) {
	var updated domain.Task
	var res domain.Result
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			now := u.tx.Now()
			var change domain.Change
			var err error
			updated, change, err = u.tx.UpdateTask(id, func(t *domain.Task) error {
				before := t.LeadID
				if err := mutator(t); err != nil {
					return err
				}
				if t.LeadID != nil && (before == nil || *before != *t.LeadID) {
					if err := checkTaskLead(u.tx.Snapshot(), *t); err != nil {
						return err
					}
				}
				stampTaskCompletion(t, now)
				return nil
			})
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return updated, res, err
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, principal domain.Principal, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_task", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			change, err := u.tx.DeleteTask(id)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return res, err
}

// GetTask returns a task by id.
func (s *Service) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := s.run(ctx, "get_task", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			found, ok := v.FindTask(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTask, ID: id}
			}
			task = found
			return nil
		})
	})
	return task, err
}

// ListTasks returns tasks matching filter in creation order.
func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	var out []domain.Task
	err := s.run(ctx, "list_tasks", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, task := range v.ListTasks() {
				if filter.match(task) {
					out = append(out, task)
				}
			}
			return nil
		})
	})
	return out, err
}
