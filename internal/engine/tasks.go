package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
	"taskqueue/internal/events"
)

// TaskSpec describes a task to be created.
type TaskSpec struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

func validateSpecs(specs []TaskSpec) error {
	for i, s := range specs {
		if strings.TrimSpace(s.Title) == "" {
			return apperr.New(apperr.MissingParameter, "task %d: title is required", i+1).With("index", i)
		}
		if strings.TrimSpace(s.Description) == "" {
			return apperr.New(apperr.MissingParameter, "task %d: description is required", i+1).With("index", i)
		}
	}
	return nil
}

// appendTasks assigns ids one at a time so sequential ids see the tasks already added.
func (e Engine) appendTasks(c *domain.Collection, p *domain.Project, specs []TaskSpec) []domain.Task {
	start := len(p.Tasks)
	for _, s := range specs {
		p.Tasks = append(p.Tasks, domain.Task{
			ID:                  e.ids().TaskID(c),
			Title:               s.Title,
			Description:         s.Description,
			Status:              domain.StatusNotStarted,
			ToolRecommendations: s.ToolRecommendations,
			RuleRecommendations: s.RuleRecommendations,
		})
	}
	return slices.Clone(p.Tasks[start:])
}

// AddTasks appends tasks to an open project, all or nothing.
func (e Engine) AddTasks(ctx context.Context, projectID string, specs []TaskSpec) ([]domain.Task, error) {
	if len(specs) == 0 {
		return nil, apperr.New(apperr.MissingParameter, "at least one task is required")
	}
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return nil, err
	}
	if p.Completed {
		return nil, apperr.New(apperr.ProjectAlreadyCompleted, "project %s is already completed", p.ProjectID)
	}
	added := e.appendTasks(c, p, specs)
	if err := e.save(ctx, c); err != nil {
		return nil, err
	}
	e.tasksCreated(ctx, p.ProjectID, added)
	return added, nil
}

func (e Engine) tasksCreated(ctx context.Context, projectID string, added []domain.Task) {
	for _, t := range added {
		e.logger().DebugContext(ctx, "task created", "project_id", projectID, "task_id", t.ID)
		e.emit(ctx, events.Record{Type: "task.created", ProjectID: projectID, EntityKind: "task", EntityID: t.ID,
			Payload: events.Payload{"title": t.Title}})
	}
}

// CreateTask is AddTasks for a single task.
func (e Engine) CreateTask(ctx context.Context, projectID string, spec TaskSpec) (domain.Task, error) {
	added, err := e.AddTasks(ctx, projectID, []TaskSpec{spec})
	if err != nil {
		return domain.Task{}, err
	}
	return added[0], nil
}

// TaskDetails is a task together with the project that owns it.
type TaskDetails struct {
	ProjectID        string      `json:"projectId"`
	ProjectCompleted bool        `json:"projectCompleted"`
	Task             domain.Task `json:"task"`
}

// GetTask looks a task up across every project.
func (e Engine) GetTask(ctx context.Context, taskID string) (TaskDetails, error) {
	if strings.TrimSpace(taskID) == "" {
		return TaskDetails{}, apperr.New(apperr.MissingParameter, "taskId is required")
	}
	c, err := e.load(ctx)
	if err != nil {
		return TaskDetails{}, err
	}
	pi, ti := c.FindTask(taskID)
	if pi < 0 {
		return TaskDetails{}, apperr.New(apperr.TaskNotFound, "task %s not found", taskID).With("task_id", taskID)
	}
	p := c.Projects[pi]
	return TaskDetails{ProjectID: p.ProjectID, ProjectCompleted: p.Completed, Task: p.Tasks[ti]}, nil
}

func (e Engine) GetProjectTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	c, err := e.load(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := taskAt(p, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return *t, nil
}

type TaskFilters struct {
	ProjectID string
	State     string
}

type TaskListing struct {
	ProjectID string `json:"projectId"`
	domain.Task
}

// ListTasks lists tasks matching the state filter, in store order. Without a
// project id every project is scanned.
func (e Engine) ListTasks(ctx context.Context, f TaskFilters) ([]TaskListing, error) {
	st, err := parseState(f.State)
	if err != nil {
		return nil, err
	}
	c, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	projects := c.Projects
	if f.ProjectID != "" {
		p, err := projectAt(c, f.ProjectID)
		if err != nil {
			return nil, err
		}
		projects = []domain.Project{*p}
	}
	out := []TaskListing{}
	for _, p := range projects {
		for _, t := range p.Tasks {
			if t.Matches(st) {
				out = append(out, TaskListing{ProjectID: p.ProjectID, Task: t})
			}
		}
	}
	return out, nil
}

// TaskUpdateOptions carries the fields to change; nil leaves a field alone.
type TaskUpdateOptions struct {
	ProjectID           string
	TaskID              string
	Title               *string
	Description         *string
	Status              *domain.Status
	CompletedDetails    *string
	ToolRecommendations *string
	RuleRecommendations *string
}

type UpdateTaskResult struct {
	ProjectID        string      `json:"projectId"`
	Task             domain.Task `json:"task"`
	Changed          bool        `json:"changed"`
	ApprovalRequired bool        `json:"approvalRequired"`
	Message          string      `json:"message"`
}

// UpdateTask applies a partial update. Every field is validated before the task
// is touched, so a failing update leaves the store as it was.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (UpdateTaskResult, error) {
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return UpdateTaskResult{}, err
	}
	p, err := projectAt(c, opts.ProjectID)
	if err != nil {
		return UpdateTaskResult{}, err
	}
	t, err := taskAt(p, opts.TaskID)
	if err != nil {
		return UpdateTaskResult{}, err
	}
	if t.Approved {
		return UpdateTaskResult{}, apperr.New(apperr.CannotModifyApprovedTask, "task %s is approved and can no longer be modified", t.ID).
			With("task_id", t.ID)
	}
	next, err := applyTaskUpdate(*t, opts)
	if err != nil {
		return UpdateTaskResult{}, err
	}
	res := UpdateTaskResult{ProjectID: p.ProjectID}
	if next == *t {
		res.Task = *t
		res.ApprovalRequired = t.Status == domain.StatusDone
		res.Message = "Nothing to update."
		return res, nil
	}
	from := t.Status
	if next.Status == domain.StatusDone && p.AutoApprove {
		next.Approved = true
	}
	*t = next
	if err := e.save(ctx, c); err != nil {
		return UpdateTaskResult{}, err
	}
	res.Task = next
	res.Changed = true
	switch {
	case next.Status == domain.StatusDone && next.Approved:
		res.Message = fmt.Sprintf("Task %s marked done and auto-approved. No manual approval is needed.", next.ID)
	case next.Status == domain.StatusDone:
		res.ApprovalRequired = true
		res.Message = fmt.Sprintf("Task %s marked done. It must be approved (project %s, task %s) before work continues.", next.ID, p.ProjectID, next.ID)
	default:
		res.Message = fmt.Sprintf("Task %s updated.", next.ID)
	}
	e.logger().DebugContext(ctx, "task updated", "project_id", p.ProjectID, "task_id", next.ID, "status", next.Status)
	e.emit(ctx, events.Record{Type: "task.updated", ProjectID: p.ProjectID, EntityKind: "task", EntityID: next.ID,
		Payload: events.Payload{"from_status": string(from), "to_status": string(next.Status), "approved": next.Approved}})
	return res, nil
}

func applyTaskUpdate(t domain.Task, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return t, apperr.New(apperr.InvalidArgument, "title must not be empty")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		if strings.TrimSpace(*opts.Description) == "" {
			return t, apperr.New(apperr.InvalidArgument, "description must not be empty")
		}
		t.Description = *opts.Description
	}
	if opts.ToolRecommendations != nil {
		t.ToolRecommendations = *opts.ToolRecommendations
	}
	if opts.RuleRecommendations != nil {
		t.RuleRecommendations = *opts.RuleRecommendations
	}

	target := t.Status
	if opts.Status != nil {
		target = *opts.Status
		if !target.Valid() {
			return t, apperr.New(apperr.InvalidArgument, "invalid status %q (want not started, in progress or done)", target).
				With("status", string(target))
		}
		if target != t.Status {
			if err := ValidateTransition(t.Status, target); err != nil {
				return t, err
			}
		}
	}

	details := opts.CompletedDetails
	switch {
	case target == domain.StatusDone && opts.Status != nil:
		if details == nil || strings.TrimSpace(*details) == "" {
			return t, apperr.New(apperr.CompletedDetailsRequired, "completedDetails is required when marking a task done")
		}
		t.CompletedDetails = *details
	case target == domain.StatusDone:
		if details != nil {
			if strings.TrimSpace(*details) == "" {
				return t, apperr.New(apperr.CompletedDetailsRequired, "completedDetails must not be empty for a done task")
			}
			t.CompletedDetails = *details
		}
	default:
		if details != nil && *details != "" {
			return t, apperr.New(apperr.InvalidArgument, "completedDetails can only be set when the task is done")
		}
		t.CompletedDetails = ""
	}
	t.Status = target
	return t, nil
}

// DeleteTask removes a task regardless of its status or approval.
func (e Engine) DeleteTask(ctx context.Context, projectID, taskID string) error {
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return err
	}
	if _, err := taskAt(p, taskID); err != nil {
		return err
	}
	i := p.TaskIndex(taskID)
	p.Tasks = slices.Delete(p.Tasks, i, i+1)
	if err := e.save(ctx, c); err != nil {
		return err
	}
	e.logger().DebugContext(ctx, "task deleted", "project_id", p.ProjectID, "task_id", taskID)
	e.emit(ctx, events.Record{Type: "task.deleted", ProjectID: p.ProjectID, EntityKind: "task", EntityID: taskID})
	return nil
}

type ApproveTaskResult struct {
	ProjectID       string      `json:"projectId"`
	Task            domain.Task `json:"task"`
	AlreadyApproved bool        `json:"alreadyApproved"`
	Message         string      `json:"message"`
}

// ApproveTask latches approval on a done task. Approving twice succeeds without
// writing anything.
func (e Engine) ApproveTask(ctx context.Context, projectID, taskID string) (ApproveTaskResult, error) {
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return ApproveTaskResult{}, err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return ApproveTaskResult{}, err
	}
	t, err := taskAt(p, taskID)
	if err != nil {
		return ApproveTaskResult{}, err
	}
	if t.Approved {
		return ApproveTaskResult{
			ProjectID: p.ProjectID, Task: *t, AlreadyApproved: true,
			Message: fmt.Sprintf("Task %s was already approved.", t.ID),
		}, nil
	}
	if t.Status != domain.StatusDone {
		return ApproveTaskResult{}, apperr.New(apperr.TaskNotDone, "task %s is %s; only done tasks can be approved", t.ID, t.Status).
			With("task_id", t.ID).With("status", string(t.Status))
	}
	t.Approved = true
	if err := e.save(ctx, c); err != nil {
		return ApproveTaskResult{}, err
	}
	e.logger().InfoContext(ctx, "task approved", "project_id", p.ProjectID, "task_id", t.ID)
	e.emit(ctx, events.Record{Type: "task.approved", ProjectID: p.ProjectID, EntityKind: "task", EntityID: t.ID})
	msg := fmt.Sprintf("Task %s approved.", t.ID)
	if p.Summary().Approved == len(p.Tasks) {
		msg += fmt.Sprintf(" All tasks in project %s are approved; it can be finalized.", p.ProjectID)
	}
	return ApproveTaskResult{ProjectID: p.ProjectID, Task: *t, Message: msg}, nil
}
