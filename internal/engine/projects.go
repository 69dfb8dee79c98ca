package engine

import (
	"context"
	"strings"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
	"taskqueue/internal/events"
)

type CreateProjectOptions struct {
	InitialPrompt string
	ProjectPlan   string
	Tasks         []TaskSpec
	AutoApprove   bool
}

type CreateProjectResult struct {
	Project domain.Project `json:"project"`
	Message string         `json:"message"`
}

// CreateProject stores a new project with its initial tasks. The plan defaults
// to the initial prompt.
func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (CreateProjectResult, error) {
	if strings.TrimSpace(opts.InitialPrompt) == "" {
		return CreateProjectResult{}, apperr.New(apperr.MissingParameter, "initialPrompt is required")
	}
	if len(opts.Tasks) == 0 {
		return CreateProjectResult{}, apperr.New(apperr.MissingParameter, "at least one task is required")
	}
	if err := validateSpecs(opts.Tasks); err != nil {
		return CreateProjectResult{}, err
	}
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return CreateProjectResult{}, err
	}
	plan := opts.ProjectPlan
	if strings.TrimSpace(plan) == "" {
		plan = opts.InitialPrompt
	}
	c.Projects = append(c.Projects, domain.Project{
		ProjectID:     e.ids().ProjectID(c),
		InitialPrompt: opts.InitialPrompt,
		ProjectPlan:   plan,
		Tasks:         []domain.Task{},
		AutoApprove:   opts.AutoApprove,
	})
	p := &c.Projects[len(c.Projects)-1]
	added := e.appendTasks(c, p, opts.Tasks)
	if err := e.save(ctx, c); err != nil {
		return CreateProjectResult{}, err
	}
	e.logger().InfoContext(ctx, "project created", "project_id", p.ProjectID, "tasks", len(p.Tasks))
	e.emit(ctx, events.Record{Type: "project.created", ProjectID: p.ProjectID, EntityKind: "project", EntityID: p.ProjectID,
		Payload: events.Payload{"tasks": len(p.Tasks), "auto_approve": p.AutoApprove}})
	e.tasksCreated(ctx, p.ProjectID, added)
	return CreateProjectResult{
		Project: *p,
		Message: "Project " + p.ProjectID + " created. Ask for the next task to begin work.",
	}, nil
}

func (e Engine) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	c, err := e.load(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	return *p, nil
}

// ProjectUpdateOptions carries the fields to change; nil leaves a field alone.
type ProjectUpdateOptions struct {
	ProjectID     string
	InitialPrompt *string
	ProjectPlan   *string
}

// UpdateProject edits the prompt and plan. autoApprove is fixed at creation and
// completed projects are frozen.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := projectAt(c, opts.ProjectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Completed {
		return domain.Project{}, apperr.New(apperr.ProjectAlreadyCompleted, "project %s is already completed", p.ProjectID)
	}
	next := *p
	changed := []string{}
	if opts.InitialPrompt != nil {
		if strings.TrimSpace(*opts.InitialPrompt) == "" {
			return domain.Project{}, apperr.New(apperr.InvalidArgument, "initialPrompt must not be empty")
		}
		if *opts.InitialPrompt != next.InitialPrompt {
			next.InitialPrompt = *opts.InitialPrompt
			changed = append(changed, "initialPrompt")
		}
	}
	if opts.ProjectPlan != nil {
		if strings.TrimSpace(*opts.ProjectPlan) == "" {
			return domain.Project{}, apperr.New(apperr.InvalidArgument, "projectPlan must not be empty")
		}
		if *opts.ProjectPlan != next.ProjectPlan {
			next.ProjectPlan = *opts.ProjectPlan
			changed = append(changed, "projectPlan")
		}
	}
	if len(changed) == 0 {
		return *p, nil
	}
	*p = next
	if err := e.save(ctx, c); err != nil {
		return domain.Project{}, err
	}
	e.emit(ctx, events.Record{Type: "project.updated", ProjectID: p.ProjectID, EntityKind: "project", EntityID: p.ProjectID,
		Payload: events.Payload{"fields": changed}})
	return *p, nil
}

// DeleteProject removes a project and all of its tasks.
func (e Engine) DeleteProject(ctx context.Context, projectID string) error {
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return err
	}
	if _, err := projectAt(c, projectID); err != nil {
		return err
	}
	i := c.ProjectIndex(projectID)
	removed := len(c.Projects[i].Tasks)
	c.Projects = append(c.Projects[:i], c.Projects[i+1:]...)
	if err := e.save(ctx, c); err != nil {
		return err
	}
	e.logger().InfoContext(ctx, "project deleted", "project_id", projectID)
	e.emit(ctx, events.Record{Type: "project.deleted", ProjectID: projectID, EntityKind: "project", EntityID: projectID,
		Payload: events.Payload{"tasks": removed}})
	return nil
}

type ProjectListing struct {
	ProjectID     string `json:"projectId"`
	InitialPrompt string `json:"initialPrompt"`
	Completed     bool   `json:"completed"`
	AutoApprove   bool   `json:"autoApprove"`
	domain.Summary
}

// ListProjects returns the projects matching state, in store order.
func (e Engine) ListProjects(ctx context.Context, state string) ([]ProjectListing, error) {
	st, err := parseState(state)
	if err != nil {
		return nil, err
	}
	c, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	out := []ProjectListing{}
	for _, p := range c.Projects {
		if !p.Matches(st) {
			continue
		}
		out = append(out, ProjectListing{
			ProjectID:     p.ProjectID,
			InitialPrompt: p.InitialPrompt,
			Completed:     p.Completed,
			AutoApprove:   p.AutoApprove,
			Summary:       p.Summary(),
		})
	}
	return out, nil
}

type NextTaskResult struct {
	ProjectID    string       `json:"projectId"`
	Task         *domain.Task `json:"task,omitempty"`
	AllTasksDone bool         `json:"allTasksDone"`
	Message      string       `json:"message"`
}

// NextTask returns the first task in project order that has not been approved.
// A done but unapproved task is returned again so it gets approved before work moves on.
func (e Engine) NextTask(ctx context.Context, projectID string) (NextTaskResult, error) {
	c, err := e.load(ctx)
	if err != nil {
		return NextTaskResult{}, err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return NextTaskResult{}, err
	}
	for _, t := range p.Tasks {
		if t.Approved {
			continue
		}
		msg := "Next task is " + t.ID + ". Mark it done with completed details when finished."
		if t.Status == domain.StatusDone {
			msg = "Task " + t.ID + " is done and awaits approval."
		}
		return NextTaskResult{ProjectID: p.ProjectID, Task: &t, Message: msg}, nil
	}
	return NextTaskResult{
		ProjectID:    p.ProjectID,
		AllTasksDone: true,
		Message:      "All tasks are done and approved. Finalize project " + p.ProjectID + " to complete it.",
	}, nil
}

// FinalizeProject marks a project completed once every task is done and approved.
func (e Engine) FinalizeProject(ctx context.Context, projectID string) (domain.Project, error) {
	defer e.lock()()
	c, err := e.load(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := projectAt(c, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Completed {
		return domain.Project{}, apperr.New(apperr.ProjectAlreadyCompleted, "project %s is already completed", p.ProjectID)
	}
	var notDone, notApproved []string
	for _, t := range p.Tasks {
		if t.Status != domain.StatusDone {
			notDone = append(notDone, t.ID)
		} else if !t.Approved {
			notApproved = append(notApproved, t.ID)
		}
	}
	if len(notDone) > 0 {
		return domain.Project{}, apperr.New(apperr.TasksNotAllDone, "not all tasks in project %s are done", p.ProjectID).
			With("task_ids", notDone)
	}
	if len(notApproved) > 0 {
		return domain.Project{}, apperr.New(apperr.TasksNotAllApproved, "not all tasks in project %s are approved", p.ProjectID).
			With("task_ids", notApproved)
	}
	p.Completed = true
	if err := e.save(ctx, c); err != nil {
		return domain.Project{}, err
	}
	e.logger().InfoContext(ctx, "project finalized", "project_id", p.ProjectID)
	e.emit(ctx, events.Record{Type: "project.finalized", ProjectID: p.ProjectID, EntityKind: "project", EntityID: p.ProjectID})
	return *p, nil
}

func parseState(s string) (domain.State, error) {
	st, err := domain.ParseState(strings.TrimSpace(s))
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidState, err, "invalid state %q", s).With("state", s)
	}
	return st, nil
}
