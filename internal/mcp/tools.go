package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"taskqueue/internal/domain"
	"taskqueue/internal/engine"
	"taskqueue/internal/llm"
)

type handlers struct {
	engine engine.Engine
	gen    llm.Generator
	logger *slog.Logger
}

var taskItems = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":               map[string]any{"type": "string"},
		"description":         map[string]any{"type": "string"},
		"toolRecommendations": map[string]any{"type": "string"},
		"ruleRecommendations": map[string]any{"type": "string"},
	},
	"required": []string{"title", "description"},
}

var stateEnum = mcp.Enum(string(domain.StateOpen), string(domain.StatePendingApproval), string(domain.StateCompleted), string(domain.StateAll))

func (h *handlers) tools() []tool {
	return []tool{
		{mcp.NewTool("list_projects",
			mcp.WithDescription("List projects with their task counts, optionally filtered by state."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("state", mcp.Description("open, pending_approval, completed or all (default)"), stateEnum),
		), h.listProjects},
		{mcp.NewTool("read_project",
			mcp.WithDescription("Read a project and its ordered tasks."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("projectId", mcp.Required()),
		), h.readProject},
		{mcp.NewTool("create_project",
			mcp.WithDescription("Create a project with an initial list of tasks."),
			mcp.WithString("initialPrompt", mcp.Required(), mcp.Description("What the user asked for")),
			mcp.WithString("projectPlan", mcp.Description("Defaults to initialPrompt")),
			mcp.WithArray("tasks", mcp.Required(), mcp.Items(taskItems)),
			mcp.WithBoolean("autoApprove", mcp.Description("Approve tasks automatically when they are marked done")),
		), h.createProject},
		{mcp.NewTool("update_project",
			mcp.WithDescription("Change the initial prompt or plan of an unfinished project."),
			mcp.WithString("projectId", mcp.Required()),
			mcp.WithString("initialPrompt"),
			mcp.WithString("projectPlan"),
		), h.updateProject},
		{mcp.NewTool("delete_project",
			mcp.WithDescription("Delete a project and all of its tasks."),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("projectId", mcp.Required()),
		), h.deleteProject},
		{mcp.NewTool("add_tasks_to_project",
			mcp.WithDescription("Append tasks to the end of a project."),
			mcp.WithString("projectId", mcp.Required()),
			mcp.WithArray("tasks", mcp.Required(), mcp.Items(taskItems)),
		), h.addTasks},
		{mcp.NewTool("finalize_project",
			mcp.WithDescription("Mark a project completed once every task is done and approved."),
			mcp.WithString("projectId", mcp.Required()),
		), h.finalizeProject},
		{mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks of one project, or of every project when projectId is omitted."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("projectId"),
			mcp.WithString("state", mcp.Description("open, pending_approval, completed or all (default)"), stateEnum),
		), h.listTasks},
		{mcp.NewTool("read_task",
			mcp.WithDescription("Read a task by id, together with the project that owns it."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("taskId", mcp.Required()),
		), h.readTask},
		{mcp.NewTool("create_task",
			mcp.WithDescription("Append a single task to a project."),
			mcp.WithString("projectId", mcp.Required()),
			mcp.WithString("title", mcp.Required()),
			mcp.WithString("description", mcp.Required()),
			mcp.WithString("toolRecommendations"),
			mcp.WithString("ruleRecommendations"),
		), h.createTask},
		{mcp.NewTool("update_task",
			mcp.WithDescription("Update a task. Marking it done requires completedDetails; approved tasks cannot change."),
			mcp.WithString("projectId", mcp.Required()),
			mcp.WithString("taskId", mcp.Required()),
			mcp.WithString("title"),
			mcp.WithString("description"),
			mcp.WithString("status", mcp.Enum(string(domain.StatusNotStarted), string(domain.StatusInProgress), string(domain.StatusDone))),
			mcp.WithString("completedDetails"),
			mcp.WithString("toolRecommendations"),
			mcp.WithString("ruleRecommendations"),
		), h.updateTask},
		{mcp.NewTool("delete_task",
			mcp.WithDescription("Remove a task from its project."),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("projectId", mcp.Required()),
			mcp.WithString("taskId", mcp.Required()),
		), h.deleteTask},
		{mcp.NewTool("approve_task",
			mcp.WithDescription("Approve a done task. Meant to be called on behalf of a human reviewer."),
			mcp.WithString("projectId", mcp.Required()),
			mcp.WithString("taskId", mcp.Required()),
		), h.approveTask},
		{mcp.NewTool("get_next_task",
			mcp.WithDescription("Get the first task of a project that is not yet approved."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("projectId", mcp.Required()),
		), h.nextTask},
		{mcp.NewTool("generate_project_plan",
			mcp.WithDescription("Ask a language model to plan a project from a prompt and create it."),
			mcp.WithOpenWorldHintAnnotation(true),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithString("provider", mcp.Enum(llm.ProviderOpenAI, llm.ProviderGoogle, llm.ProviderDeepseek)),
			mcp.WithString("model"),
			mcp.WithArray("attachments", mcp.Description("Paths of files whose contents are added to the prompt"),
				mcp.Items(map[string]any{"type": "string"})),
			mcp.WithBoolean("autoApprove"),
		), h.generatePlan},
	}
}

func (h *handlers) listProjects(ctx context.Context, a args) (any, error) {
	state, err := a.strOr("state", "")
	if err != nil {
		return nil, err
	}
	items, err := h.engine.ListProjects(ctx, state)
	if err != nil {
		return nil, err
	}
	return map[string]any{"projects": items}, nil
}

func (h *handlers) readProject(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	return h.engine.GetProject(ctx, id)
}

func (h *handlers) createProject(ctx context.Context, a args) (any, error) {
	prompt, err := a.str("initialPrompt")
	if err != nil {
		return nil, err
	}
	plan, err := a.strOr("projectPlan", "")
	if err != nil {
		return nil, err
	}
	specs, err := a.tasks("tasks")
	if err != nil {
		return nil, err
	}
	auto, err := a.boolean("autoApprove")
	if err != nil {
		return nil, err
	}
	return h.engine.CreateProject(ctx, engine.CreateProjectOptions{
		InitialPrompt: prompt,
		ProjectPlan:   plan,
		Tasks:         specs,
		AutoApprove:   auto,
	})
}

func (h *handlers) updateProject(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	opts := engine.ProjectUpdateOptions{ProjectID: id}
	if opts.InitialPrompt, err = a.optStr("initialPrompt"); err != nil {
		return nil, err
	}
	if opts.ProjectPlan, err = a.optStr("projectPlan"); err != nil {
		return nil, err
	}
	return h.engine.UpdateProject(ctx, opts)
}

func (h *handlers) deleteProject(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	if err := h.engine.DeleteProject(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"projectId": id, "message": "Project " + id + " deleted."}, nil
}

func (h *handlers) addTasks(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	specs, err := a.tasks("tasks")
	if err != nil {
		return nil, err
	}
	added, err := h.engine.AddTasks(ctx, id, specs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"projectId": id, "tasks": added}, nil
}

func (h *handlers) finalizeProject(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	p, err := h.engine.FinalizeProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": p, "message": "Project " + id + " is complete."}, nil
}

func (h *handlers) listTasks(ctx context.Context, a args) (any, error) {
	id, err := a.strOr("projectId", "")
	if err != nil {
		return nil, err
	}
	state, err := a.strOr("state", "")
	if err != nil {
		return nil, err
	}
	items, err := h.engine.ListTasks(ctx, engine.TaskFilters{ProjectID: id, State: state})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": items}, nil
}

func (h *handlers) readTask(ctx context.Context, a args) (any, error) {
	id, err := a.str("taskId")
	if err != nil {
		return nil, err
	}
	return h.engine.GetTask(ctx, id)
}

func (h *handlers) createTask(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	spec, err := taskSpec(a)
	if err != nil {
		return nil, err
	}
	return h.engine.CreateTask(ctx, id, spec)
}

func (h *handlers) updateTask(ctx context.Context, a args) (any, error) {
	opts := engine.TaskUpdateOptions{}
	var err error
	if opts.ProjectID, err = a.str("projectId"); err != nil {
		return nil, err
	}
	if opts.TaskID, err = a.str("taskId"); err != nil {
		return nil, err
	}
	for key, dst := range map[string]**string{
		"title":               &opts.Title,
		"description":         &opts.Description,
		"completedDetails":    &opts.CompletedDetails,
		"toolRecommendations": &opts.ToolRecommendations,
		"ruleRecommendations": &opts.RuleRecommendations,
	} {
		if *dst, err = a.optStr(key); err != nil {
			return nil, err
		}
	}
	status, err := a.optStr("status")
	if err != nil {
		return nil, err
	}
	if status != nil {
		st := domain.Status(*status)
		opts.Status = &st
	}
	return h.engine.UpdateTask(ctx, opts)
}

func (h *handlers) deleteTask(ctx context.Context, a args) (any, error) {
	projectID, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	taskID, err := a.str("taskId")
	if err != nil {
		return nil, err
	}
	if err := h.engine.DeleteTask(ctx, projectID, taskID); err != nil {
		return nil, err
	}
	return map[string]any{"projectId": projectID, "taskId": taskID, "message": "Task " + taskID + " deleted."}, nil
}

func (h *handlers) approveTask(ctx context.Context, a args) (any, error) {
	projectID, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	taskID, err := a.str("taskId")
	if err != nil {
		return nil, err
	}
	return h.engine.ApproveTask(ctx, projectID, taskID)
}

func (h *handlers) nextTask(ctx context.Context, a args) (any, error) {
	id, err := a.str("projectId")
	if err != nil {
		return nil, err
	}
	return h.engine.NextTask(ctx, id)
}

func (h *handlers) generatePlan(ctx context.Context, a args) (any, error) {
	prompt, err := a.str("prompt")
	if err != nil {
		return nil, err
	}
	provider, err := a.strOr("provider", "")
	if err != nil {
		return nil, err
	}
	model, err := a.strOr("model", "")
	if err != nil {
		return nil, err
	}
	paths, err := a.list("attachments")
	if err != nil {
		return nil, err
	}
	auto, err := a.boolean("autoApprove")
	if err != nil {
		return nil, err
	}
	attachments, err := llm.ReadAttachments(paths)
	if err != nil {
		return nil, err
	}
	return h.engine.GenerateProject(ctx, h.gen, engine.GenerateOptions{
		Prompt:      prompt,
		Provider:    provider,
		Model:       model,
		Attachments: attachments,
		AutoApprove: auto,
	})
}
