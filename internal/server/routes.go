package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskqueue/internal/domain"
	"taskqueue/internal/engine"
	"taskqueue/internal/events"
	"taskqueue/internal/llm"
)

type healthResponse struct {
	Status string `json:"status" example:"ok"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body healthResponse `json:"body"`
	}, error) {
		return &struct {
			Body healthResponse `json:"body"`
		}{Body: healthResponse{Status: "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine, gen llm.Generator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		State string `query:"state" doc:"open, pending_approval, completed or all"`
	}) (*struct {
		Body []ProjectListItem `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx, input.State)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectListItem `json:"body"`
		}{Body: mapProjectListings(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body CreateProjectResponse `json:"body"`
	}, error) {
		res, err := e.CreateProject(ctx, engine.CreateProjectOptions{
			InitialPrompt: input.Body.InitialPrompt,
			ProjectPlan:   input.Body.ProjectPlan,
			Tasks:         taskSpecs(input.Body.Tasks),
			AutoApprove:   input.Body.AutoApprove,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateProjectResponse `json:"body"`
		}{Body: CreateProjectResponse{Project: projectResponse(res.Project), Message: res.Message}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-project",
		Method:        http.MethodPost,
		Path:          "/projects/generate",
		Summary:       "Generate a project plan with a language model",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body GenerateProjectRequest `json:"body"`
	}) (*struct {
		Body CreateProjectResponse `json:"body"`
	}, error) {
		attachments := make([]llm.Attachment, 0, len(input.Body.Attachments))
		for _, a := range input.Body.Attachments {
			attachments = append(attachments, llm.Attachment{Name: a.Name, Content: a.Content})
		}
		res, err := e.GenerateProject(ctx, gen, engine.GenerateOptions{
			Prompt:      input.Body.Prompt,
			Provider:    input.Body.Provider,
			Model:       input.Body.Model,
			Attachments: attachments,
			AutoApprove: input.Body.AutoApprove,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateProjectResponse `json:"body"`
		}{Body: CreateProjectResponse{Project: projectResponse(res.Project), Message: res.Message}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project prompt or plan",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ProjectID:     input.ProjectID,
			InitialPrompt: input.Body.InitialPrompt,
			ProjectPlan:   input.Body.ProjectPlan,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/finalize",
		Summary:     "Finalize project",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.FinalizeProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/next-task",
		Summary:     "Get the next task to work on",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body NextTaskResponse `json:"body"`
	}, error) {
		res, err := e.NextTask(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := NextTaskResponse{ProjectID: res.ProjectID, AllTasksDone: res.AllTasksDone, Message: res.Message}
		if res.Task != nil {
			t := taskResponse(res.ProjectID, *res.Task)
			out.Task = &t
		}
		return &struct {
			Body NextTaskResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List the tasks of a project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		State     string `query:"state"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.ListTasks(ctx, engine.TaskFilters{ProjectID: input.ProjectID, State: input.State})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTaskListings(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-tasks",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Append tasks to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      AddTasksRequest `json:"body"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		added, err := e.AddTasks(ctx, input.ProjectID, taskSpecs(input.Body.Tasks))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]TaskResponse, 0, len(added))
		for _, t := range added {
			out = append(out, taskResponse(input.ProjectID, t))
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.GetProjectTask(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(input.ProjectID, t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TaskID    string            `path:"task_id"`
		Body      UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body UpdateTaskResponse `json:"body"`
	}, error) {
		opts := engine.TaskUpdateOptions{
			ProjectID:           input.ProjectID,
			TaskID:              input.TaskID,
			Title:               input.Body.Title,
			Description:         input.Body.Description,
			CompletedDetails:    input.Body.CompletedDetails,
			ToolRecommendations: input.Body.ToolRecommendations,
			RuleRecommendations: input.Body.RuleRecommendations,
		}
		if input.Body.Status != nil {
			st := domain.Status(*input.Body.Status)
			opts.Status = &st
		}
		res, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UpdateTaskResponse `json:"body"`
		}{Body: UpdateTaskResponse{
			Task:             taskResponse(res.ProjectID, res.Task),
			Changed:          res.Changed,
			ApprovalRequired: res.ApprovalRequired,
			Message:          res.Message,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{task_id}/approve",
		Summary:     "Approve a done task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct {
		Body ApproveTaskResponse `json:"body"`
	}, error) {
		res, err := e.ApproveTask(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApproveTaskResponse `json:"body"`
		}{Body: ApproveTaskResponse{
			Task:            taskResponse(res.ProjectID, res.Task),
			AlreadyApproved: res.AlreadyApproved,
			Message:         res.Message,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks across projects",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		State     string `query:"state"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.ListTasks(ctx, engine.TaskFilters{ProjectID: input.ProjectID, State: input.State})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTaskListings(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Find a task by id",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		d, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(d.ProjectID, d.Task)}, nil
	})
}

func registerEvents(api huma.API, r events.Reader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusNotImplemented},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if r == nil {
			return nil, newAPIError(http.StatusNotImplemented, "not_implemented", "event log requires the sqlite store backend", nil)
		}
		evts, err := r.Latest(ctx, normalizeLimit(input.Limit), input.ProjectID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
