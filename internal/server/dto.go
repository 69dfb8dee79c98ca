package server

import (
	"encoding/json"

	"taskqueue/internal/domain"
	"taskqueue/internal/engine"
)

// Request payloads

type TaskSpecRequest struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

type CreateProjectRequest struct {
	InitialPrompt string            `json:"initialPrompt"`
	ProjectPlan   string            `json:"projectPlan,omitempty" doc:"Defaults to initialPrompt"`
	Tasks         []TaskSpecRequest `json:"tasks"`
	AutoApprove   bool              `json:"autoApprove,omitempty"`
}

type UpdateProjectRequest struct {
	InitialPrompt *string `json:"initialPrompt,omitempty"`
	ProjectPlan   *string `json:"projectPlan,omitempty"`
}

type AttachmentRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type GenerateProjectRequest struct {
	Prompt      string              `json:"prompt"`
	Provider    string              `json:"provider,omitempty" doc:"openai, google or deepseek"`
	Model       string              `json:"model,omitempty"`
	Attachments []AttachmentRequest `json:"attachments,omitempty"`
	AutoApprove bool                `json:"autoApprove,omitempty"`
}

type AddTasksRequest struct {
	Tasks []TaskSpecRequest `json:"tasks"`
}

type UpdateTaskRequest struct {
	Title               *string `json:"title,omitempty"`
	Description         *string `json:"description,omitempty"`
	Status              *string `json:"status,omitempty" doc:"not started, in progress or done"`
	CompletedDetails    *string `json:"completedDetails,omitempty" doc:"Required when status is done"`
	ToolRecommendations *string `json:"toolRecommendations,omitempty"`
	RuleRecommendations *string `json:"ruleRecommendations,omitempty"`
}

// Response payloads

type TaskResponse struct {
	ID                  string `json:"id"`
	ProjectID           string `json:"projectId,omitempty"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Status              string `json:"status" enum:"not started,in progress,done"`
	Approved            bool   `json:"approved"`
	CompletedDetails    string `json:"completedDetails"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

type SummaryResponse struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	ApprovedTasks  int `json:"approvedTasks"`
}

type ProjectResponse struct {
	ProjectID     string          `json:"projectId"`
	InitialPrompt string          `json:"initialPrompt"`
	ProjectPlan   string          `json:"projectPlan"`
	Completed     bool            `json:"completed"`
	AutoApprove   bool            `json:"autoApprove"`
	Summary       SummaryResponse `json:"summary"`
	Tasks         []TaskResponse  `json:"tasks"`
}

type ProjectListItem struct {
	ProjectID     string          `json:"projectId"`
	InitialPrompt string          `json:"initialPrompt"`
	Completed     bool            `json:"completed"`
	AutoApprove   bool            `json:"autoApprove"`
	Summary       SummaryResponse `json:"summary"`
}

type CreateProjectResponse struct {
	Project ProjectResponse `json:"project"`
	Message string          `json:"message"`
}

type NextTaskResponse struct {
	ProjectID    string        `json:"projectId"`
	Task         *TaskResponse `json:"task,omitempty"`
	AllTasksDone bool          `json:"allTasksDone"`
	Message      string        `json:"message"`
}

type UpdateTaskResponse struct {
	Task             TaskResponse `json:"task"`
	Changed          bool         `json:"changed"`
	ApprovalRequired bool         `json:"approvalRequired"`
	Message          string       `json:"message"`
}

type ApproveTaskResponse struct {
	Task            TaskResponse `json:"task"`
	AlreadyApproved bool         `json:"alreadyApproved"`
	Message         string       `json:"message"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind" enum:"project,task"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

func taskSpecs(in []TaskSpecRequest) []engine.TaskSpec {
	out := make([]engine.TaskSpec, 0, len(in))
	for _, s := range in {
		out = append(out, engine.TaskSpec{
			Title:               s.Title,
			Description:         s.Description,
			ToolRecommendations: s.ToolRecommendations,
			RuleRecommendations: s.RuleRecommendations,
		})
	}
	return out
}

func taskResponse(projectID string, t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                  t.ID,
		ProjectID:           projectID,
		Title:               t.Title,
		Description:         t.Description,
		Status:              string(t.Status),
		Approved:            t.Approved,
		CompletedDetails:    t.CompletedDetails,
		ToolRecommendations: t.ToolRecommendations,
		RuleRecommendations: t.RuleRecommendations,
	}
}

func summaryResponse(s domain.Summary) SummaryResponse {
	return SummaryResponse{TotalTasks: s.Total, CompletedTasks: s.Done, ApprovedTasks: s.Approved}
}

func projectResponse(p domain.Project) ProjectResponse {
	tasks := make([]TaskResponse, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks = append(tasks, taskResponse(p.ProjectID, t))
	}
	return ProjectResponse{
		ProjectID:     p.ProjectID,
		InitialPrompt: p.InitialPrompt,
		ProjectPlan:   p.ProjectPlan,
		Completed:     p.Completed,
		AutoApprove:   p.AutoApprove,
		Summary:       summaryResponse(p.Summary()),
		Tasks:         tasks,
	}
}

func mapProjectListings(items []engine.ProjectListing) []ProjectListItem {
	out := make([]ProjectListItem, 0, len(items))
	for _, p := range items {
		out = append(out, ProjectListItem{
			ProjectID:     p.ProjectID,
			InitialPrompt: p.InitialPrompt,
			Completed:     p.Completed,
			AutoApprove:   p.AutoApprove,
			Summary:       summaryResponse(p.Summary),
		})
	}
	return out
}

func mapTaskListings(items []engine.TaskListing) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t.ProjectID, t.Task))
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Payload:    payload,
	}
}
