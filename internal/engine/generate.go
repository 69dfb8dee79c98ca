package engine

import (
	"context"
	"strings"

	"taskqueue/internal/apperr"
	"taskqueue/internal/llm"
)

type GenerateOptions struct {
	Prompt      string
	Provider    string
	Model       string
	Attachments []llm.Attachment
	AutoApprove bool
}

// GenerateProject asks gen for a plan and creates a project from it. The prompt
// becomes the project's initial prompt.
func (e Engine) GenerateProject(ctx context.Context, gen llm.Generator, opts GenerateOptions) (CreateProjectResult, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return CreateProjectResult{}, apperr.New(apperr.MissingParameter, "prompt is required")
	}
	if gen == nil {
		return CreateProjectResult{}, apperr.New(apperr.ConfigurationError, "no plan generator configured")
	}
	plan, err := gen.Generate(ctx, llm.Request{
		Prompt:      opts.Prompt,
		Provider:    opts.Provider,
		Model:       opts.Model,
		Attachments: opts.Attachments,
	})
	if err != nil {
		return CreateProjectResult{}, err
	}
	specs := make([]TaskSpec, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		specs = append(specs, TaskSpec{
			Title:               t.Title,
			Description:         t.Description,
			ToolRecommendations: t.ToolRecommendations,
			RuleRecommendations: t.RuleRecommendations,
		})
	}
	return e.CreateProject(ctx, CreateProjectOptions{
		InitialPrompt: opts.Prompt,
		ProjectPlan:   plan.ProjectPlan,
		Tasks:         specs,
		AutoApprove:   opts.AutoApprove,
	})
}
