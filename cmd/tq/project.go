package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskqueue/internal/app"
	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
	"taskqueue/internal/engine"
	"taskqueue/internal/llm"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "A project holds the user's request, the plan and an ordered list of tasks. It is completed with 'tq project finalize' once every task is done and approved.",
	}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectGenerateCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectNextCmd())
	prj.AddCommand(projectFinalizeCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListProjects(ctx, state)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"ID", "Prompt", "Done", "Approved", "State"})
					for _, p := range items {
						st := "open"
						if p.Completed {
							st = "completed"
						} else if p.AutoApprove {
							st = "open (auto approve)"
						}
						tw.AppendRow(table.Row{
							p.ProjectID,
							truncate(p.InitialPrompt, 40),
							progressBar(p.Done, p.Total, 10),
							progressBar(p.Approved, p.Total, 10),
							st,
						})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "open, pending_approval, completed or all")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() { renderProject(p) })
			})
		},
	}
	return cmd
}

func renderProject(p domain.Project) {
	s := p.Summary()
	fmt.Fprintf(stdout, "Project: %s", p.ProjectID)
	if p.Completed {
		fmt.Fprint(stdout, " (completed)")
	}
	if p.AutoApprove {
		fmt.Fprint(stdout, " [auto approve]")
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Prompt:   %s\n", p.InitialPrompt)
	if p.ProjectPlan != p.InitialPrompt {
		fmt.Fprintf(stdout, "Plan:     %s\n", p.ProjectPlan)
	}
	fmt.Fprintf(stdout, "Done:     %s (%d/%d)\n", progressBar(s.Done, s.Total, 20), s.Done, s.Total)
	fmt.Fprintf(stdout, "Approved: %s (%d/%d)\n", progressBar(s.Approved, s.Total, 20), s.Approved, s.Total)
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "ID", "Title", "Status", "Details"})
	for i, t := range p.Tasks {
		tw.AppendRow(table.Row{i + 1, t.ID, truncate(t.Title, 40), statusText(t), truncate(t.CompletedDetails, 40)})
	}
	tw.Render()
}

// parseTaskFlag reads "Title::Description".
func parseTaskFlag(s string) (engine.TaskSpec, error) {
	title, desc, ok := strings.Cut(s, "::")
	if !ok {
		return engine.TaskSpec{}, apperr.New(apperr.InvalidArgument, "task %q must be written as \"title::description\"", s)
	}
	return engine.TaskSpec{Title: strings.TrimSpace(title), Description: strings.TrimSpace(desc)}, nil
}

func readTaskSpecs(flags []string, file string) ([]engine.TaskSpec, error) {
	specs := []engine.TaskSpec{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, apperr.Wrap(apperr.FileReadError, err, "read tasks file %s", file)
		}
		if err := json.Unmarshal(data, &specs); err != nil {
			return nil, apperr.Wrap(apperr.FileParseError, err, "parse tasks file %s", file)
		}
	}
	for _, f := range flags {
		spec, err := parseTaskFlag(f)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func projectCreateCmd() *cobra.Command {
	var prompt, plan, tasksFile string
	var tasks []string
	var autoApprove bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with its tasks",
		Example: `  tq project create --prompt "Add a login page" \
    --task "Form::Build the login form" --task "Auth::Wire the auth endpoint"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readTaskSpecs(tasks, tasksFile)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateProject(ctx, engine.CreateProjectOptions{
					InitialPrompt: prompt,
					ProjectPlan:   plan,
					Tasks:         specs,
					AutoApprove:   autoApprove,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					renderProject(res.Project)
					fmt.Fprintln(stdout, res.Message)
				})
			})
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "the user's request")
	cmd.Flags().StringVar(&plan, "plan", "", "project plan (defaults to the prompt)")
	cmd.Flags().StringArrayVar(&tasks, "task", nil, "task as \"title::description\" (repeatable)")
	cmd.Flags().StringVar(&tasksFile, "tasks-file", "", "JSON file with an array of tasks")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve tasks automatically when marked done")
	return cmd
}

func projectGenerateCmd() *cobra.Command {
	var opts engine.GenerateOptions
	var attach []string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Plan a project with a language model and create it",
		RunE: func(cmd *cobra.Command, args []string) error {
			attachments, err := llm.ReadAttachments(attach)
			if err != nil {
				return err
			}
			opts.Attachments = attachments
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GenerateProject(ctx, a.Generator, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					renderProject(res.Project)
					fmt.Fprintln(stdout, res.Message)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "what to build")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "openai, google or deepseek (default from config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model name (default from config)")
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "file to add to the prompt (repeatable)")
	cmd.Flags().BoolVar(&opts.AutoApprove, "auto-approve", false, "approve tasks automatically when marked done")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var prompt, plan string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Change a project's prompt or plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.UpdateProject(ctx, engine.ProjectUpdateOptions{
					ProjectID:     args[0],
					InitialPrompt: optionalString(cmd, "prompt", prompt),
					ProjectPlan:   optionalString(cmd, "plan", plan),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() { renderProject(p) })
			})
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "new initial prompt")
	cmd.Flags().StringVar(&plan, "plan", "", "new plan")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				return printMessage(map[string]string{"projectId": args[0], "status": "deleted"}, "Project "+args[0]+" deleted.")
			})
		},
	}
	return cmd
}

func projectNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next <project-id>",
		Short: "Show the next task to work on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.NextTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					if res.Task != nil {
						renderTask(res.ProjectID, *res.Task)
					}
					fmt.Fprintln(stdout, res.Message)
				})
			})
		},
	}
	return cmd
}

func projectFinalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize <project-id>",
		Short: "Complete a project whose tasks are all done and approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.FinalizeProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printMessage(p, "Project "+p.ProjectID+" completed.")
			})
		},
	}
	return cmd
}
