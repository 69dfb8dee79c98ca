package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskqueue/internal/app"
	"taskqueue/internal/domain"
	"taskqueue/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskApproveCmd())
	return task
}

func renderTask(projectID string, t domain.Task) {
	tw := newTable()
	tw.AppendRow(table.Row{"ID", t.ID})
	tw.AppendRow(table.Row{"Project", projectID})
	tw.AppendRow(table.Row{"Title", t.Title})
	tw.AppendRow(table.Row{"Description", t.Description})
	tw.AppendRow(table.Row{"Status", statusText(t)})
	if t.CompletedDetails != "" {
		tw.AppendRow(table.Row{"Completed", t.CompletedDetails})
	}
	if t.ToolRecommendations != "" {
		tw.AppendRow(table.Row{"Tools", t.ToolRecommendations})
	}
	if t.RuleRecommendations != "" {
		tw.AppendRow(table.Row{"Rules", t.RuleRecommendations})
	}
	tw.Render()
}

func taskListCmd() *cobra.Command {
	var f engine.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, across projects unless --project is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"Project", "ID", "Title", "Status"})
					for _, t := range items {
						tw.AppendRow(table.Row{t.ProjectID, t.ID, truncate(t.Title, 50), statusText(t.Task)})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.State, "state", "", "open, pending_approval, completed or all")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d, func() { renderTask(d.ProjectID, d.Task) })
			})
		},
	}
	return cmd
}

func taskAddCmd() *cobra.Command {
	var spec engine.TaskSpec
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Append a task to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, args[0], spec)
				if err != nil {
					return err
				}
				return printJSONOrTable(t, func() { renderTask(args[0], t) })
			})
		},
	}
	cmd.Flags().StringVar(&spec.Title, "title", "", "task title")
	cmd.Flags().StringVar(&spec.Description, "description", "", "task description")
	cmd.Flags().StringVar(&spec.ToolRecommendations, "tools", "", "recommended tools")
	cmd.Flags().StringVar(&spec.RuleRecommendations, "rules", "", "rules to follow")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, details, tools, rules string
	cmd := &cobra.Command{
		Use:   "update <project-id> <task-id>",
		Short: "Change a task's fields or status",
		Example: `  tq task update proj-1 task-1 --status "in progress"
  tq task update proj-1 task-1 --status done --details "Added the login form"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ProjectID:           args[0],
				TaskID:              args[1],
				Title:               optionalString(cmd, "title", title),
				Description:         optionalString(cmd, "description", description),
				CompletedDetails:    optionalString(cmd, "details", details),
				ToolRecommendations: optionalString(cmd, "tools", tools),
				RuleRecommendations: optionalString(cmd, "rules", rules),
			}
			if cmd.Flags().Changed("status") {
				st := domain.Status(status)
				opts.Status = &st
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					renderTask(res.ProjectID, res.Task)
					fmt.Fprintln(stdout, res.Message)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "not started, in progress or done")
	cmd.Flags().StringVar(&details, "details", "", "what was done (required with --status done)")
	cmd.Flags().StringVar(&tools, "tools", "", "recommended tools")
	cmd.Flags().StringVar(&rules, "rules", "", "rules to follow")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteTask(ctx, args[0], args[1]); err != nil {
					return err
				}
				out := map[string]string{"projectId": args[0], "taskId": args[1], "status": "deleted"}
				return printMessage(out, "Task "+args[1]+" deleted.")
			})
		},
	}
	return cmd
}

func taskApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <project-id> <task-id>",
		Short: "Approve a done task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ApproveTask(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printMessage(res, res.Message)
			})
		},
	}
	return cmd
}
