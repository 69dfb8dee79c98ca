package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskqueue/internal/app"
	"taskqueue/internal/apperr"
	"taskqueue/internal/config"
)

func logCmd() *cobra.Command {
	logc := &cobra.Command{
		Use:   "log",
		Short: "Read the event log",
	}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Events == nil {
					return apperr.New(apperr.ConfigurationError, "the event log needs the sqlite store backend")
				}
				evts, err := a.Events.Latest(ctx, n, projectID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"ID", "Time", "Type", "Project", "Entity", "Payload"})
					for _, e := range evts {
						tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind + " " + e.EntityID, truncate(e.Payload, 60)})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfgc := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create " + config.FileName,
	}
	cfgc.AddCommand(configShowCmd())
	cfgc.AddCommand(configValidateCmd())
	cfgc.AddCommand(configInitCmd())
	return cfgc
}

func configShowCmd() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML(!reveal)
			if err != nil {
				return err
			}
			fmt.Fprint(stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets in clear")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printMessage(map[string]any{"valid": true, "backend": cfg.Store.Backend}, "config OK")
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootCmd.PersistentFlags().Lookup("config").Value.String()
			if _, err := os.Stat(path); err == nil && !force {
				return apperr.New(apperr.FileWriteError, "%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return apperr.Wrap(apperr.FileReadError, err, "stat %s", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return apperr.Wrap(apperr.FileWriteError, err, "write %s", path)
			}
			return printMessage(map[string]string{"path": path}, "Wrote "+path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
