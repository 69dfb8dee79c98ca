package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskqueue/internal/app"
	"taskqueue/internal/apperr"
	"taskqueue/internal/config"
	"taskqueue/internal/domain"
)

var version = "dev"

var stdout io.Writer = os.Stdout

var rootCmd = &cobra.Command{
	Use:   "tq",
	Short: "Taskqueue CLI",
	Long: `Taskqueue keeps an agent's work in projects made of ordered tasks.
- Project: a user request, its plan and the tasks that implement it.
- Task: moves not started -> in progress -> done; done needs completed details.
- Approval: a human approves each done task before the next one is handed out,
  unless the project was created with auto approve.
- Finalize: once every task is done and approved the project can be completed.
Serve the same operations over HTTP with 'tq serve' or to an agent with 'tq mcp'.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if code := apperr.CodeOf(err); code != apperr.Unknown {
			fmt.Fprintln(os.Stderr, "code:", code)
		}
		os.Exit(1)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", config.FileName, "config file")
	flags.Bool("json", false, "output JSON")
	flags.String("store", "", "store path (overrides store.path)")
	flags.String("backend", "", "store backend: json or sqlite")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = viper.BindPFlag("json", flags.Lookup("json"))
	_ = viper.BindPFlag("store.path", flags.Lookup("store"))
	_ = viper.BindPFlag("store.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	path := config.FileName
	required := false
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil {
		path = f.Value.String()
		required = f.Changed
	}
	return config.Load(viper.GetViper(), path, required)
}

// withApp loads the configuration, opens the store and closes everything when fn returns.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable prints v as JSON with --json, otherwise calls render.
func printJSONOrTable(v any, render func()) error {
	if viper.GetBool("json") || render == nil {
		return printJSON(v)
	}
	render()
	return nil
}

func printMessage(v any, msg string) error {
	return printJSONOrTable(v, func() { fmt.Fprintln(stdout, msg) })
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func statusText(t domain.Task) string {
	label := string(t.Status)
	switch {
	case t.Approved:
		return text.FgGreen.Sprint(label + " ✓")
	case t.Status == domain.StatusDone:
		return text.FgYellow.Sprint(label + " (awaiting approval)")
	case t.Status == domain.StatusInProgress:
		return text.FgCyan.Sprint(label)
	}
	return label
}

// progressBar draws done/total as a fixed width bar.
func progressBar(done, total, width int) string {
	if total == 0 {
		return strings.Repeat("░", width) + "   -"
	}
	filled := done * width / total
	bar := text.FgGreen.Sprint(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %3d%%", bar, done*100/total)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
