package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskqueue/internal/app"
	"taskqueue/internal/mcp"
	"taskqueue/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				logger := a.Logger.With("component", "http")
				handler, err := server.New(server.Config{
					Engine:    a.Engine,
					Generator: a.Generator,
					Events:    a.Events,
					BasePath:  basePath,
					Auth:      server.AuthConfig{JWTSecret: a.Config.Server.JWTSecret},
					Logger:    logger,
				})
				if err != nil {
					return err
				}
				if a.Events != nil && len(a.Config.Webhooks) > 0 {
					d := server.NewWebhookDispatcher(a.Events, a.Config.Webhooks, a.Logger.With("component", "webhooks"))
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				if a.Config.Server.JWTSecret == "" {
					logger.Warn("bearer auth disabled, set server.jwt_secret to enable it")
				}
				fmt.Fprintf(stdout, "Serving taskqueue API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from server.base_path)")
	return cmd
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools to an agent over MCP on stdio",
		Long:  "Speaks the Model Context Protocol on stdin/stdout. Logs go to stderr or the configured log file so stdout carries protocol frames only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				mcp.Version = version
				logger := a.Logger.With("component", "mcp")
				s := mcp.New(mcp.Config{Engine: a.Engine, Generator: a.Generator, Logger: logger})
				err := mcp.Serve(ctx, s, os.Stdin, os.Stdout, logger)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	return cmd
}
