package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/aretw0/conductor/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(g *globals) *cobra.Command {
	var (
		transport string
		addr      string
		baseURL   string
		imports   []string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Exposes stored flows to AI agents as MCP tools: list_flows, get_flow,
compile_flow, run_flow and describe_cron.

Supported transports:
- stdio (default): standard input/output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote agents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			if len(imports) > 0 {
				if _, err := importFlows(cmd, app, imports); err != nil {
					return err
				}
			}
			srv := mcpadapter.NewServer(app.Engine, app.Sessions(), mcpadapter.WithLogger(app.Logger))

			switch transport {
			case "stdio":
				app.Logger.Info("mcp server starting (stdio)")
				return srv.ServeStdio()
			case "sse":
				if baseURL == "" {
					baseURL = "http://localhost" + addr
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return srv.ServeSSE(ctx, addr, baseURL)
			default:
				return fmt.Errorf("unknown transport %q: supported are stdio and sse", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport protocol: stdio or sse")
	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address (sse only)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL announced to sse clients")
	cmd.Flags().StringSliceVar(&imports, "import", nil, "Import flow files or directories first")
	return cmd
}
