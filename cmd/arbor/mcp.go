package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP server, so AI agents can hold
conversations with the dialog flows as tools.

Supported transports:
- stdio (default): Standard input/output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMCP(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func runMCP(cmd *cobra.Command) error {
	h, err := newHost(cmd)
	if err != nil {
		return err
	}
	defer h.cleanup()

	transport, _ := cmd.Flags().GetString("transport")
	addr, _ := cmd.Flags().GetString("addr")

	srv := mcp.NewServer(h.engine, mcp.WithLogger(h.logger))

	switch transport {
	case "stdio":
		// Logs already go to stderr; stdout stays clean for JSON-RPC.
		h.logger.Info("starting mcp server", "transport", "stdio")
		return srv.ServeStdio()
	case "sse":
		h.logger.Info("starting mcp server", "transport", "sse", "addr", addr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.ServeSSE(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		h.logger.Info("mcp server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
	}
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":3001", "Address to listen on (only for SSE)")
}
