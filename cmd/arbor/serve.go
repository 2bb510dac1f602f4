package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/adapters/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stateless HTTP server",
	Long: `Starts the engine behind a JSON API. Every POST to /api/messages is
one turn; replies come back in the response body, so any HTTP client can
hold a conversation with nothing but a stable conversation id.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func runServe(cmd *cobra.Command) error {
	h, err := newHost(cmd)
	if err != nil {
		return err
	}
	defer h.cleanup()

	addr, _ := cmd.Flags().GetString("addr")
	if !cmd.Flags().Changed("addr") && h.cfg.Server.Addr != "" {
		addr = h.cfg.Server.Addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewHandler(h.engine, httpapi.WithLogger(h.logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		h.logger.Info("starting server", "addr", srv.Addr, "storage", h.cfg.Storage.Driver)
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt or terminate signals.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		h.logger.Info("starting shutdown", "signal", sig.String())

		// Give outstanding turns a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			h.logger.Error("graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
		h.logger.Info("server stopped")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8979", "Address to listen on")
}
