package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strideworks/coachguard/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := buildEngine(config)
		if err != nil {
			return err
		}
		defer eng.close()

		server := api.NewServer(eng.store, eng.orch, eng.lm, eng.privacy)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Run(config.APIAddr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				slog.Error("API server failed", "error", err)
				return err
			}
		case sig := <-sigCh:
			slog.Info("Shutting down on signal", "signal", sig.String())
			if err := server.Stop(); err != nil {
				slog.Error("Graceful shutdown failed", "error", err)
				return err
			}
		}
		slog.Info("coachguard exited successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
