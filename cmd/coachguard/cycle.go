package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strideworks/coachguard/internal/models"
)

var cycleSubject string

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single agent cycle for one subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cycleSubject == "" {
			return fmt.Errorf("--subject is required")
		}
		config, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := buildEngine(config)
		if err != nil {
			return err
		}
		defer eng.close()

		result, err := eng.orch.RunCycle(cmd.Context(), cycleSubject)
		if err != nil {
			if errors.Is(err, models.ErrConsentWithdrawn) || errors.Is(err, models.ErrConsentNotGranted) {
				fmt.Fprintf(os.Stderr, "cycle blocked: %v\n", err)
				return nil
			}
			return fmt.Errorf("agent cycle failed: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	cycleCmd.Flags().StringVar(&cycleSubject, "subject", "", "subject identifier")
	rootCmd.AddCommand(cycleCmd)
}
