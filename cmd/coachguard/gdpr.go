package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	gdprSubject     string
	gdprRequestedBy string
)

var gdprCmd = &cobra.Command{
	Use:   "gdpr",
	Short: "Data lifecycle operations",
}

var gdprDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete all agent data for a subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := gdprEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		result, err := eng.privacy.DeleteAgentData(cmd.Context(), gdprSubject, gdprRequestedBy)
		if err != nil {
			return fmt.Errorf("deletion failed: %w", err)
		}
		return printJSON(result)
	},
}

var gdprAnonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Anonymize agent data for a subject, preserving learning events",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := gdprEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		result, err := eng.privacy.AnonymizeAgentData(cmd.Context(), gdprSubject, gdprRequestedBy)
		if err != nil {
			return fmt.Errorf("anonymization failed: %w", err)
		}
		return printJSON(result)
	},
}

var gdprSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize stored agent data for a subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := gdprEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		summary, err := eng.privacy.GetDataSummary(cmd.Context(), gdprSubject)
		if err != nil {
			return fmt.Errorf("summary failed: %w", err)
		}
		return printJSON(summary)
	},
}

func gdprEngine() (*engine, error) {
	if gdprSubject == "" {
		return nil, fmt.Errorf("--subject is required")
	}
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildStoreEngine(config)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	gdprCmd.PersistentFlags().StringVar(&gdprSubject, "subject", "", "subject identifier")
	gdprCmd.PersistentFlags().StringVar(&gdprRequestedBy, "requested-by", "subject", "who requested the operation")
	gdprCmd.AddCommand(gdprDeleteCmd)
	gdprCmd.AddCommand(gdprAnonymizeCmd)
	gdprCmd.AddCommand(gdprSummaryCmd)
	rootCmd.AddCommand(gdprCmd)
}
