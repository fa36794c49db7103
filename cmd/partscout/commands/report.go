package commands

import (
	"errors"
	"time"

	"github.com/FranksOps/partscout/internal/report"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/spf13/cobra"
)

var (
	reportVendor string
	reportSince  time.Duration
	reportLimit  int
)

func init() {
	reportCmd.Flags().StringVar(&reportVendor, "vendor", "", "only this vendor")
	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "look back this far; 0 for everything")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0, "at most this many exchanges")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [--vendor murata] [--since 24h]",
	Short: "Summarizes the vendor exchange audit trail.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cfg.Audit.OpenAudit(cmd.Context())
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("report: no audit backend configured (audit.backend)")
		}
		defer store.Close()

		f := storage.Filter{Vendor: reportVendor, Limit: reportLimit}
		if reportSince > 0 {
			since := time.Now().UTC().Add(-reportSince)
			f.Since = &since
		}
		exchanges, err := store.Query(cmd.Context(), f)
		if err != nil {
			return err
		}
		summary := report.GenerateSummary(exchanges)
		if jsonOutput {
			return report.WriteJSON(cmd.OutOrStdout(), summary)
		}
		return report.WriteText(cmd.OutOrStdout(), summary)
	},
}
