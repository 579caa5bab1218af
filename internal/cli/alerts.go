package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"lifesignal/internal/export"
	"lifesignal/internal/models"
	"lifesignal/internal/repository"
	"lifesignal/internal/service"

	"github.com/spf13/cobra"
)

// AlertsCmd 查询已下发的报警记录（需要 PostgreSQL）
func AlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List dispatched alert records from the alert log",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			exportPath, _ := cmd.Flags().GetString("export")

			cfg, log, err := loadConfig("warn")
			if err != nil {
				return err
			}
			defer log.Sync()

			conns, err := service.OpenConnections(cmd.Context(), cfg, service.Needs{DB: true}, log)
			if err != nil {
				return err
			}
			defer conns.Close()

			repo := repository.NewAlertRecordRepository(conns.DB, log)
			records, err := repo.ListAlertRecords(cmd.Context(), cfg.LifeSignal.UserID, time.Now().Add(-since), limit)
			if err != nil {
				return err
			}
			if exportPath != "" {
				data, err := export.GenerateAlertExport(records)
				if err != nil {
					return err
				}
				if err := os.WriteFile(exportPath, data, 0o600); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d alerts to %s\n", len(records), exportPath)
				return nil
			}
			printAlerts(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().Duration("since", 24*time.Hour, "Only show alerts dispatched within this window")
	cmd.Flags().Int("limit", 50, "Maximum number of records")
	cmd.Flags().String("export", "", "Write the records to an .xlsx file instead of printing them")
	return cmd
}

func printAlerts(out io.Writer, records []models.AlertRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No alerts found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEPISODE\tKIND\tCHANNEL\tCONTACT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.DispatchedAt.Format(time.RFC3339), r.EpisodeID, r.TriggeringEvent.Kind, r.Channel, r.ContactName)
	}
	w.Flush()
}
