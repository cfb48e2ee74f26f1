package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ratewise/trustcore/internal/core/config"
	"github.com/ratewise/trustcore/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rating volume and active suspicious flags",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT business_id, rating_count, average_score
		FROM business_aggregates
		ORDER BY rating_count DESC
		LIMIT 20`)
	if err != nil {
		slog.Error("Failed to query aggregates", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BUSINESS\tRATINGS\tAVERAGE")

	for rows.Next() {
		var businessID string
		var count int
		var avg float64
		if err := rows.Scan(&businessID, &count, &avg); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.2f\n", businessID, count, avg)
	}
	_ = w.Flush()

	var flagged int
	if err := db.GetContext(ctx, &flagged,
		`SELECT COUNT(*) FROM suspicious_flags WHERE status = 'active'`); err == nil {
		fmt.Printf("\nActive suspicious flags: %d\n", flagged)
	}
}
