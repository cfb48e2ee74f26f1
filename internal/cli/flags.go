package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ratewise/trustcore/internal/core/config"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/infra/storage/postgres"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Manage suspicious activity flags",
}

var flagsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's active flags",
	Args:  cobra.ExactArgs(1),
	Run:   runFlagsList,
}

var flagsDismissCmd = &cobra.Command{
	Use:   "dismiss <flag-id>",
	Short: "Dismiss a flag after review",
	Args:  cobra.ExactArgs(1),
	Run:   runFlagsDismiss,
}

func init() {
	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsDismissCmd)
	rootCmd.AddCommand(flagsCmd)
}

func openFlagRepo() (*postgres.DB, *postgres.FlagRepo) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db, postgres.NewFlagRepo(db)
}

func runFlagsList(cmd *cobra.Command, args []string) {
	db, repo := openFlagRepo()
	defer func() {
		_ = db.Close()
	}()

	flags, err := repo.ListActiveByUser(context.Background(), args[0])
	if err != nil {
		slog.Error("Failed to list flags", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tREASON\tCREATED")
	for _, f := range flags {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Reason, f.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func runFlagsDismiss(cmd *cobra.Command, args []string) {
	db, repo := openFlagRepo()
	defer func() {
		_ = db.Close()
	}()

	if err := repo.UpdateStatus(context.Background(), args[0], domain.FlagStatusDismissed); err != nil {
		slog.Error("Failed to dismiss flag", "error", err)
		os.Exit(1)
	}
	fmt.Println("Flag dismissed:", args[0])
}
