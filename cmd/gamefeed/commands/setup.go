package commands

import (
	"log/slog"

	"gamefeed-backend/lib/configutil"
	"gamefeed-backend/lib/util/serviceutil"
	"gamefeed-backend/services/catalog/db"
	"gamefeed-backend/services/notifier"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Migrates the catalog schema, seeds vocabularies and creates views.",
	Run: func(cmd *cobra.Command, args []string) {
		configutil.LoadEnv()

		conn, err := db.OpenFromEnv()
		if err != nil {
			serviceutil.Fatal("failed to open catalog database", err)
		}
		if err := db.Migrate(conn); err != nil {
			serviceutil.Fatal("failed to migrate catalog schema", err)
		}
		if err := notifier.Migrate(conn); err != nil {
			serviceutil.Fatal("failed to migrate notifier schema", err)
		}
		slog.Info("catalog is ready")
	},
}
