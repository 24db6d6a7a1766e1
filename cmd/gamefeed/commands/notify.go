package commands

import (
	"log/slog"

	"gamefeed-backend/lib/configutil"
	"gamefeed-backend/lib/timezone"
	"gamefeed-backend/lib/util/serviceutil"
	"gamefeed-backend/services/catalog/db"
	"gamefeed-backend/services/notifier"

	"github.com/spf13/cobra"
)

var sinceDays *int

func init() {
	sinceDays = releasesCmd.Flags().IntP(
		"since_days", "d", 1,
		"Include releases from this many days back.",
	)
	notifyCmd.AddCommand(releasesCmd)
	notifyCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(unsubscribeCmd)
}

func notifierService() notifier.Service {
	configutil.LoadEnv()

	conn, err := db.OpenFromEnv()
	if err != nil {
		serviceutil.Fatal("failed to open catalog database", err)
	}
	config, err := notifier.SmtpConfigFromEnv()
	if err != nil {
		serviceutil.Fatal("failed to read smtp config", err)
	}
	return notifier.NewService(conn, config)
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Sends digest emails to subscribers.",
}

var releasesCmd = &cobra.Command{
	Use:   "releases [--since_days <n>]",
	Short: "Emails each subscriber the new releases in their genre.",
	Run: func(cmd *cobra.Command, args []string) {
		service := notifierService()
		since := timezone.StartOfDay(timezone.Now()).AddDate(0, 0, -*sinceDays)
		sent, err := service.SendNewReleaseDigests(cmd.Context(), since)
		if err != nil {
			serviceutil.Fatal("failed to send release digests", err)
		}
		slog.Info("release digests sent", "count", sent)
	},
}

var trendCmd = &cobra.Command{
	Use:   "trends",
	Short: "Emails every subscriber the weekly genre trend.",
	Run: func(cmd *cobra.Command, args []string) {
		service := notifierService()
		sent, err := service.SendWeeklyTrendDigest(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to send trend digest", err)
		}
		slog.Info("trend digests sent", "count", sent)
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <email> <genre>",
	Short: "Subscribes an address to one genre's release digests.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		service := notifierService()
		if err := service.Subscribe(cmd.Context(), args[0], args[1]); err != nil {
			serviceutil.Fatal("failed to subscribe", err)
		}
		slog.Info("subscribed", "email", args[0], "genre", args[1])
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <email> <genre>",
	Short: "Removes one subscription.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		service := notifierService()
		if err := service.Unsubscribe(cmd.Context(), args[0], args[1]); err != nil {
			serviceutil.Fatal("failed to unsubscribe", err)
		}
		slog.Info("unsubscribed", "email", args[0], "genre", args[1])
	},
}
