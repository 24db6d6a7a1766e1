package commands

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gamefeed-backend/lib/browser"
	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/configutil"
	"gamefeed-backend/lib/scrapers/epic"
	"gamefeed-backend/lib/scrapers/gog"
	"gamefeed-backend/lib/scrapers/steam"
	"gamefeed-backend/lib/timezone"
	"gamefeed-backend/lib/util/serviceutil"
	"gamefeed-backend/services/catalog/db"
	"gamefeed-backend/services/ingest"

	"github.com/spf13/cobra"
)

var targetDateFlag *string
var localBrowser *bool
var remoteBrowser *string

func init() {
	targetDateFlag = ingestCmd.Flags().StringP(
		"target_date", "t", "",
		`Ingest releases from this date onward, e.g. "2 Jan, 2006". Defaults to yesterday.`,
	)
	localBrowser = ingestCmd.Flags().BoolP(
		"local", "l", false,
		"Launch a local Chrome instead of attaching to a containerized one.",
	)
	remoteBrowser = ingestCmd.Flags().String(
		"remote", browser.DefaultRemoteURL,
		"DevTools websocket of the containerized browser.",
	)
	rootCmd.AddCommand(ingestCmd)
}

func resolveTargetDate() time.Time {
	if *targetDateFlag == "" {
		return timezone.StartOfDay(timezone.Now()).AddDate(0, 0, -1)
	}
	target, err := time.ParseInLocation(catalog.DateLayout, *targetDateFlag, timezone.Location)
	if err != nil {
		serviceutil.Fatal(`invalid --target_date, expected e.g. "2 Jan, 2006"`, err)
	}
	return timezone.StartOfDay(target)
}

var ingestCmd = &cobra.Command{
	Use:       "ingest <steam|epic|gog>",
	Short:     "Scrapes one storefront's new releases into the catalog.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"steam", "epic", "gog"},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		configutil.LoadEnv()

		target := resolveTargetDate()
		today := timezone.StartOfDay(timezone.Now())
		windowDays := timezone.DaysBetween(target, today)
		if windowDays < 0 {
			serviceutil.Fatal("--target_date is in the future", errors.New(target.Format(catalog.DateLayout)))
		}

		conn, err := db.OpenFromEnv()
		if err != nil {
			serviceutil.Fatal("failed to open catalog database", err)
		}
		loader, err := ingest.NewLoader(conn)
		if err != nil {
			serviceutil.Fatal("failed to initialize loader", err)
		}

		var extractor ingest.Extractor
		switch args[0] {
		case "epic":
			extractor = epic.New()
		case "steam", "gog":
			session, err := browser.NewSession(ctx, browser.Options{
				Local:     *localBrowser,
				RemoteURL: *remoteBrowser,
			})
			if err != nil {
				serviceutil.Fatal("failed to acquire browser session", err)
			}
			defer session.Close()

			if args[0] == "steam" {
				extractor = steam.New(session)
			} else {
				extractor = gog.New(session)
			}
		}

		normalizer := catalog.NewNormalizer(windowDays)
		pipeline := &ingest.Pipeline{
			Extractor:  extractor,
			Normalizer: &normalizer,
			Loader:     loader,
		}

		stats, err := pipeline.Run(ctx, target)
		if errors.Is(err, browser.ErrScrollExhausted) {
			// a partial scroll still loaded everything it reached
			slog.WarnContext(ctx, "storefront listing ended before the target date", "err", err)
		} else if err != nil {
			slog.ErrorContext(ctx, "ingest run failed", "err", err)
		}
		stats.WriteSummary(os.Stdout)
	},
}
