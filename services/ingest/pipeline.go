package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gamefeed-backend/lib/catalog"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Extractor is one storefront adapter. Extract returns every raw
// observation released on or after targetDate, newest first or not, the
// pipeline does not care about order.
type Extractor interface {
	Platform() catalog.Platform
	Extract(ctx context.Context, targetDate time.Time) ([]catalog.Raw, error)
}

// Pipeline ties one extractor to the shared normalizer and loader.
type Pipeline struct {
	Extractor  Extractor
	Normalizer *catalog.Normalizer
	Loader     *Loader
}

// RunStats summarizes one pipeline run for the operator.
type RunStats struct {
	Platform  catalog.Platform
	Extracted int
	Accepted  int
	Rejected  []string
	Load      LoadStats

	ExtractTime   time.Duration
	NormalizeTime time.Duration
	LoadTime      time.Duration
}

// Run executes extract, normalize, load for one storefront. Extraction
// errors abort the run; rejected records and partial load failures do
// not.
func (p *Pipeline) Run(ctx context.Context, targetDate time.Time) (RunStats, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("platform", string(p.Extractor.Platform())))

	stats := RunStats{Platform: p.Extractor.Platform()}

	start := time.Now()
	raws, err := p.Extractor.Extract(ctx, targetDate)
	stats.ExtractTime = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract failed")
		return stats, fmt.Errorf("extract %s: %w", p.Extractor.Platform(), err)
	}
	stats.Extracted = len(raws)

	start = time.Now()
	records, rejected := p.Normalizer.NormalizeBatch(ctx, raws)
	stats.NormalizeTime = time.Since(start)
	stats.Accepted = len(records)
	stats.Rejected = rejected

	start = time.Now()
	stats.Load, err = p.Loader.Load(ctx, records)
	stats.LoadTime = time.Since(start)
	if err != nil {
		// phase failures already rolled back their own transactions,
		// the accepted work above them stands
		slog.ErrorContext(ctx, "load finished with failures",
			"platform", p.Extractor.Platform(), "err", err)
	}

	slog.InfoContext(ctx, "pipeline run complete",
		"platform", p.Extractor.Platform(),
		"extracted", stats.Extracted,
		"accepted", stats.Accepted,
		"rejected", len(stats.Rejected),
		"new_games", stats.Load.NewGames,
	)
	return stats, nil
}

// WriteSummary renders the run as a table for the CLI.
func (s RunStats) WriteSummary(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("Ingest: %s", s.Platform))
	t.AppendRows([]table.Row{
		{"extracted", s.Extracted, s.ExtractTime.Round(time.Millisecond)},
		{"accepted", s.Accepted, s.NormalizeTime.Round(time.Millisecond)},
		{"rejected", len(s.Rejected), ""},
		{"new games", s.Load.NewGames, s.LoadTime.Round(time.Millisecond)},
		{"new vocabulary", s.Load.NewVocabulary, ""},
		{"new assignments", s.Load.NewAssignments, ""},
		{"updated assignments", s.Load.UpdatedAssignments, ""},
		{"new links", s.Load.NewLinks, ""},
	})
	t.Render()

	for _, title := range s.Rejected {
		fmt.Fprintf(out, "rejected: %s\n", title)
	}
}
