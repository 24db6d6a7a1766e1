package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
	"unicode/utf8"

	"gamefeed-backend/lib/textutil"
	"gamefeed-backend/lib/timezone"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("gamefeed.lib.catalog")

// ErrMalformed is wrapped by every rejection reason so callers can
// treat all of them as "skip this record".
var ErrMalformed = errors.New("malformed record")

const (
	maxTitleLen  = 101
	maxLabelLen  = 51
	maxCoLen     = 151
	maxPrice     = 32767
	maxImageLen  = 256
	imageTimeout = time.Second * 5
)

// DefaultNSFWLabels are matched case-sensitively against tags and
// genres, exactly as the storefronts spell them.
var DefaultNSFWLabels = []string{
	"Hentai", "Mature", "Gore", "Nudity", "NSFW", "Sexual Content",
}

// Normalizer turns Raw observations into Records, rejecting anything
// malformed. It is pure with respect to the catalog: a rejection has no
// side effects anywhere.
type Normalizer struct {
	// WindowDays is the operator-supplied D: release dates must lie in
	// [today-D, today].
	WindowDays int
	// TitleCaseTitles re-cases fully uppercase titles. Off by default
	// because it corrupts proper nouns.
	TitleCaseTitles bool
	// NSFWLabels overrides DefaultNSFWLabels when non-nil.
	NSFWLabels []string
	// ImageClient performs the advisory availability check on cover
	// images. nil skips the remote check (tests, offline runs).
	ImageClient *resty.Client
	// Now is overridable for tests, defaults to the catalog clock.
	Now func() time.Time
}

// NewNormalizer returns a normalizer with the advisory image check
// enabled.
func NewNormalizer(windowDays int) Normalizer {
	client := resty.New()
	client.SetTimeout(imageTimeout)
	return Normalizer{
		WindowDays:  windowDays,
		ImageClient: client,
	}
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return timezone.Now()
}

func (n Normalizer) nsfwLabels() []string {
	if n.NSFWLabels != nil {
		return n.NSFWLabels
	}
	return DefaultNSFWLabels
}

// Normalize applies the field rules in order; the first failing
// required field rejects the record with an error wrapping ErrMalformed.
// Optional fields degrade to their zero behavior instead of rejecting.
// Normalize is idempotent: feeding a normalized record's fields back in
// produces the same record.
func (n Normalizer) Normalize(ctx context.Context, raw Raw) (Record, error) {
	ctx, span := tracer.Start(ctx, "Normalize")
	defer span.End()
	span.SetAttributes(attribute.String("title", raw.Title))

	title := textutil.Clean(raw.Title)
	if n.TitleCaseTitles {
		title = textutil.TitleCase(title)
	}
	if l := utf8.RuneCountInString(title); l < 1 || l > maxTitleLen {
		return Record{}, fmt.Errorf("%w: title length %d out of [1, %d]", ErrMalformed, l, maxTitleLen)
	}

	if !raw.Platform.Valid() {
		return Record{}, fmt.Errorf("%w: unknown platform %q", ErrMalformed, raw.Platform)
	}

	genres := textutil.CleanAll(raw.Genres, 1, maxLabelLen)
	if len(genres) == 0 {
		return Record{}, fmt.Errorf("%w: no valid genre", ErrMalformed)
	}

	if raw.Price < 0 || raw.Price > maxPrice {
		return Record{}, fmt.Errorf("%w: price %d out of [0, %d]", ErrMalformed, raw.Price, maxPrice)
	}
	if raw.Discount < 0 || raw.Discount > 100 {
		return Record{}, fmt.Errorf("%w: discount %d out of [0, 100]", ErrMalformed, raw.Discount)
	}
	if raw.Score != ScoreUnrated && (raw.Score < 0 || raw.Score > 100) {
		return Record{}, fmt.Errorf("%w: score %d out of {-1} ∪ [0, 100]", ErrMalformed, raw.Score)
	}

	released, err := time.ParseInLocation(DateLayout, textutil.Clean(raw.ReleaseDate), timezone.Location)
	if err != nil {
		return Record{}, fmt.Errorf("%w: release date %q: %v", ErrMalformed, raw.ReleaseDate, err)
	}
	today := timezone.StartOfDay(n.now())
	oldest := today.AddDate(0, 0, -n.WindowDays)
	if released.Before(oldest) || released.After(today) {
		return Record{}, fmt.Errorf(
			"%w: release date %s outside [%s, %s]",
			ErrMalformed,
			released.Format(DateLayout),
			oldest.Format(DateLayout),
			today.Format(DateLayout),
		)
	}

	tags := textutil.CleanAll(raw.Tags, 1, maxLabelLen)
	developers := textutil.CleanAll(raw.Developers, 1, maxCoLen)
	publishers := textutil.CleanAll(raw.Publishers, 1, maxCoLen)

	return Record{
		Title:       title,
		Genres:      genres,
		Tags:        tags,
		Developers:  developers,
		Publishers:  publishers,
		Platform:    raw.Platform,
		Price:       raw.Price,
		Discount:    raw.Discount,
		Score:       raw.Score,
		ReleaseDate: released,
		Image:       n.checkImage(ctx, raw.Image),
		AgeRating:   AgeRatingFromPEGI(raw.AgeYears),
		NSFW:        n.deriveNSFW(tags, genres),
		URL:         raw.URL,
	}, nil
}

// NormalizeBatch maps Normalize over a batch, returning the accepted
// records and the titles of the rejected ones for the run summary.
func (n Normalizer) NormalizeBatch(ctx context.Context, raws []Raw) ([]Record, []string) {
	ctx, span := tracer.Start(ctx, "NormalizeBatch")
	defer span.End()

	var records []Record
	var rejected []string
	for _, raw := range raws {
		rec, err := n.Normalize(ctx, raw)
		if err != nil {
			slog.InfoContext(ctx, "rejected record", "title", raw.Title, "err", err)
			rejected = append(rejected, raw.Title)
			continue
		}
		records = append(records, rec)
	}
	span.SetAttributes(
		attribute.Int("accepted", len(records)),
		attribute.Int("rejected", len(rejected)),
	)
	return records, rejected
}

func (n Normalizer) deriveNSFW(tags, genres []string) bool {
	for _, label := range n.nsfwLabels() {
		for _, t := range tags {
			if t == label {
				return true
			}
		}
		for _, g := range genres {
			if g == label {
				return true
			}
		}
	}
	return false
}

// checkImage is advisory: any failure stores the unavailable marker,
// it never rejects the record.
func (n Normalizer) checkImage(ctx context.Context, image string) string {
	if image == "" || image == ImageUnavailable {
		return ImageUnavailable
	}
	if len(image) > maxImageLen {
		return ImageUnavailable
	}
	link, err := url.Parse(image)
	if err != nil || (link.Scheme != "http" && link.Scheme != "https") {
		return ImageUnavailable
	}
	if n.ImageClient == nil {
		return image
	}

	res, err := n.ImageClient.R().SetContext(ctx).Head(image)
	if err != nil || res.StatusCode() != 200 {
		res, err = n.ImageClient.R().SetContext(ctx).Get(image)
		if err != nil || res.StatusCode() != 200 {
			slog.DebugContext(ctx, "cover image unreachable", "url", image)
			return ImageUnavailable
		}
	}
	return image
}
