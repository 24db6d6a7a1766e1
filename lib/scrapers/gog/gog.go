// Package gog scrapes the GOG "new arrivals" listing. Product pages
// only fill in ratings and company details after scripts run and the
// page has been scrolled to the bottom, so every page load goes through
// the browser driver.
package gog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamefeed.scrapers.gog")

const listingURL = "https://www.gog.com/en/games?order=desc:releaseDate&hideDLCs=true"

type Pager interface {
	Navigate(ctx context.Context, url string) error
	ScrollBottom(ctx context.Context) error
	Document(ctx context.Context) (*goquery.Document, error)
}

type Scraper struct {
	pager Pager
}

func New(pager Pager) *Scraper {
	return &Scraper{pager: pager}
}

func (s *Scraper) Platform() catalog.Platform {
	return catalog.PlatformGOG
}

// Extract walks the new-arrivals listing in page order (newest first)
// and scrapes each product page until one older than targetDate shows
// up, which ends the scan. A failing listing load yields an empty
// batch; a single broken product page is skipped.
func (s *Scraper) Extract(ctx context.Context, targetDate time.Time) ([]catalog.Raw, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(attribute.String("target_date", targetDate.Format(catalog.DateLayout)))

	err := s.pager.Navigate(ctx, listingURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load listing")
		slog.ErrorContext(ctx, "gog listing unavailable", "err", err)
		return nil, nil
	}
	doc, err := s.pager.Document(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to capture listing")
		slog.ErrorContext(ctx, "gog listing unavailable", "err", err)
		return nil, nil
	}

	links := productLinks(doc)
	slog.InfoContext(ctx, "collected product links", "count", len(links))

	cutoff := timezone.StartOfDay(targetDate)
	var out []catalog.Raw
	for _, link := range links {
		raw, err := s.scrapeProduct(ctx, link)
		if err != nil {
			slog.WarnContext(ctx, "skipping product page", "url", link, "err", err)
			continue
		}
		released, err := time.ParseInLocation(catalog.DateLayout, raw.ReleaseDate, timezone.Location)
		if err != nil {
			slog.WarnContext(ctx, "skipping product with bad release date", "url", link, "date", raw.ReleaseDate)
			continue
		}
		if released.Before(cutoff) {
			// listing is sorted newest first, nothing further matters
			break
		}
		out = append(out, raw)
	}

	span.SetAttributes(attribute.Int("records", len(out)))
	return out, nil
}

func productLinks(doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	var links []string
	doc.Find(`a.product-tile[href*="/game/"]`).Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		if href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = "https://www.gog.com" + href
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}

func (s *Scraper) scrapeProduct(ctx context.Context, link string) (catalog.Raw, error) {
	ctx, span := tracer.Start(ctx, "scrapeProduct")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	err := s.pager.Navigate(ctx, link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load product page")
		return catalog.Raw{}, err
	}
	// company and rating widgets render lazily at the bottom
	err = s.pager.ScrollBottom(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scroll product page")
		return catalog.Raw{}, err
	}
	doc, err := s.pager.Document(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to capture product page")
		return catalog.Raw{}, err
	}

	return parseProduct(doc, link)
}
