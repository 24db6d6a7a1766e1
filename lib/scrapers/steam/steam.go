// Package steam scrapes the Steam "newest releases" search. The search
// page is script-rendered and infinite-scrolling, so the listing goes
// through the browser driver; detail pages are plain HTTP.
package steam

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/telemetry"
	"gamefeed-backend/lib/textutil"
	"gamefeed-backend/lib/timezone"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamefeed.scrapers.steam")

const searchURL = "https://store.steampowered.com/search/?sort_by=Released_DESC&category1=998&ndl=1"

// maxScrollAttempts bounds the scroll loop; browser pages block for
// seconds at a time and an unreachable target date must not hang the
// run forever.
const maxScrollAttempts = 100

type Pager interface {
	Navigate(ctx context.Context, url string) error
	ScrollUntil(ctx context.Context, maxAttempts int, found func(*goquery.Document) bool) (*goquery.Document, error)
}

type Scraper struct {
	http  *resty.Client
	pager Pager
}

func New(pager Pager) *Scraper {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err == nil {
		client.SetCookieJar(jar)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	// pre-answer the age gate so mature detail pages render
	client.SetCookies([]*http.Cookie{
		{Name: "birthtime", Value: "568022401", Domain: "store.steampowered.com", Path: "/"},
		{Name: "wants_mature_content", Value: "1", Domain: "store.steampowered.com", Path: "/"},
	})

	telemetry.InstrumentResty(client, "gamefeed.scrapers.steam.http")

	return &Scraper{
		http:  client,
		pager: pager,
	}
}

func (s *Scraper) Platform() catalog.Platform {
	return catalog.PlatformSteam
}

// Extract scrolls the newest-releases search until an entry released on
// targetDate is visible, then scrapes every collected detail page that
// falls in [targetDate, today]. A single broken detail page is skipped;
// failing to reach the target date is browser.ErrScrollExhausted.
func (s *Scraper) Extract(ctx context.Context, targetDate time.Time) ([]catalog.Raw, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()

	targetStr := targetDate.Format(catalog.DateLayout)
	span.SetAttributes(attribute.String("target_date", targetStr))

	err := s.pager.Navigate(ctx, searchURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load search page")
		return nil, err
	}

	doc, err := s.pager.ScrollUntil(ctx, maxScrollAttempts, func(doc *goquery.Document) bool {
		found := false
		doc.Find("div.search_released").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if releasedOnOrBefore(sel.Text(), targetDate) {
				found = true
				return false
			}
			return true
		})
		return found
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach target date")
		return nil, err
	}

	links := searchResultLinks(doc)
	slog.InfoContext(ctx, "collected detail links", "count", len(links))

	var out []catalog.Raw
	for _, link := range links {
		raw, err := s.scrapeDetail(ctx, link)
		if err != nil {
			slog.WarnContext(ctx, "skipping detail page", "url", link, "err", err)
			continue
		}
		if released, perr := time.ParseInLocation(catalog.DateLayout, raw.ReleaseDate, timezone.Location); perr == nil && released.Before(timezone.StartOfDay(targetDate)) {
			// the scroll loop overshoots past the cutoff
			continue
		}
		out = append(out, raw)
	}

	span.SetAttributes(attribute.Int("records", len(out)))
	return out, nil
}

// releasedOnOrBefore reports whether a search row's release label is on
// or before the cutoff, which is the scroll loop's stop condition.
func releasedOnOrBefore(label string, cutoff time.Time) bool {
	released, err := time.ParseInLocation(catalog.DateLayout, textutil.Clean(label), timezone.Location)
	if err != nil {
		// "Coming soon", "Q4 2024" and friends
		return false
	}
	return !released.After(timezone.StartOfDay(cutoff))
}

func (s *Scraper) scrapeDetail(ctx context.Context, link string) (catalog.Raw, error) {
	ctx, span := tracer.Start(ctx, "scrapeDetail")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	res, err := s.http.R().SetContext(ctx).Get(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch detail page")
		return catalog.Raw{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse detail page")
		return catalog.Raw{}, err
	}

	return parseDetail(doc, link)
}
