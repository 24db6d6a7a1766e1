// Package epic pulls new releases from the Epic Games Store backend
// GraphQL API. No browser needed; everything is plain JSON over HTTP.
package epic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/telemetry"
	"gamefeed-backend/lib/timezone"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamefeed.scrapers.epic")

const defaultEndpoint = "https://store.epicgames.com/graphql"

// pageSize keeps responses small enough that a slow backend page does
// not stall the whole run.
const pageSize = 40

// maxPages bounds the pagination loop the same way the scroll loop is
// bounded on the storefronts that need a browser.
const maxPages = 50

type Scraper struct {
	http *resty.Client

	// Endpoint overrides the production GraphQL URL, mainly for tests.
	Endpoint string
}

func New() *Scraper {
	client := resty.New()
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "gamefeed.scrapers.epic.http")

	return &Scraper{
		http:     client,
		Endpoint: defaultEndpoint,
	}
}

func (s *Scraper) Platform() catalog.Platform {
	return catalog.PlatformEpic
}

// Extract pages through the store catalog sorted newest-first and stops
// at the first element released before targetDate. An unreachable
// backend yields an empty batch; a malformed element is skipped.
func (s *Scraper) Extract(ctx context.Context, targetDate time.Time) ([]catalog.Raw, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(attribute.String("target_date", targetDate.Format(catalog.DateLayout)))

	cutoff := timezone.StartOfDay(targetDate)
	var out []catalog.Raw

	for page := 0; page < maxPages; page++ {
		res := &searchStoreResponse{}
		err := s.graphqlQuery(ctx, "searchStoreQuery", searchStoreQuery, searchStoreRequest{
			Count:    pageSize,
			Start:    page * pageSize,
			SortBy:   "releaseDate",
			SortDir:  "DESC",
			Category: "games/edition/base",
			Country:  "GB",
			Locale:   "en-US",
		}, res)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to query store catalog")
			slog.ErrorContext(ctx, "epic catalog unavailable", "err", err)
			return nil, nil
		}

		elements := res.Catalog.SearchStore.Elements
		if len(elements) == 0 {
			break
		}

		done := false
		for _, element := range elements {
			released, err := parseReleaseDate(element.ReleaseDate)
			if err != nil {
				slog.WarnContext(ctx, "skipping element with bad release date",
					"title", element.Title, "date", element.ReleaseDate)
				continue
			}
			if released.Before(cutoff) {
				done = true
				break
			}
			out = append(out, s.buildRaw(ctx, element, released))
		}
		if done || len(elements) < pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("records", len(out)))
	return out, nil
}

func (s *Scraper) buildRaw(ctx context.Context, element storeElement, released time.Time) catalog.Raw {
	var genres, tags []string
	for _, tag := range element.Tags {
		switch tag.GroupName {
		case "genre":
			genres = append(genres, tag.Name)
		default:
			tags = append(tags, tag.Name)
		}
	}

	var developers, publishers []string
	for _, attr := range element.CustomAttributes {
		switch attr.Key {
		case "developerName":
			developers = append(developers, attr.Value)
		case "publisherName":
			publishers = append(publishers, attr.Value)
		}
	}

	age := 0
	for _, gating := range element.AgeGatings {
		if gating.RatingSystem == "PEGI" {
			age = gating.AgeControl
			break
		}
	}

	image := ""
	for _, key := range []string{"OfferImageWide", "Thumbnail", "OfferImageTall"} {
		for _, img := range element.KeyImages {
			if img.Type == key && img.URL != "" {
				image = img.URL
				break
			}
		}
		if image != "" {
			break
		}
	}

	url := ""
	if len(element.CatalogNs.Mappings) > 0 && element.CatalogNs.Mappings[0].PageSlug != "" {
		url = "https://store.epicgames.com/en-US/p/" + element.CatalogNs.Mappings[0].PageSlug
	}

	return catalog.Raw{
		Title:       element.Title,
		Genres:      genres,
		Tags:        tags,
		Developers:  developers,
		Publishers:  publishers,
		Platform:    catalog.PlatformEpic,
		Price:       element.Price.TotalPrice.DiscountPrice,
		Discount:    discountPercent(element),
		Score:       s.fetchScore(ctx, element.Namespace),
		ReleaseDate: released.Format(catalog.DateLayout),
		Image:       image,
		AgeYears:    age,
		URL:         url,
	}
}

// discountPercent converts the promotion's retained-percentage encoding
// (75 means 25% off, 0 means free) into a plain percent-off figure.
func discountPercent(element storeElement) int {
	for _, group := range element.Promotions.PromotionalOffers {
		for _, offer := range group.PromotionalOffers {
			retained := offer.DiscountSetting.DiscountPercentage
			if retained < 0 || retained > 100 {
				continue
			}
			return 100 - retained
		}
	}
	return 0
}

// fetchScore resolves the community poll rating for the offer's
// namespace. Ratings live on a 0-5 star scale, shown to one decimal;
// the score keeps that tenth-of-a-star precision on the percent scale
// (4.8 becomes 96). A missing or failing poll leaves the record
// unrated.
func (s *Scraper) fetchScore(ctx context.Context, namespace string) int {
	if namespace == "" {
		return catalog.ScoreUnrated
	}

	res := &productRatingResponse{}
	err := s.graphqlQuery(ctx, "getProductResult", productRatingQuery, productRatingRequest{
		SandboxID: namespace,
		Locale:    "en-US",
	}, res)
	if err != nil {
		slog.WarnContext(ctx, "rating poll unavailable", "namespace", namespace, "err", err)
		return catalog.ScoreUnrated
	}
	return scaleRating(res.RatingsPolls.GetProductResult.AverageRating)
}

func scaleRating(avg float64) int {
	if avg <= 0 {
		return catalog.ScoreUnrated
	}
	// truncate to tenths; the epsilon keeps values like 4.8 from
	// landing just under their float representation
	tenths := int(avg*10 + 1e-9)
	score := tenths * 2
	if score > 100 {
		score = 100
	}
	return score
}

func parseReleaseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return timezone.StartOfDay(t.In(timezone.Location)), nil
}

func (s *Scraper) graphqlQuery(ctx context.Context, name, query string, variables any, output any) error {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("graphql:%s", name))
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	body, err := json.Marshal(map[string]any{
		"operationName": name,
		"query":         query,
		"variables":     variables,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize json query")
		return err
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(s.Endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return err
	}
	if res.StatusCode() >= 400 {
		err = fmt.Errorf("graphql %s: status %d", name, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status")
		return err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse json response")
		return err
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			messages[i] = e.Message
		}
		err = fmt.Errorf("graphql %s: %s", name, strings.Join(messages, "; "))
		span.RecordError(err)
		span.SetStatus(codes.Error, "graphql errors")
		return err
	}
	if envelope.Data == nil {
		err = errors.New("graphql response has no data")
		span.RecordError(err)
		span.SetStatus(codes.Error, "graphql response has no data")
		return err
	}

	return json.Unmarshal(envelope.Data, output)
}
