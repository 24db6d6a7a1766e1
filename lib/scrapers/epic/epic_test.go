package epic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func newTestScraper(endpoint string) *Scraper {
	scraper := New()
	scraper.Endpoint = endpoint
	return scraper
}

func graphqlServer(t *testing.T, handlers map[string]string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			OperationName string `json:"operationName"`
		}
		err := json.NewDecoder(r.Body).Decode(&envelope)
		require.NoError(t, err)

		body, ok := handlers[envelope.OperationName]
		if !ok {
			http.Error(w, "unknown operation", http.StatusBadRequest)
			return
		}
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

const searchBody = `{"data": {"Catalog": {"searchStore": {
	"elements": [
		{
			"title": "Neon Drift",
			"namespace": "neondrift",
			"releaseDate": "2015-11-06T15:00:00.000Z",
			"keyImages": [
				{"type": "OfferImageTall", "url": "https://cdn.epicgames.com/neon_tall.jpg"},
				{"type": "OfferImageWide", "url": "https://cdn.epicgames.com/neon_wide.jpg"}
			],
			"customAttributes": [
				{"key": "developerName", "value": "Neon Labs"},
				{"key": "publisherName", "value": "Drift Publishing"}
			],
			"tags": [
				{"name": "Racing", "groupName": "genre"},
				{"name": "Arcade", "groupName": "genre"},
				{"name": "Synthwave", "groupName": "feature"}
			],
			"ageGatings": [{"ratingSystem": "PEGI", "ageControl": 12}],
			"catalogNs": {"mappings": [{"pageSlug": "neon-drift"}]},
			"price": {"totalPrice": {"discountPrice": 1499, "originalPrice": 1999}},
			"promotions": {"promotionalOffers": [
				{"promotionalOffers": [{"discountSetting": {"discountPercentage": 75}}]}
			]}
		},
		{
			"title": "Old Relic",
			"namespace": "oldrelic",
			"releaseDate": "2015-10-01T10:00:00.000Z",
			"keyImages": [],
			"customAttributes": [],
			"tags": [{"name": "Adventure", "groupName": "genre"}],
			"ageGatings": [],
			"catalogNs": {"mappings": []},
			"price": {"totalPrice": {"discountPrice": 999, "originalPrice": 999}},
			"promotions": null
		}
	],
	"paging": {"count": 40, "total": 2}
}}}}`

const ratingBody = `{"data": {"RatingsPolls": {"getProductResult": {"averageRating": 4.8}}}}`

func TestExtract(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"searchStoreQuery": searchBody,
		"getProductResult": ratingBody,
	})
	scraper := newTestScraper(server.URL)

	target := time.Date(2015, 11, 1, 0, 0, 0, 0, timezone.Location)
	raws, err := scraper.Extract(context.Background(), target)
	require.NoError(t, err)
	// the older element ends the scan
	require.Len(t, raws, 1)

	raw := raws[0]
	require.Equal(t, "Neon Drift", raw.Title)
	require.Equal(t, []string{"Racing", "Arcade"}, raw.Genres)
	require.Equal(t, []string{"Synthwave"}, raw.Tags)
	require.Equal(t, []string{"Neon Labs"}, raw.Developers)
	require.Equal(t, []string{"Drift Publishing"}, raw.Publishers)
	require.Equal(t, catalog.PlatformEpic, raw.Platform)
	require.Equal(t, 1499, raw.Price)
	require.Equal(t, 25, raw.Discount)
	// 4.8 of 5 stars maps onto the percent scale
	require.Equal(t, 96, raw.Score)
	require.Equal(t, "6 Nov, 2015", raw.ReleaseDate)
	require.Equal(t, "https://cdn.epicgames.com/neon_wide.jpg", raw.Image)
	require.Equal(t, 12, raw.AgeYears)
	require.Equal(t, "https://store.epicgames.com/en-US/p/neon-drift", raw.URL)
}

func TestExtractRatingUnavailable(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"searchStoreQuery": searchBody,
	})
	scraper := newTestScraper(server.URL)

	target := time.Date(2015, 11, 1, 0, 0, 0, 0, timezone.Location)
	raws, err := scraper.Extract(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	require.Equal(t, catalog.ScoreUnrated, raws[0].Score)
}

func TestExtractBackendUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	scraper := newTestScraper(server.URL)

	raws, err := scraper.Extract(context.Background(), timezone.Now())
	require.NoError(t, err)
	require.Empty(t, raws)
}

func TestExtractGraphqlErrors(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"searchStoreQuery": `{"data": null, "errors": [{"message": "rate limited"}]}`,
	})
	scraper := newTestScraper(server.URL)

	raws, err := scraper.Extract(context.Background(), timezone.Now())
	require.NoError(t, err)
	require.Empty(t, raws)
}

func TestDiscountPercent(t *testing.T) {
	var element storeElement
	require.Equal(t, 0, discountPercent(element))

	err := json.Unmarshal([]byte(`{"promotions": {"promotionalOffers": [
		{"promotionalOffers": [{"discountSetting": {"discountPercentage": 0}}]}
	]}}`), &element)
	require.NoError(t, err)
	// zero retained means a free-week promotion
	require.Equal(t, 100, discountPercent(element))
}

func TestScaleRating(t *testing.T) {
	require.Equal(t, 96, scaleRating(4.8))
	// extra decimals truncate to tenths instead of rounding up
	require.Equal(t, 96, scaleRating(4.85))
	require.Equal(t, 98, scaleRating(4.9))
	require.Equal(t, 100, scaleRating(5.0))
	require.Equal(t, 2, scaleRating(0.1))
	require.Equal(t, catalog.ScoreUnrated, scaleRating(0))
}

func TestParseReleaseDate(t *testing.T) {
	released, err := parseReleaseDate("2015-11-06T23:30:00.000Z")
	require.NoError(t, err)
	require.Equal(t, "6 Nov, 2015", released.Format(catalog.DateLayout))

	_, err = parseReleaseDate("soon")
	require.Error(t, err)
}
