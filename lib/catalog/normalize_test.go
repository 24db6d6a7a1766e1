package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"gamefeed-backend/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 20, 15, 0, 0, 0, timezone.Location)

func testNormalizer() Normalizer {
	return Normalizer{
		WindowDays: 7,
		Now:        func() time.Time { return testNow },
	}
}

func validRaw() Raw {
	return Raw{
		Title:       "BO3",
		Genres:      []string{"Action"},
		Tags:        []string{"FPS"},
		Developers:  []string{"Treyarch"},
		Publishers:  []string{"Activision"},
		Platform:    PlatformSteam,
		Price:       2000,
		Discount:    0,
		Score:       90,
		ReleaseDate: testNow.Format(DateLayout),
		Image:       "",
		AgeYears:    18,
		URL:         "https://store.steampowered.com/app/311210",
	}
}

func TestNormalizeAccepted(t *testing.T) {
	n := testNormalizer()
	rec, err := n.Normalize(context.Background(), validRaw())
	require.NoError(t, err)

	require.Equal(t, "BO3", rec.Title)
	require.Equal(t, []string{"Action"}, rec.Genres)
	require.Equal(t, AgePEGI18, rec.AgeRating)
	require.Equal(t, ImageUnavailable, rec.Image)
	require.False(t, rec.NSFW)
	require.Equal(t, timezone.StartOfDay(testNow), rec.ReleaseDate)
}

func TestNormalizeTitleBounds(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	for _, length := range []int{1, 101} {
		raw := validRaw()
		raw.Title = strings.Repeat("a", length)
		_, err := n.Normalize(ctx, raw)
		require.NoError(t, err, "title length %d", length)
	}
	for _, length := range []int{0, 102} {
		raw := validRaw()
		raw.Title = strings.Repeat("a", length)
		_, err := n.Normalize(ctx, raw)
		require.ErrorIs(t, err, ErrMalformed, "title length %d", length)
	}
}

func TestNormalizeTitleDecoding(t *testing.T) {
	n := testNormalizer()
	raw := validRaw()
	raw.Title = "Black%20Ops%203"
	rec, err := n.Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "Black Ops 3", rec.Title)
}

func TestNormalizeTitleCaseOptIn(t *testing.T) {
	raw := validRaw()
	raw.Title = "SOME LOUD TITLE"

	n := testNormalizer()
	rec, err := n.Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "SOME LOUD TITLE", rec.Title)

	n.TitleCaseTitles = true
	rec, err = n.Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "Some Loud Title", rec.Title)
}

func TestNormalizeNumericBounds(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Raw)
		ok     bool
	}{
		{"price free", func(r *Raw) { r.Price = 0 }, true},
		{"price max", func(r *Raw) { r.Price = 32767 }, true},
		{"price overflow", func(r *Raw) { r.Price = 32768 }, false},
		{"price negative", func(r *Raw) { r.Price = -1 }, false},
		{"discount zero", func(r *Raw) { r.Discount = 0 }, true},
		{"discount full", func(r *Raw) { r.Discount = 100 }, true},
		{"discount overflow", func(r *Raw) { r.Discount = 101 }, false},
		{"score sentinel", func(r *Raw) { r.Score = ScoreUnrated }, true},
		{"score max", func(r *Raw) { r.Score = 100 }, true},
		{"score overflow", func(r *Raw) { r.Score = 101 }, false},
		{"score below sentinel", func(r *Raw) { r.Score = -2 }, false},
	}
	for _, c := range cases {
		raw := validRaw()
		c.mutate(&raw)
		_, err := n.Normalize(ctx, raw)
		if c.ok {
			require.NoError(t, err, c.name)
		} else {
			require.ErrorIs(t, err, ErrMalformed, c.name)
		}
	}
}

func TestNormalizeReleaseDateWindow(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	raw := validRaw()
	raw.ReleaseDate = testNow.Format(DateLayout)
	_, err := n.Normalize(ctx, raw)
	require.NoError(t, err, "today")

	raw.ReleaseDate = testNow.AddDate(0, 0, 1).Format(DateLayout)
	_, err = n.Normalize(ctx, raw)
	require.ErrorIs(t, err, ErrMalformed, "tomorrow")

	raw.ReleaseDate = testNow.AddDate(0, 0, -7).Format(DateLayout)
	_, err = n.Normalize(ctx, raw)
	require.NoError(t, err, "window edge")

	raw.ReleaseDate = testNow.AddDate(0, 0, -8).Format(DateLayout)
	_, err = n.Normalize(ctx, raw)
	require.ErrorIs(t, err, ErrMalformed, "outside window")

	raw.ReleaseDate = "sometime soon"
	_, err = n.Normalize(ctx, raw)
	require.ErrorIs(t, err, ErrMalformed, "unparseable")
}

func TestNormalizeGenresRequired(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	raw := validRaw()
	raw.Genres = nil
	_, err := n.Normalize(ctx, raw)
	require.ErrorIs(t, err, ErrMalformed)

	// invalid entries are dropped, one valid entry is enough
	raw.Genres = []string{strings.Repeat("g", 52), "Action"}
	rec, err := n.Normalize(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, []string{"Action"}, rec.Genres)
}

func TestNormalizeOptionalListsDegrade(t *testing.T) {
	n := testNormalizer()
	raw := validRaw()
	raw.Developers = []string{strings.Repeat("d", 152)}
	raw.Publishers = []string{"   "}
	raw.Tags = []string{""}

	rec, err := n.Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Empty(t, rec.Developers)
	require.Empty(t, rec.Publishers)
	require.Empty(t, rec.Tags)
}

func TestNormalizeUnknownPlatformRejected(t *testing.T) {
	n := testNormalizer()
	raw := validRaw()
	raw.Platform = "itch.io"
	_, err := n.Normalize(context.Background(), raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNormalizeAgeRating(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	expected := map[int]AgeRating{
		3: AgePEGI3, 7: AgePEGI7, 12: AgePEGI12, 16: AgePEGI16, 18: AgePEGI18,
		0: AgeNotAssigned, 21: AgeNotAssigned,
	}
	for age, rating := range expected {
		raw := validRaw()
		raw.AgeYears = age
		rec, err := n.Normalize(ctx, raw)
		require.NoError(t, err)
		require.Equal(t, rating, rec.AgeRating, "age %d", age)
	}
}

func TestNormalizeNSFWDerivation(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	raw := validRaw()
	raw.Tags = []string{"Nudity"}
	raw.Genres = []string{"Adventure"}
	rec, err := n.Normalize(ctx, raw)
	require.NoError(t, err)
	require.True(t, rec.NSFW)

	raw = validRaw()
	raw.Genres = []string{"Hentai"}
	rec, err = n.Normalize(ctx, raw)
	require.NoError(t, err)
	require.True(t, rec.NSFW)

	// matching is case-sensitive
	raw = validRaw()
	raw.Tags = []string{"nudity"}
	rec, err = n.Normalize(ctx, raw)
	require.NoError(t, err)
	require.False(t, rec.NSFW)
}

func TestNormalizeImage(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	raw := validRaw()
	raw.Image = "https://cdn.example.com/header.jpg"
	rec, err := n.Normalize(ctx, raw)
	require.NoError(t, err)
	// no ImageClient configured, so the remote check is skipped
	require.Equal(t, raw.Image, rec.Image)

	raw.Image = "https://cdn.example.com/" + strings.Repeat("a", 300)
	rec, err = n.Normalize(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, ImageUnavailable, rec.Image)

	raw.Image = "not a url at all"
	rec, err = n.Normalize(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, ImageUnavailable, rec.Image)
}

// normalize(normalize(x)) == normalize(x)
func TestNormalizeIdempotent(t *testing.T) {
	n := testNormalizer()
	ctx := context.Background()

	raw := validRaw()
	raw.Title = "  Black%20Ops   3 "
	raw.Genres = []string{" Action ", "RPG"}

	first, err := n.Normalize(ctx, raw)
	require.NoError(t, err)

	again, err := n.Normalize(ctx, Raw{
		Title:       first.Title,
		Genres:      first.Genres,
		Tags:        first.Tags,
		Developers:  first.Developers,
		Publishers:  first.Publishers,
		Platform:    first.Platform,
		Price:       first.Price,
		Discount:    first.Discount,
		Score:       first.Score,
		ReleaseDate: first.ReleaseDate.Format(DateLayout),
		Image:       first.Image,
		AgeYears:    18,
		URL:         first.URL,
	})
	require.NoError(t, err)
	// image stays N/A on the round trip
	again.Image = first.Image
	require.Empty(t, cmp.Diff(first, again))
}

func TestNormalizeBatch(t *testing.T) {
	n := testNormalizer()

	bad := validRaw()
	bad.Title = ""
	records, rejected := n.NormalizeBatch(context.Background(), []Raw{validRaw(), bad})
	require.Len(t, records, 1)
	require.Equal(t, []string{""}, rejected)
}
