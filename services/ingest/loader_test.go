package ingest

import (
	"context"
	"testing"
	"time"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/testutil"
	"gamefeed-backend/lib/timezone"
	"gamefeed-backend/services/catalog/db"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testRecord() catalog.Record {
	return catalog.Record{
		Title:       "Neon Drift",
		Genres:      []string{"Racing", "Arcade"},
		Tags:        []string{"Synthwave"},
		Developers:  []string{"Neon Labs"},
		Publishers:  []string{"Drift Publishing"},
		Platform:    catalog.PlatformSteam,
		Price:       1499,
		Discount:    25,
		Score:       96,
		ReleaseDate: time.Date(2015, 11, 6, 0, 0, 0, 0, timezone.Location),
		Image:       "https://cdn.example.com/neon.jpg",
		AgeRating:   catalog.AgePEGI12,
		NSFW:        false,
		URL:         "https://store.example.com/neon-drift",
	}
}

func newTestLoader(t *testing.T, conn *gorm.DB) *Loader {
	loader, err := NewLoader(conn)
	require.NoError(t, err)
	return loader
}

func count(t *testing.T, conn *gorm.DB, model any) int64 {
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestLoadFreshInsert(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	loader := newTestLoader(t, conn)

	stats, err := loader.Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)

	require.Equal(t, 1, stats.NewGames)
	require.Equal(t, 5, stats.NewVocabulary)
	require.Equal(t, 1, stats.NewAssignments)
	require.Equal(t, 0, stats.UpdatedAssignments)
	require.Equal(t, 5, stats.NewLinks)

	require.EqualValues(t, 1, count(t, conn, &db.Game{}))
	require.EqualValues(t, 2, count(t, conn, &db.Genre{}))
	require.EqualValues(t, 1, count(t, conn, &db.Tag{}))
	require.EqualValues(t, 1, count(t, conn, &db.Developer{}))
	require.EqualValues(t, 1, count(t, conn, &db.Publisher{}))
	require.EqualValues(t, 1, count(t, conn, &db.PlatformAssignment{}))
	require.EqualValues(t, 2, count(t, conn, &db.GenreGamePlatformAssignment{}))
	require.EqualValues(t, 1, count(t, conn, &db.TagGamePlatformAssignment{}))
	require.EqualValues(t, 1, count(t, conn, &db.DeveloperGameAssignment{}))

	var game db.Game
	require.NoError(t, conn.Where("game_name = ?", "Neon Drift").Take(&game).Error)
	require.False(t, game.IsNSFW)

	var rating db.AgeRating
	require.NoError(t, conn.Where("age_rating_id = ?", game.AgeRatingID).Take(&rating).Error)
	require.Equal(t, "PEGI 12", rating.Name)
}

func TestLoadSecondPlatform(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	loader := newTestLoader(t, conn)

	_, err := loader.Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)

	onGOG := testRecord()
	onGOG.Platform = catalog.PlatformGOG
	onGOG.Price = 1299
	stats, err := loader.Load(context.Background(), []catalog.Record{onGOG})
	require.NoError(t, err)

	require.Equal(t, 0, stats.NewGames)
	require.Equal(t, 0, stats.NewVocabulary)
	require.Equal(t, 1, stats.NewAssignments)
	// the new fact row lists its own genres and tags; company links
	// already exist on the game
	require.Equal(t, 3, stats.NewLinks)

	require.EqualValues(t, 1, count(t, conn, &db.Game{}))
	require.EqualValues(t, 2, count(t, conn, &db.PlatformAssignment{}))
	require.EqualValues(t, 4, count(t, conn, &db.GenreGamePlatformAssignment{}))
	require.EqualValues(t, 1, count(t, conn, &db.DeveloperGameAssignment{}))
}

func TestLoadExactReplayIsWriteFree(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	loader := newTestLoader(t, conn)

	_, err := loader.Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)

	stats, err := loader.Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)
	require.Equal(t, 0, stats.NewGames)
	require.Equal(t, 0, stats.NewVocabulary)
	require.Equal(t, 0, stats.NewAssignments)
	require.Equal(t, 0, stats.NewLinks)
	require.Equal(t, 1, stats.UpdatedAssignments)
}

func TestLoadReplayWithColdCaches(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()

	_, err := newTestLoader(t, conn).Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)

	// a fresh process must rediscover rows by name, not re-insert them
	stats, err := newTestLoader(t, conn).Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)
	require.Equal(t, 0, stats.NewGames)
	require.Equal(t, 0, stats.NewVocabulary)
	require.Equal(t, 0, stats.NewAssignments)
	require.Equal(t, 0, stats.NewLinks)
}

func TestLoadLastWriterWins(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	loader := newTestLoader(t, conn)

	_, err := loader.Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)

	repriced := testRecord()
	repriced.Price = 999
	repriced.Discount = 50
	repriced.Score = catalog.ScoreUnrated
	stats, err := loader.Load(context.Background(), []catalog.Record{repriced})
	require.NoError(t, err)
	require.Equal(t, 1, stats.UpdatedAssignments)

	var row db.PlatformAssignment
	require.NoError(t, conn.Take(&row).Error)
	require.EqualValues(t, 999, row.Price)
	require.EqualValues(t, 50, row.Discount)
	require.EqualValues(t, catalog.ScoreUnrated, row.Score)
}

func TestLoadNSFWFlag(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	loader := newTestLoader(t, conn)

	record := testRecord()
	record.Title = "After Midnight"
	record.NSFW = true
	_, err := loader.Load(context.Background(), []catalog.Record{record})
	require.NoError(t, err)

	var game db.Game
	require.NoError(t, conn.Where("game_name = ?", "After Midnight").Take(&game).Error)
	require.True(t, game.IsNSFW)
}

func TestLoadGameMetadataLastWriterWins(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	loader := newTestLoader(t, conn)

	_, err := loader.Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)

	relisted := testRecord()
	relisted.Image = "https://cdn.example.com/neon_v2.jpg"
	relisted.AgeRating = catalog.AgePEGI16
	relisted.NSFW = true
	stats, err := loader.Load(context.Background(), []catalog.Record{relisted})
	require.NoError(t, err)
	require.Equal(t, 0, stats.NewGames)

	var game db.Game
	require.NoError(t, conn.Where("game_name = ?", "Neon Drift").Take(&game).Error)
	require.Equal(t, "https://cdn.example.com/neon_v2.jpg", game.Image)
	require.True(t, game.IsNSFW)

	var rating db.AgeRating
	require.NoError(t, conn.Where("age_rating_id = ?", game.AgeRatingID).Take(&rating).Error)
	require.Equal(t, "PEGI 16", rating.Name)

	// a fresh process rediscovers the row and overwrites it the same way
	_, err = newTestLoader(t, conn).Load(context.Background(), []catalog.Record{testRecord()})
	require.NoError(t, err)
	require.NoError(t, conn.Where("game_name = ?", "Neon Drift").Take(&game).Error)
	require.Equal(t, "https://cdn.example.com/neon.jpg", game.Image)
	require.False(t, game.IsNSFW)
}

func TestLoadOrderIndependence(t *testing.T) {
	first := testRecord()
	second := testRecord()
	second.Title = "Old Relic"
	second.Platform = catalog.PlatformEpic
	second.Genres = []string{"Adventure", "Racing"}
	third := testRecord()
	third.Platform = catalog.PlatformGOG

	orderings := [][]catalog.Record{
		{first, second, third},
		{third, first, second},
		{second, third, first},
	}

	type snapshot struct {
		games, genres, assignments, links int64
	}
	var snapshots []snapshot
	for _, records := range orderings {
		conn, cleanup := testutil.SetupCatalog(t, "loader")
		loader := newTestLoader(t, conn)
		_, err := loader.Load(context.Background(), records)
		require.NoError(t, err)
		snapshots = append(snapshots, snapshot{
			games:       count(t, conn, &db.Game{}),
			genres:      count(t, conn, &db.Genre{}),
			assignments: count(t, conn, &db.PlatformAssignment{}),
			links:       count(t, conn, &db.GenreGamePlatformAssignment{}),
		})
		cleanup()
	}

	for _, got := range snapshots[1:] {
		require.Equal(t, snapshots[0], got)
	}
}

func TestNewLoaderUnseededCatalog(t *testing.T) {
	conn, cleanup := testutil.SetupCatalog(t, "loader")
	defer cleanup()
	require.NoError(t, conn.Exec("DELETE FROM platform").Error)

	_, err := NewLoader(conn)
	require.Error(t, err)
}
