// Package ingest runs the extract-normalize-load pipeline that keeps
// the catalog current.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/services/catalog/db"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("gamefeed.ingest")

// nearDuplicateThreshold is the Jaro-Winkler similarity above which two
// distinct game names get flagged as probable duplicates. The loader
// still inserts both; the flag is an operator warning, not a merge.
const nearDuplicateThreshold = 0.95

// Loader writes normalized records into the catalog in three phases:
// reference rows first, then platform assignments, then link rows.
// Name-to-id caches grow monotonically across batches so a replayed
// record costs reads, not writes.
type Loader struct {
	conn *gorm.DB

	games      map[string]int32
	developers map[string]int32
	publishers map[string]int32
	genres     map[string]int32
	tags       map[string]int32
	platforms  map[string]int32
	ageRatings map[string]int32
}

// LoadStats reports what one batch changed.
type LoadStats struct {
	NewGames           int
	NewVocabulary      int
	NewAssignments     int
	UpdatedAssignments int
	NewLinks           int
}

// NewLoader reads the seeded vocabularies up front. An unseeded catalog
// is a deployment mistake and fails fast.
func NewLoader(conn *gorm.DB) (*Loader, error) {
	l := &Loader{
		conn:       conn,
		games:      map[string]int32{},
		developers: map[string]int32{},
		publishers: map[string]int32{},
		genres:     map[string]int32{},
		tags:       map[string]int32{},
		platforms:  map[string]int32{},
		ageRatings: map[string]int32{},
	}

	var platforms []db.Platform
	if err := conn.Find(&platforms).Error; err != nil {
		return nil, fmt.Errorf("read platforms: %w", err)
	}
	for _, p := range platforms {
		l.platforms[p.Name] = p.ID
	}
	var ratings []db.AgeRating
	if err := conn.Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("read age ratings: %w", err)
	}
	for _, r := range ratings {
		l.ageRatings[r.Name] = r.ID
	}

	if len(l.platforms) < len(catalog.Platforms) || len(l.ageRatings) < len(catalog.AgeRatings) {
		return nil, errors.New("catalog vocabularies are not seeded, run setup first")
	}
	return l, nil
}

// Load writes one batch. Each phase commits in its own transaction; a
// failed phase is logged and skipped, the rest of the run proceeds on
// whatever ids are already cached.
func (l *Loader) Load(ctx context.Context, records []catalog.Record) (LoadStats, error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	var stats LoadStats
	var failures []error

	if err := l.loadReferences(ctx, records, &stats); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reference phase failed")
		slog.ErrorContext(ctx, "reference phase failed", "err", err)
		failures = append(failures, fmt.Errorf("reference phase: %w", err))
	}
	assignments, err := l.loadAssignments(ctx, records, &stats)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment phase failed")
		slog.ErrorContext(ctx, "assignment phase failed", "err", err)
		failures = append(failures, fmt.Errorf("assignment phase: %w", err))
	}
	if err := l.loadLinks(ctx, records, assignments, &stats); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "link phase failed")
		slog.ErrorContext(ctx, "link phase failed", "err", err)
		failures = append(failures, fmt.Errorf("link phase: %w", err))
	}

	span.SetAttributes(
		attribute.Int("new_games", stats.NewGames),
		attribute.Int("new_assignments", stats.NewAssignments),
		attribute.Int("updated_assignments", stats.UpdatedAssignments),
		attribute.Int("new_links", stats.NewLinks),
	)
	return stats, errors.Join(failures...)
}

// loadReferences upserts games and the open vocabularies. Cache merges
// happen only after the transaction commits so a rollback cannot leave
// ids for rows that were never written.
func (l *Loader) loadReferences(ctx context.Context, records []catalog.Record, stats *LoadStats) error {
	ctx, span := tracer.Start(ctx, "loadReferences")
	defer span.End()

	staged := map[*map[string]int32]map[string]int32{
		&l.games:      {},
		&l.developers: {},
		&l.publishers: {},
		&l.genres:     {},
		&l.tags:       {},
	}

	err := l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if err := l.syncGame(ctx, tx, record, staged[&l.games], stats); err != nil {
				return err
			}
		}

		type vocab struct {
			table   string
			idCol   string
			nameCol string
			cache   *map[string]int32
			names   []string
		}
		vocabs := []vocab{
			{"developer", "developer_id", "developer_name", &l.developers, nil},
			{"publisher", "publisher_id", "publisher_name", &l.publishers, nil},
			{"genre", "genre_id", "genre_name", &l.genres, nil},
			{"tag", "tag_id", "tag_name", &l.tags, nil},
		}
		for _, record := range records {
			vocabs[0].names = append(vocabs[0].names, record.Developers...)
			vocabs[1].names = append(vocabs[1].names, record.Publishers...)
			vocabs[2].names = append(vocabs[2].names, record.Genres...)
			vocabs[3].names = append(vocabs[3].names, record.Tags...)
		}
		for _, v := range vocabs {
			err := l.syncVocabulary(tx, v.table, v.idCol, v.nameCol, *v.cache, staged[v.cache], v.names, stats)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for cache, additions := range staged {
		for name, id := range additions {
			(*cache)[name] = id
		}
	}
	return nil
}

// syncGame makes sure the record's title has a game row. A known game
// gets its metadata (image, age rating, NSFW flag) refreshed so the
// latest observation wins, the same way assignment columns do.
func (l *Loader) syncGame(ctx context.Context, tx *gorm.DB, record catalog.Record, staged map[string]int32, stats *LoadStats) error {
	if id, ok := l.games[record.Title]; ok {
		return l.refreshGameByID(tx, id, record)
	}
	if id, ok := staged[record.Title]; ok {
		return l.refreshGameByID(tx, id, record)
	}

	var game db.Game
	err := tx.Where("game_name = ?", record.Title).Take(&game).Error
	if err == nil {
		staged[record.Title] = game.ID
		return l.refreshGame(tx, game, record)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	l.warnNearDuplicates(ctx, record.Title, staged)

	game = db.Game{
		Name:        record.Title,
		Image:       record.Image,
		AgeRatingID: l.ageRatings[string(record.AgeRating)],
		IsNSFW:      record.NSFW,
	}
	err = tx.Create(&game).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another writer inserted the same title, adopt their row
		if err := tx.Where("game_name = ?", record.Title).Take(&game).Error; err != nil {
			return err
		}
		staged[record.Title] = game.ID
		return nil
	}
	if err != nil {
		return err
	}
	staged[record.Title] = game.ID
	stats.NewGames++
	return nil
}

func (l *Loader) refreshGameByID(tx *gorm.DB, id int32, record catalog.Record) error {
	var game db.Game
	if err := tx.Where("game_id = ?", id).Take(&game).Error; err != nil {
		return err
	}
	return l.refreshGame(tx, game, record)
}

// refreshGame overwrites the mutable game columns when the record
// disagrees with the stored row. An exact replay stays write-free.
func (l *Loader) refreshGame(tx *gorm.DB, game db.Game, record catalog.Record) error {
	ratingID := l.ageRatings[string(record.AgeRating)]
	if game.Image == record.Image && game.AgeRatingID == ratingID && game.IsNSFW == record.NSFW {
		return nil
	}
	return tx.Model(&db.Game{}).Where("game_id = ?", game.ID).
		Updates(map[string]any{
			"game_image":    record.Image,
			"age_rating_id": ratingID,
			"is_nsfw":       record.NSFW,
		}).Error
}

func (l *Loader) warnNearDuplicates(ctx context.Context, title string, staged map[string]int32) {
	lowered := strings.ToLower(title)
	for _, known := range []map[string]int32{l.games, staged} {
		for existing := range known {
			if existing == title {
				continue
			}
			similarity := matchr.JaroWinkler(lowered, strings.ToLower(existing), false)
			if similarity > nearDuplicateThreshold {
				slog.WarnContext(ctx, "possible duplicate game name",
					"inserting", title, "existing", existing, "similarity", similarity)
			}
		}
	}
}

type nameRow struct {
	ID   int32
	Name string
}

// syncVocabulary makes sure every name has an id, reading before
// writing so a replay is write-free. An insert losing a uniqueness race
// falls back to one re-read.
func (l *Loader) syncVocabulary(tx *gorm.DB, table, idCol, nameCol string, cache, staged map[string]int32, names []string, stats *LoadStats) error {
	var missing []string
	seen := map[string]struct{}{}
	for _, name := range names {
		if _, ok := cache[name]; ok {
			continue
		}
		if _, ok := staged[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return nil
	}

	selectCols := fmt.Sprintf("%s AS id, %s AS name", idCol, nameCol)
	var rows []nameRow
	err := tx.Table(table).Select(selectCols).
		Where(nameCol+" IN ?", missing).Find(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		staged[row.Name] = row.ID
	}

	for _, name := range missing {
		if _, ok := staged[name]; ok {
			continue
		}
		err := tx.Table(table).Create(map[string]any{nameCol: name}).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		var row nameRow
		err = tx.Table(table).Select(selectCols).
			Where(nameCol+" = ?", name).Take(&row).Error
		if err != nil {
			return err
		}
		staged[name] = row.ID
		stats.NewVocabulary++
	}
	return nil
}

// factKey identifies one (game, platform) fact row.
type factKey struct {
	gameID     int32
	platformID int32
}

// loadAssignments writes the per-storefront fact rows and returns the
// key-to-assignment-id map the link phase needs. A pair seen before
// gets its five listing columns overwritten, so the latest observation
// always wins.
func (l *Loader) loadAssignments(ctx context.Context, records []catalog.Record, stats *LoadStats) (map[factKey]int32, error) {
	ctx, span := tracer.Start(ctx, "loadAssignments")
	defer span.End()

	assignments := map[factKey]int32{}
	err := l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			gameID, ok := l.games[record.Title]
			if !ok {
				slog.WarnContext(ctx, "no game id for record, skipping assignment", "title", record.Title)
				continue
			}
			key := factKey{gameID, l.platforms[string(record.Platform)]}

			var existing db.PlatformAssignment
			err := tx.Where("game_id = ? AND platform_id = ?", key.gameID, key.platformID).
				Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				row := db.PlatformAssignment{
					GameID:      key.gameID,
					PlatformID:  key.platformID,
					Score:       int16(record.Score),
					Price:       int16(record.Price),
					Discount:    int16(record.Discount),
					ReleaseDate: record.ReleaseDate,
					URL:         record.URL,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				assignments[key] = row.ID
				stats.NewAssignments++
				continue
			}
			if err != nil {
				return err
			}

			err = tx.Model(&db.PlatformAssignment{}).
				Where("game_id = ? AND platform_id = ?", key.gameID, key.platformID).
				Updates(map[string]any{
					"platform_score":        int16(record.Score),
					"platform_price":        int16(record.Price),
					"platform_discount":     int16(record.Discount),
					"platform_release_date": record.ReleaseDate,
					"platform_url":          record.URL,
				}).Error
			if err != nil {
				return err
			}
			assignments[key] = existing.ID
			stats.UpdatedAssignments++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// loadLinks inserts only the set difference against what is already
// linked. Companies hang off the game; genres and tags hang off the
// fact row, each storefront lists its own.
func (l *Loader) loadLinks(ctx context.Context, records []catalog.Record, assignments map[factKey]int32, stats *LoadStats) error {
	ctx, span := tracer.Start(ctx, "loadLinks")
	defer span.End()

	return l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			gameID, ok := l.games[record.Title]
			if !ok {
				continue
			}

			err := syncLinks(tx, "developer_game_assignment", "game_id", gameID,
				"developer_id", l.developers, record.Developers, stats)
			if err != nil {
				return err
			}
			err = syncLinks(tx, "publisher_game_assignment", "game_id", gameID,
				"publisher_id", l.publishers, record.Publishers, stats)
			if err != nil {
				return err
			}

			assignmentID, ok := assignments[factKey{gameID, l.platforms[string(record.Platform)]}]
			if !ok {
				slog.WarnContext(ctx, "no assignment id for record, skipping genre and tag links",
					"title", record.Title, "platform", record.Platform)
				continue
			}
			err = syncLinks(tx, "genre_game_platform_assignment", "game_platform_assignment_id",
				assignmentID, "genre_id", l.genres, record.Genres, stats)
			if err != nil {
				return err
			}
			err = syncLinks(tx, "tag_game_platform_assignment", "game_platform_assignment_id",
				assignmentID, "tag_id", l.tags, record.Tags, stats)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func syncLinks(tx *gorm.DB, table, keyCol string, keyID int32, idCol string, cache map[string]int32, names []string, stats *LoadStats) error {
	if len(names) == 0 {
		return nil
	}

	var existing []int32
	err := tx.Table(table).Where(keyCol+" = ?", keyID).Pluck(idCol, &existing).Error
	if err != nil {
		return err
	}
	linked := map[int32]struct{}{}
	for _, id := range existing {
		linked[id] = struct{}{}
	}

	for _, name := range names {
		id, ok := cache[name]
		if !ok {
			// reference phase failed for this name, nothing to link
			continue
		}
		if _, done := linked[id]; done {
			continue
		}
		err := tx.Table(table).Create(map[string]any{keyCol: keyID, idCol: id}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			linked[id] = struct{}{}
			continue
		}
		if err != nil {
			return err
		}
		linked[id] = struct{}{}
		stats.NewLinks++
	}
	return nil
}
