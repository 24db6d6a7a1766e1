// Package db owns the catalog schema: the gorm models, the connection
// setup, the vocabulary seeds, and the reporting views layered on top.
package db

import (
	"fmt"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/configutil"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenFromEnv connects to the Postgres catalog described by the DB_*
// environment variables.
func OpenFromEnv() (*gorm.DB, error) {
	env, err := configutil.RequireEnv(
		"DB_NAME",
		"DB_USERNAME",
		"DB_PASSWORD",
		"DB_HOST",
		"DB_PORT",
	)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env["DB_HOST"],
		env["DB_PORT"],
		env["DB_USERNAME"],
		env["DB_PASSWORD"],
		env["DB_NAME"],
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
}

// Migrate brings the schema up to date, seeds the fixed vocabularies
// and (re)creates the reporting views. Safe to run repeatedly.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&Platform{},
		&AgeRating{},
		&Developer{},
		&Publisher{},
		&Genre{},
		&Tag{},
		&Game{},
		&PlatformAssignment{},
		&DeveloperGameAssignment{},
		&PublisherGameAssignment{},
		&GenreGamePlatformAssignment{},
		&TagGamePlatformAssignment{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	if err := seed(conn); err != nil {
		return fmt.Errorf("seed vocabularies: %w", err)
	}
	if err := createViews(conn); err != nil {
		return fmt.Errorf("create views: %w", err)
	}
	return nil
}

// seed inserts the closed vocabularies. Platforms and age ratings are
// fixed sets; everything else grows with the data.
func seed(conn *gorm.DB) error {
	for _, name := range catalog.Platforms {
		err := conn.Where(Platform{Name: string(name)}).
			FirstOrCreate(&Platform{}).Error
		if err != nil {
			return err
		}
	}
	for _, name := range catalog.AgeRatings {
		err := conn.Where(AgeRating{Name: string(name)}).
			FirstOrCreate(&AgeRating{}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

const newReleaseOverviewView = `
CREATE VIEW new_release_overview AS
SELECT
	g.game_name,
	p.platform_name,
	a.age_rating_name,
	g.is_nsfw,
	gpa.platform_price,
	gpa.platform_discount,
	gpa.platform_score,
	gpa.platform_release_date,
	gpa.platform_url
FROM game_platform_assignment gpa
JOIN game g ON g.game_id = gpa.game_id
JOIN platform p ON p.platform_id = gpa.platform_id
JOIN age_rating a ON a.age_rating_id = g.age_rating_id`

// weekly_genre_trend counts releases per genre per ISO week. Week
// bucketing has no portable SQL spelling, so the expression is chosen
// per dialect.
const weeklyGenreTrendView = `
CREATE VIEW weekly_genre_trend AS
SELECT
	%s AS week_start,
	ge.genre_name,
	COUNT(*) AS release_count
FROM game_platform_assignment gpa
JOIN genre_game_platform_assignment gga
	ON gga.game_platform_assignment_id = gpa.game_platform_assignment_id
JOIN genre ge ON ge.genre_id = gga.genre_id
GROUP BY week_start, ge.genre_name`

func createViews(conn *gorm.DB) error {
	// both spellings yield the week's Monday as YYYY-MM-DD text
	weekExpr := `date(gpa.platform_release_date, 'weekday 0', '-6 days')`
	if conn.Dialector.Name() == "postgres" {
		weekExpr = `to_char(date_trunc('week', gpa.platform_release_date), 'YYYY-MM-DD')`
	}

	statements := []string{
		`DROP VIEW IF EXISTS new_release_overview`,
		newReleaseOverviewView,
		`DROP VIEW IF EXISTS weekly_genre_trend`,
		fmt.Sprintf(weeklyGenreTrendView, weekExpr),
	}
	for _, statement := range statements {
		if err := conn.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
