package db

import "time"

// Reference tables. Each holds one vocabulary shared by every game row,
// with the name as the lookup key.

type Platform struct {
	ID   int32  `gorm:"column:platform_id;primaryKey"`
	Name string `gorm:"column:platform_name;size:64;uniqueIndex;not null"`
}

func (Platform) TableName() string { return "platform" }

type AgeRating struct {
	ID   int32  `gorm:"column:age_rating_id;primaryKey"`
	Name string `gorm:"column:age_rating_name;size:32;uniqueIndex;not null"`
}

func (AgeRating) TableName() string { return "age_rating" }

type Developer struct {
	ID   int32  `gorm:"column:developer_id;primaryKey"`
	Name string `gorm:"column:developer_name;size:160;uniqueIndex;not null"`
}

func (Developer) TableName() string { return "developer" }

type Publisher struct {
	ID   int32  `gorm:"column:publisher_id;primaryKey"`
	Name string `gorm:"column:publisher_name;size:160;uniqueIndex;not null"`
}

func (Publisher) TableName() string { return "publisher" }

type Genre struct {
	ID   int32  `gorm:"column:genre_id;primaryKey"`
	Name string `gorm:"column:genre_name;size:64;uniqueIndex;not null"`
}

func (Genre) TableName() string { return "genre" }

type Tag struct {
	ID   int32  `gorm:"column:tag_id;primaryKey"`
	Name string `gorm:"column:tag_name;size:64;uniqueIndex;not null"`
}

func (Tag) TableName() string { return "tag" }

// Game holds the platform-independent identity of a title. Everything
// that varies per storefront lives on PlatformAssignment.
type Game struct {
	ID          int32  `gorm:"column:game_id;primaryKey"`
	Name        string `gorm:"column:game_name;size:128;uniqueIndex;not null"`
	Image       string `gorm:"column:game_image;size:256;not null"`
	AgeRatingID int32  `gorm:"column:age_rating_id;not null"`
	IsNSFW      bool   `gorm:"column:is_nsfw;not null"`
}

func (Game) TableName() string { return "game" }

// PlatformAssignment is the fact row: one game as listed on one
// storefront. The game+platform pair is the natural key; the five
// listing columns are overwritten when the same pair is seen again.
type PlatformAssignment struct {
	ID          int32     `gorm:"column:game_platform_assignment_id;primaryKey"`
	GameID      int32     `gorm:"column:game_id;uniqueIndex:idx_game_platform;not null"`
	PlatformID  int32     `gorm:"column:platform_id;uniqueIndex:idx_game_platform;not null"`
	Score       int16     `gorm:"column:platform_score;not null"`
	Price       int16     `gorm:"column:platform_price;not null"`
	Discount    int16     `gorm:"column:platform_discount;not null"`
	ReleaseDate time.Time `gorm:"column:platform_release_date;type:date;not null"`
	URL         string    `gorm:"column:platform_url;size:256;not null"`
}

func (PlatformAssignment) TableName() string { return "game_platform_assignment" }

// Link tables. Companies attach to the game; genres and tags attach to
// the fact row, each storefront lists its own.

type DeveloperGameAssignment struct {
	DeveloperID int32 `gorm:"column:developer_id;primaryKey;not null"`
	GameID      int32 `gorm:"column:game_id;primaryKey;not null"`
}

func (DeveloperGameAssignment) TableName() string { return "developer_game_assignment" }

type PublisherGameAssignment struct {
	PublisherID int32 `gorm:"column:publisher_id;primaryKey;not null"`
	GameID      int32 `gorm:"column:game_id;primaryKey;not null"`
}

func (PublisherGameAssignment) TableName() string { return "publisher_game_assignment" }

type GenreGamePlatformAssignment struct {
	GenreID      int32 `gorm:"column:genre_id;primaryKey;not null"`
	AssignmentID int32 `gorm:"column:game_platform_assignment_id;primaryKey;not null"`
}

func (GenreGamePlatformAssignment) TableName() string { return "genre_game_platform_assignment" }

type TagGamePlatformAssignment struct {
	TagID        int32 `gorm:"column:tag_id;primaryKey;not null"`
	AssignmentID int32 `gorm:"column:game_platform_assignment_id;primaryKey;not null"`
}

func (TagGamePlatformAssignment) TableName() string { return "tag_game_platform_assignment" }
