// Package catalog defines the canonical record every storefront adapter
// produces and the normalizer that polices it before it may reach the
// loader.
package catalog

import "time"

// DateLayout is the canonical release date layout, shared by the Steam
// storefront, the CLI target-date flag and the normalizer. Adapters for
// sources with other formats reformat into it.
const DateLayout = "2 Jan, 2006"

// ScoreUnrated marks a game that had no review score at release. It is
// reserved, user scoring never produces it.
const ScoreUnrated = -1

// ImageUnavailable is stored when a cover image is missing or fails the
// advisory availability check.
const ImageUnavailable = "N/A"

type Platform string

const (
	PlatformSteam Platform = "Steam"
	PlatformEpic  Platform = "Epic Games Store"
	PlatformGOG   Platform = "GOG"
)

// Platforms is the closed, seeded vocabulary. The pipeline never
// creates platforms.
var Platforms = []Platform{PlatformSteam, PlatformEpic, PlatformGOG}

func (p Platform) Valid() bool {
	switch p {
	case PlatformSteam, PlatformEpic, PlatformGOG:
		return true
	}
	return false
}

type AgeRating string

const (
	AgePEGI3       AgeRating = "PEGI 3"
	AgePEGI7       AgeRating = "PEGI 7"
	AgePEGI12      AgeRating = "PEGI 12"
	AgePEGI16      AgeRating = "PEGI 16"
	AgePEGI18      AgeRating = "PEGI 18"
	AgeNotAssigned AgeRating = "Not Assigned"
)

// AgeRatings is the closed, seeded vocabulary.
var AgeRatings = []AgeRating{
	AgePEGI3, AgePEGI7, AgePEGI12, AgePEGI16, AgePEGI18, AgeNotAssigned,
}

// AgeRatingFromPEGI maps a raw PEGI age to the vocabulary. Anything
// outside {3, 7, 12, 16, 18} becomes Not Assigned.
func AgeRatingFromPEGI(age int) AgeRating {
	switch age {
	case 3:
		return AgePEGI3
	case 7:
		return AgePEGI7
	case 12:
		return AgePEGI12
	case 16:
		return AgePEGI16
	case 18:
		return AgePEGI18
	}
	return AgeNotAssigned
}

// Raw is one (game, platform) observation as an adapter saw it. Numeric
// fields are already on the canonical scale: adapters own per-source
// rescaling (Epic's 0-5 ratings, percent-retained discounts) so the
// normalizer never branches on source.
type Raw struct {
	Title       string
	Genres      []string
	Tags        []string
	Developers  []string
	Publishers  []string
	Platform    Platform
	Price       int
	Discount    int
	Score       int
	ReleaseDate string
	Image       string
	// AgeYears is the raw PEGI age, 0 when the source had none.
	AgeYears int
	URL      string
}

// Record is the validated, normalized shape consumed by the loader.
type Record struct {
	Title       string
	Genres      []string
	Tags        []string
	Developers  []string
	Publishers  []string
	Platform    Platform
	Price       int
	Discount    int
	Score       int
	ReleaseDate time.Time
	Image       string
	AgeRating   AgeRating
	NSFW        bool
	URL         string
}
