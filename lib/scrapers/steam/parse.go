package steam

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/htmlutil"
	"gamefeed-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var errNoTitle = errors.New("detail page has no title")

// searchResultLinks collects detail page links from the scrolled search
// results, deduplicated and stripped of tracking queries.
func searchResultLinks(doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	var links []string
	doc.Find("#search_resultsRows > a").Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		if href == "" {
			return
		}
		if i := strings.IndexByte(href, '?'); i >= 0 {
			href = href[:i]
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}

var reviewPercentRegex = regexp.MustCompile(`(\d+)%`)
var discountRegex = regexp.MustCompile(`-?(\d+)%`)
var ratingAgeRegex = regexp.MustCompile(`pegi[^0-9]*(\d+)`)

// parseDetail extracts one raw record from a detail page. Fields the
// page doesn't carry degrade to their optional defaults; only a missing
// title or release date is an error.
func parseDetail(doc *goquery.Document, link string) (catalog.Raw, error) {
	title := textutil.Clean(doc.Find("#appHubAppName").First().Text())
	if title == "" {
		title = textutil.Clean(doc.Find(".apphub_AppName").First().Text())
	}
	if title == "" {
		return catalog.Raw{}, errNoTitle
	}

	releaseDate := textutil.Clean(doc.Find(".release_date .date").First().Text())
	if releaseDate == "" {
		return catalog.Raw{}, fmt.Errorf("detail page for %q has no release date", title)
	}

	genres := htmlutil.AnchorNames(doc.Find(`#genresAndManufacturer a[href*="/genre/"]`))
	developers := htmlutil.AnchorNames(doc.Find("#developers_list a"))
	publishers := htmlutil.AnchorNames(doc.Find(`#genresAndManufacturer a[href*="publisher"]`))
	tags := htmlutil.AnchorNames(doc.Find("a.app_tag"))

	score := catalog.ScoreUnrated
	reviewDesc := doc.Find("#userReviews .responsive_reviewdesc").First().Text()
	if groups := reviewPercentRegex.FindStringSubmatch(reviewDesc); len(groups) == 2 {
		if v, err := strconv.Atoi(groups[1]); err == nil {
			score = v
		}
	}

	price, err := parsePrice(doc)
	if err != nil {
		return catalog.Raw{}, err
	}

	discount := 0
	if groups := discountRegex.FindStringSubmatch(doc.Find(".discount_pct").First().Text()); len(groups) == 2 {
		if v, err := strconv.Atoi(groups[1]); err == nil {
			discount = v
		}
	}

	age := 0
	if src, ok := doc.Find(".game_rating_icon img").First().Attr("src"); ok {
		if groups := ratingAgeRegex.FindStringSubmatch(strings.ToLower(src)); len(groups) == 2 {
			age, _ = strconv.Atoi(groups[1])
		}
	}

	image := doc.Find("img.game_header_image_full").First().AttrOr("src", "")

	return catalog.Raw{
		Title:       title,
		Genres:      genres,
		Tags:        tags,
		Developers:  developers,
		Publishers:  publishers,
		Platform:    catalog.PlatformSteam,
		Price:       price,
		Discount:    discount,
		Score:       score,
		ReleaseDate: releaseDate,
		Image:       image,
		AgeYears:    age,
		URL:         link,
	}, nil
}

var moneyRegex = regexp.MustCompile(`(\d+)[.,](\d{2})`)

// parsePrice reads the purchase block. Discounted games show the final
// price; free games show a "Free To Play" label instead of a number.
func parsePrice(doc *goquery.Document) (int, error) {
	label := textutil.Clean(doc.Find(".discount_final_price").First().Text())
	if label == "" {
		label = textutil.Clean(doc.Find(".game_purchase_price").First().Text())
	}
	if label == "" {
		return 0, errors.New("detail page has no purchase block")
	}
	return parseMoney(label)
}

// parseMoney converts a display price like "£15.99" into minor currency
// units. Any "Free ..." label is zero.
func parseMoney(label string) (int, error) {
	if strings.HasPrefix(strings.ToLower(label), "free") {
		return 0, nil
	}
	if groups := moneyRegex.FindStringSubmatch(label); len(groups) == 3 {
		units, _ := strconv.Atoi(groups[1])
		cents, _ := strconv.Atoi(groups[2])
		return units*100 + cents, nil
	}
	// whole number price without decimals
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, label)
	if digits == "" {
		return 0, fmt.Errorf("unparseable price label %q", label)
	}
	units, err := strconv.Atoi(digits)
	if err != nil {
		return 0, err
	}
	if units > math.MaxInt32/100 {
		return 0, fmt.Errorf("price label %q out of range", label)
	}
	return units * 100, nil
}
