package gog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gamefeed-backend/lib/catalog"
	"gamefeed-backend/lib/htmlutil"
	"gamefeed-backend/lib/textutil"
	"gamefeed-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

var errNoTitle = errors.New("product page has no title")

// productData is the slice of the JSON-LD Product block the pipeline
// needs; GOG embeds release metadata there rather than in the DOM.
type productData struct {
	Type        string `json:"@type"`
	ReleaseDate string `json:"releaseDate"`
	Image       string `json:"image"`
	Offers      struct {
		Price string `json:"price"`
	} `json:"offers"`
}

var discountRegex = regexp.MustCompile(`-(\d+)%`)
var percentRegex = regexp.MustCompile(`(\d+)\s*%`)
var pegiRegex = regexp.MustCompile(`PEGI\s*(\d+)`)

func parseProduct(doc *goquery.Document, link string) (catalog.Raw, error) {
	title := textutil.Clean(doc.Find("h1.productcard-basics__title").First().Text())
	if title == "" {
		return catalog.Raw{}, errNoTitle
	}

	product, err := findProductData(doc)
	if err != nil {
		return catalog.Raw{}, fmt.Errorf("product %q: %w", title, err)
	}
	releaseDate, err := reformatReleaseDate(product.ReleaseDate)
	if err != nil {
		return catalog.Raw{}, fmt.Errorf("product %q: %w", title, err)
	}

	genres := htmlutil.AnchorNames(doc.Find(`.details__content a[href*="genres"]`))
	tags := htmlutil.AnchorNames(doc.Find(`.details__content a[href*="tags"]`))
	developers := htmlutil.AnchorNames(doc.Find(`.details__content a[href*="developers"]`))
	publishers := htmlutil.AnchorNames(doc.Find(`.details__content a[href*="publishers"]`))

	price, err := parsePrice(doc, product)
	if err != nil {
		return catalog.Raw{}, fmt.Errorf("product %q: %w", title, err)
	}

	discount := 0
	if groups := discountRegex.FindStringSubmatch(doc.Find(".product-actions-price__discount").First().Text()); len(groups) == 2 {
		discount, _ = strconv.Atoi(groups[1])
	}

	score := catalog.ScoreUnrated
	if groups := percentRegex.FindStringSubmatch(doc.Find(".productcard-rating__score").First().Text()); len(groups) == 2 {
		if v, err := strconv.Atoi(groups[1]); err == nil {
			score = v
		}
	}

	age := 0
	ageLabel := doc.Find(".age-restrictions__icon").First().AttrOr("alt", "")
	if ageLabel == "" {
		ageLabel = doc.Find(`.details__content[data-details="rating"]`).First().Text()
	}
	if groups := pegiRegex.FindStringSubmatch(ageLabel); len(groups) == 2 {
		age, _ = strconv.Atoi(groups[1])
	}

	image := product.Image
	if image == "" {
		image = doc.Find(`meta[property="og:image"]`).First().AttrOr("content", "")
	}
	if image != "" && strings.HasPrefix(image, "//") {
		image = "https:" + image
	}

	return catalog.Raw{
		Title:       title,
		Genres:      genres,
		Tags:        tags,
		Developers:  developers,
		Publishers:  publishers,
		Platform:    catalog.PlatformGOG,
		Price:       price,
		Discount:    discount,
		Score:       score,
		ReleaseDate: releaseDate,
		Image:       image,
		AgeYears:    age,
		URL:         link,
	}, nil
}

func findProductData(doc *goquery.Document) (productData, error) {
	for _, block := range htmlutil.JSONLDBlocks(doc) {
		var product productData
		if err := json.Unmarshal([]byte(block), &product); err != nil {
			continue
		}
		if product.Type == "Product" && product.ReleaseDate != "" {
			return product, nil
		}
	}
	return productData{}, errors.New("no Product JSON-LD block")
}

// reformatReleaseDate converts the JSON-LD timestamp into the canonical
// release date layout.
func reformatReleaseDate(value string) (string, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, timezone.Location); err == nil {
			return t.Format(catalog.DateLayout), nil
		}
	}
	return "", fmt.Errorf("unparseable release date %q", value)
}

// parsePrice prefers the rendered final amount (it reflects active
// discounts) and falls back to the JSON-LD offer.
func parsePrice(doc *goquery.Document, product productData) (int, error) {
	label := textutil.Clean(doc.Find(".product-actions-price__final-amount").First().Text())
	if label == "" {
		label = product.Offers.Price
	}
	if label == "" {
		return 0, errors.New("no price")
	}
	if strings.EqualFold(label, "free") {
		return 0, nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(label, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q", label)
	}
	return int(math.Round(value * 100)), nil
}
