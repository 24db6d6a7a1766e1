package epic

const searchStoreQuery = `query searchStoreQuery(
  $count: Int
  $start: Int
  $sortBy: String
  $sortDir: String
  $category: String
  $country: String!
  $locale: String
) {
  Catalog {
    searchStore(
      count: $count
      start: $start
      sortBy: $sortBy
      sortDir: $sortDir
      category: $category
      country: $country
      locale: $locale
    ) {
      elements {
        title
        namespace
        releaseDate
        keyImages {
          type
          url
        }
        customAttributes {
          key
          value
        }
        tags {
          name
          groupName
        }
        ageGatings {
          ratingSystem
          ageControl
        }
        catalogNs {
          mappings(pageType: "productHome") {
            pageSlug
          }
        }
        price(country: $country) {
          totalPrice {
            discountPrice
            originalPrice
          }
        }
        promotions(category: $category) {
          promotionalOffers {
            promotionalOffers {
              discountSetting {
                discountPercentage
              }
            }
          }
        }
      }
      paging {
        count
        total
      }
    }
  }
}`

type searchStoreRequest struct {
	Count    int    `json:"count"`
	Start    int    `json:"start"`
	SortBy   string `json:"sortBy"`
	SortDir  string `json:"sortDir"`
	Category string `json:"category"`
	Country  string `json:"country"`
	Locale   string `json:"locale"`
}

type keyImage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type customAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type storeTag struct {
	Name      string `json:"name"`
	GroupName string `json:"groupName"`
}

type ageGating struct {
	RatingSystem string `json:"ratingSystem"`
	AgeControl   int    `json:"ageControl"`
}

type discountSetting struct {
	// percentage of the price RETAINED after the promotion, so 75
	// means 25% off and 0 means free
	DiscountPercentage int `json:"discountPercentage"`
}

type promotionalOffer struct {
	DiscountSetting discountSetting `json:"discountSetting"`
}

type storeElement struct {
	Title            string            `json:"title"`
	Namespace        string            `json:"namespace"`
	ReleaseDate      string            `json:"releaseDate"`
	KeyImages        []keyImage        `json:"keyImages"`
	CustomAttributes []customAttribute `json:"customAttributes"`
	Tags             []storeTag        `json:"tags"`
	AgeGatings       []ageGating       `json:"ageGatings"`
	CatalogNs        struct {
		Mappings []struct {
			PageSlug string `json:"pageSlug"`
		} `json:"mappings"`
	} `json:"catalogNs"`
	Price struct {
		TotalPrice struct {
			DiscountPrice int `json:"discountPrice"`
			OriginalPrice int `json:"originalPrice"`
		} `json:"totalPrice"`
	} `json:"price"`
	Promotions struct {
		PromotionalOffers []struct {
			PromotionalOffers []promotionalOffer `json:"promotionalOffers"`
		} `json:"promotionalOffers"`
	} `json:"promotions"`
}

type searchStoreResponse struct {
	Catalog struct {
		SearchStore struct {
			Elements []storeElement `json:"elements"`
			Paging   struct {
				Count int `json:"count"`
				Total int `json:"total"`
			} `json:"paging"`
		} `json:"searchStore"`
	} `json:"Catalog"`
}

const productRatingQuery = `query getProductResult($sandboxId: String!, $locale: String!) {
  RatingsPolls {
    getProductResult(sandboxId: $sandboxId, locale: $locale) {
      averageRating
    }
  }
}`

type productRatingRequest struct {
	SandboxID string `json:"sandboxId"`
	Locale    string `json:"locale"`
}

type productRatingResponse struct {
	RatingsPolls struct {
		GetProductResult struct {
			AverageRating float64 `json:"averageRating"`
		} `json:"getProductResult"`
	} `json:"RatingsPolls"`
}
