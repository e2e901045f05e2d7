package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kleinsuche/kleinsuche/internal/listing"
)

// Promoted ads repeat organic results, so they are excluded up front.
const adItemSelector = ".ad-listitem:not(.is-topad):not(.badge-hint-pro-small-srp)"

var priceCleaner = strings.NewReplacer("€", "", "VB", "", ".", "")

// parseAds extracts listing records from a rendered search result page.
// Items without both an ad id and a link are discarded.
func parseAds(html string) ([]listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	var ads []listing.Listing
	doc.Find(adItemSelector).Each(func(_ int, item *goquery.Selection) {
		article := item.Find("article").First()
		if article.Length() == 0 {
			return
		}
		adID, _ := article.Attr("data-adid")
		href, _ := article.Attr("data-href")
		if adID == "" || href == "" {
			return
		}
		ads = append(ads, listing.Listing{
			AdID:        adID,
			URL:         baseURL + href,
			Title:       strings.TrimSpace(article.Find("h2.text-module-begin a.ellipsis").First().Text()),
			Price:       strings.TrimSpace(priceCleaner.Replace(article.Find("p.aditem-main--middle--price-shipping--price").First().Text())),
			Description: strings.TrimSpace(article.Find("p.aditem-main--middle--description").First().Text()),
		})
	})
	return ads, nil
}
