package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const baseURL = "https://www.kleinanzeigen.de"

// searchURL renders the search URL for one result page. The site encodes
// location, price range and category as path segments and the remaining
// filters as query parameters; the exact shapes below mirror what the
// site's own search form produces.
func searchURL(req SearchRequest, page int) string {
	hasPrice := req.MinPrice != nil || req.MaxPrice != nil
	slug := strings.ReplaceAll(req.Location, " ", "-")

	price := ""
	if hasPrice {
		price = fmt.Sprintf("preis:%s:%s", intOrEmpty(req.MinPrice), intOrEmpty(req.MaxPrice))
	}

	var path string
	switch {
	case hasPrice && req.Location != "" && req.CategoryID != nil:
		path = fmt.Sprintf("/s-%s/%s/c%d/seite:%d", slug, price, *req.CategoryID, page)
	case hasPrice && req.Location != "":
		path = fmt.Sprintf("/s-%s/%s/seite:%d", slug, price, page)
	case hasPrice && req.CategoryID != nil:
		path = fmt.Sprintf("/s-%s/c%d/seite:%d", price, *req.CategoryID, page)
	case hasPrice:
		path = fmt.Sprintf("/s-%s/seite:%d", price, page)
	case req.Location != "" && req.CategoryID != nil:
		path = fmt.Sprintf("/s-%s/c%d/seite:%d", slug, *req.CategoryID, page)
	case req.Location != "":
		path = fmt.Sprintf("/s-%s/seite:%d", slug, page)
	case req.CategoryID != nil:
		path = fmt.Sprintf("/s-/c%d/seite:%d", *req.CategoryID, page)
	default:
		path = fmt.Sprintf("/s-seite:%d", page)
	}

	params := url.Values{}
	if req.Query != "" {
		params.Set("keywords", req.Query)
	}
	if req.Location != "" && !hasPrice {
		params.Set("locationStr", req.Location)
	}
	if req.Radius > 0 {
		params.Set("radius", strconv.Itoa(req.Radius))
	}

	u := baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
