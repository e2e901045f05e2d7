package listing

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Heuristic German postal code, used only when structured data yields
// nothing.
var postalPattern = regexp.MustCompile(`\b\d{5}\b`)

// addressPaths lists the nestings under which structured-data blocks are
// known to carry an address object, in priority order.
var addressPaths = [][]string{
	{"address"},
	{"itemOffered", "address"},
	{"offers", "seller", "address"},
}

var (
	postalKeys = []string{"postalCode", "postcode", "zip"}
	cityKeys   = []string{"addressLocality", "city", "town"}
)

// Extract recovers listing metadata from an ad detail page. Each field is
// resolved independently, first match wins, and missing or malformed
// signals are never an error.
func Extract(html string) Detail {
	var d Detail
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		d.fallbackPostal(html)
		return d
	}

	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		title := strings.TrimSpace(v)
		d.Title = &title
	} else if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		d.Title = &title
	}

	if v, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		image := strings.TrimSpace(v)
		d.Image = &image
	}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var block map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &block); err != nil {
			// Malformed blocks are skipped, scanning continues.
			return true
		}
		d.absorb(block)
		return d.unresolvedStructuredFields()
	})

	if d.Postal == nil {
		d.fallbackPostal(html)
	}
	return d
}

// absorb fills any still-unresolved fields from one structured-data block.
func (d *Detail) absorb(block map[string]any) {
	if d.Image == nil {
		if image := imageValue(block["image"]); image != "" {
			d.Image = &image
		}
	}
	for _, path := range addressPaths {
		addr, ok := lookupObject(block, path)
		if !ok {
			continue
		}
		if d.Postal == nil {
			if v := firstString(addr, postalKeys); v != "" {
				d.Postal = &v
			}
		}
		if d.City == nil {
			if v := firstString(addr, cityKeys); v != "" {
				d.City = &v
			}
		}
	}
	if d.Price == nil {
		if offers, ok := lookupObject(block, []string{"offers"}); ok {
			if price := scalarString(offers["price"]); price != "" {
				d.Price = &price
			}
		}
	}
}

func (d *Detail) unresolvedStructuredFields() bool {
	return d.Image == nil || d.Postal == nil || d.City == nil || d.Price == nil
}

func (d *Detail) fallbackPostal(html string) {
	if m := postalPattern.FindString(html); m != "" {
		d.Postal = &m
	}
}

// lookupObject walks nested JSON objects along path.
func lookupObject(block map[string]any, path []string) (map[string]any, bool) {
	cur := block
	for _, field := range path {
		next, ok := cur[field].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// firstString returns the first non-empty string value among keys.
func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if v := scalarString(obj[k]); v != "" {
			return v
		}
	}
	return ""
}

// scalarString renders a JSON string or number as text.
func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

// imageValue accepts a plain URL or the first element of an image array.
func imageValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
