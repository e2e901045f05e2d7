// Package listing defines classified ad records and detail-page extraction.
package listing

// Listing is one classified ad as returned by the scraper.
type Listing struct {
	AdID        string `json:"adid"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	Description string `json:"description"`
	// Postal is set by the route search to the code that produced the hit.
	Postal string `json:"postal,omitempty"`
}

// Detail holds metadata recovered from a single ad's detail page. Every
// field degrades independently; a nil field means the page carried no
// usable signal for it.
type Detail struct {
	Title  *string `json:"title"`
	Image  *string `json:"image"`
	Postal *string `json:"postal"`
	City   *string `json:"city"`
	Price  *string `json:"price"`
}
