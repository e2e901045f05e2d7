package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestSearchURL(t *testing.T) {
	tests := []struct {
		name string
		req  SearchRequest
		page int
		want string
	}{
		{
			name: "bare search",
			req:  SearchRequest{},
			page: 1,
			want: "https://www.kleinanzeigen.de/s-seite:1",
		},
		{
			name: "query and location",
			req:  SearchRequest{Query: "sofa", Location: "Berlin", Radius: 10},
			page: 1,
			want: "https://www.kleinanzeigen.de/s-Berlin/seite:1?keywords=sofa&locationStr=Berlin&radius=10",
		},
		{
			name: "location slugged",
			req:  SearchRequest{Location: "Frankfurt am Main"},
			page: 2,
			want: "https://www.kleinanzeigen.de/s-Frankfurt-am-Main/seite:2?locationStr=Frankfurt+am+Main",
		},
		{
			name: "price range with location",
			req:  SearchRequest{Location: "Berlin", MinPrice: intPtr(50), MaxPrice: intPtr(200)},
			page: 1,
			want: "https://www.kleinanzeigen.de/s-Berlin/preis:50:200/seite:1",
		},
		{
			name: "open-ended price without location",
			req:  SearchRequest{MinPrice: intPtr(100)},
			page: 1,
			want: "https://www.kleinanzeigen.de/s-preis:100:/seite:1",
		},
		{
			name: "category only",
			req:  SearchRequest{CategoryID: intPtr(203)},
			page: 1,
			want: "https://www.kleinanzeigen.de/s-/c203/seite:1",
		},
		{
			name: "everything",
			req: SearchRequest{
				Query:      "fahrrad",
				Location:   "Hamburg",
				Radius:     25,
				CategoryID: intPtr(217),
				MinPrice:   intPtr(10),
				MaxPrice:   intPtr(500),
			},
			page: 3,
			want: "https://www.kleinanzeigen.de/s-Hamburg/preis:10:500/c217/seite:3?keywords=fahrrad&radius=25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, searchURL(tt.req, tt.page))
		})
	}
}

func TestSearchURLNoLocationStrWithPriceFilter(t *testing.T) {
	// The site rejects locationStr combined with a price path segment.
	u := searchURL(SearchRequest{Location: "Berlin", MinPrice: intPtr(1)}, 1)
	assert.NotContains(t, u, "locationStr")
}
