package listing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleinsuche/kleinsuche/internal/listing"
)

func TestExtractNothing(t *testing.T) {
	d := listing.Extract("<html><body><p>hello there</p></body></html>")
	assert.Nil(t, d.Title)
	assert.Nil(t, d.Image)
	assert.Nil(t, d.Postal)
	assert.Nil(t, d.City)
	assert.Nil(t, d.Price)
}

func TestExtractOpenGraphAndStructuredPostal(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content=" Gebrauchtes Sofa ">
		<script type="application/ld+json">
			{"@type":"Product","address":{"postalCode":"10115","addressLocality":"Berlin"}}
		</script>
	</head><body></body></html>`

	d := listing.Extract(html)
	require.NotNil(t, d.Title)
	assert.Equal(t, "Gebrauchtes Sofa", *d.Title)
	require.NotNil(t, d.Postal)
	assert.Equal(t, "10115", *d.Postal)
	require.NotNil(t, d.City)
	assert.Equal(t, "Berlin", *d.City)
}

func TestExtractTitleFallsBackToTitleElement(t *testing.T) {
	d := listing.Extract(`<html><head><title> Fahrrad zu verkaufen </title></head><body></body></html>`)
	require.NotNil(t, d.Title)
	assert.Equal(t, "Fahrrad zu verkaufen", *d.Title)
}

func TestExtractImagePriority(t *testing.T) {
	html := `<html><head>
		<meta property="og:image" content="https://img.example/og.jpg">
		<script type="application/ld+json">{"image":["https://img.example/ld.jpg"]}</script>
	</head><body></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Image)
	assert.Equal(t, "https://img.example/og.jpg", *d.Image)
}

func TestExtractImageFromStructuredDataArray(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"image":["https://img.example/1.jpg","https://img.example/2.jpg"]}</script>
	</head><body></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Image)
	assert.Equal(t, "https://img.example/1.jpg", *d.Image)
}

func TestExtractNestedAddressPaths(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">
			{"itemOffered":{"address":{"postcode":"20095","town":"Hamburg"}}}
		</script>
	</head><body></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Postal)
	assert.Equal(t, "20095", *d.Postal)
	require.NotNil(t, d.City)
	assert.Equal(t, "Hamburg", *d.City)
}

func TestExtractSellerAddressAndNumericPrice(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">
			{"offers":{"price":49.5,"seller":{"address":{"zip":"80331","city":"München"}}}}
		</script>
	</head><body></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Postal)
	assert.Equal(t, "80331", *d.Postal)
	require.NotNil(t, d.City)
	assert.Equal(t, "München", *d.City)
	require.NotNil(t, d.Price)
	assert.Equal(t, "49.5", *d.Price)
}

func TestExtractSkipsMalformedBlocks(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{broken</script>
		<script type="application/ld+json">{"address":{"postalCode":"50667"}}</script>
	</head><body></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Postal)
	assert.Equal(t, "50667", *d.Postal)
}

func TestExtractFirstBlockWinsPerField(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"address":{"postalCode":"01067"}}</script>
		<script type="application/ld+json">{"address":{"postalCode":"99999","addressLocality":"Dresden"}}</script>
	</head><body></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Postal)
	assert.Equal(t, "01067", *d.Postal, "postal from first block wins")
	require.NotNil(t, d.City)
	assert.Equal(t, "Dresden", *d.City, "city still resolved from a later block")
}

func TestExtractRegexPostalFallback(t *testing.T) {
	html := `<html><body><p>Abholung in 70173 Stuttgart</p></body></html>`
	d := listing.Extract(html)
	require.NotNil(t, d.Postal)
	assert.Equal(t, "70173", *d.Postal)
}
