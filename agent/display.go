package agent

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PlaceholderImage is shown for products that came back without an image.
const PlaceholderImage = "https://placehold.co/300x200?text=No+Image"

// noImage is what the agent emits when a scraped page had no image.
const noImage = "No Image"

var strictPolicy = bluemonday.StrictPolicy()

// ProductImage returns the image to show for p, falling back to PlaceholderImage.
func ProductImage(p Product) string {
	img := strings.TrimSpace(p.Image)
	if img == "" || img == noImage {
		return PlaceholderImage
	}
	return img
}

// PlainText renders untrusted backend text for a terminal: markup is stripped
// and entities are decoded. Stored products are never rewritten with it.
func PlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
