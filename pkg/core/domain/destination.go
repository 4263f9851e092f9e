package domain

// Destination is the outcome of resolving a slug.
type Destination struct {
	Slug      string // matched slug, the fallback slug for unknown input
	Raw       string // mapped URL before UTM tagging
	Annotated string // URL sent in the Location header
}
