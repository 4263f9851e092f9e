package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
)

const (
	utmSource = "qr"
	utmMedium = "print"
)

var utmKeys = []string{"utm_source", "utm_medium", "utm_campaign"}

// SlugMap is the immutable slug -> destination lookup. It is built once at
// startup and shared read-only by every request.
type SlugMap struct {
	entries      map[string]domain.Destination
	fallbackSlug string
	fallback     domain.Destination
}

// NewSlugMap validates every destination up front so a bad entry fails at
// startup instead of on a request.
func NewSlugMap(entries map[string]string, fallbackSlug, fallbackURL string) (*SlugMap, error) {
	if fallbackSlug == "" {
		return nil, fmt.Errorf("fallback slug is required")
	}

	m := &SlugMap{
		entries:      make(map[string]domain.Destination, len(entries)),
		fallbackSlug: fallbackSlug,
	}
	for slug, raw := range entries {
		annotated, err := Annotate(raw, slug)
		if err != nil {
			return nil, fmt.Errorf("slug %q: %w", slug, err)
		}
		m.entries[slug] = domain.Destination{Slug: slug, Raw: raw, Annotated: annotated}
	}

	if d, ok := m.entries[fallbackSlug]; ok {
		m.fallback = d
		return m, nil
	}

	// The fallback slug has no entry of its own: use the hardcoded URL.
	annotated, err := Annotate(fallbackURL, fallbackSlug)
	if err != nil {
		return nil, fmt.Errorf("fallback url: %w", err)
	}
	m.fallback = domain.Destination{Slug: fallbackSlug, Raw: fallbackURL, Annotated: annotated}
	return m, nil
}

// Resolve returns the matched slug and its raw destination. Unknown and empty
// slugs resolve to the fallback. It never fails.
func (m *SlugMap) Resolve(slug string) (string, string) {
	d := m.Destination(slug)
	return d.Slug, d.Raw
}

// Destination is Resolve plus the precomputed annotated URL.
func (m *SlugMap) Destination(slug string) domain.Destination {
	if d, ok := m.entries[slug]; ok {
		return d
	}
	return m.fallback
}

// FallbackSlug reports the reserved slug every unknown slug resolves to.
func (m *SlugMap) FallbackSlug() string {
	return m.fallbackSlug
}

// Slugs lists the configured slugs (fallback first when it is mapped).
func (m *SlugMap) Slugs() []string {
	out := make([]string, 0, len(m.entries))
	if _, ok := m.entries[m.fallbackSlug]; ok {
		out = append(out, m.fallbackSlug)
	}
	for slug := range m.entries {
		if slug != m.fallbackSlug {
			out = append(out, slug)
		}
	}
	return out
}

// Annotate sets utm_source, utm_medium and utm_campaign on raw. Existing values
// for those keys are dropped, every other parameter keeps its position, and
// the three tags are appended in that order, so annotating twice gives the
// same URL as annotating once.
func Annotate(raw, slug string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrMalformedDestination, raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute url", domain.ErrMalformedDestination, raw)
	}

	var kept []string
	if u.RawQuery != "" {
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if isUTMKey(key) {
				continue
			}
			kept = append(kept, pair)
		}
	}

	kept = append(kept,
		"utm_source="+url.QueryEscape(utmSource),
		"utm_medium="+url.QueryEscape(utmMedium),
		"utm_campaign="+url.QueryEscape(slug),
	)
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String(), nil
}

func isUTMKey(key string) bool {
	for _, k := range utmKeys {
		if key == k {
			return true
		}
	}
	return false
}
