package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

type RedirectService struct {
	slugs   *SlugMap
	emitter ports.ScanEmitter
	log     zerolog.Logger
	now     func() time.Time
}

func NewRedirectService(slugs *SlugMap, emitter ports.ScanEmitter, log zerolog.Logger) *RedirectService {
	return &RedirectService{
		slugs:   slugs,
		emitter: emitter,
		log:     log,
		now:     time.Now,
	}
}

// Redirect resolves slug, hands a scan event to the emitter and returns the
// destination. Every slug, including empty and unknown ones, ends here with a
// usable destination; the emitter decides how long (if at all) this waits.
// The event keeps the requested slug so scans of unknown codes stay visible.
func (s *RedirectService) Redirect(ctx context.Context, slug string, client domain.Client) domain.Destination {
	if slug == "" {
		slug = s.slugs.FallbackSlug()
	}

	dest := s.slugs.Destination(slug)
	if dest.Slug != slug {
		s.log.Debug().Str("slug", slug).Str("fallback", dest.Slug).Msg("unknown slug, using fallback")
	}

	if s.emitter != nil {
		s.emitter.Emit(ctx, domain.ScanEvent{
			ID:          uuid.NewString(),
			Timestamp:   s.now().UTC(),
			Slug:        slug,
			Destination: dest.Raw,
			IPTruncated: client.IPTruncated,
			UserAgent:   client.UserAgent,
			Referer:     client.Referer,
			Country:     client.Country,
			Region:      client.Region,
			City:        client.City,
			Method:      client.Method,
		})
	}

	return dest
}

var _ ports.RedirectService = (*RedirectService)(nil)
