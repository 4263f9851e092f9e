package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDestination marks a slug map entry that is not an absolute URL.
	ErrMalformedDestination = errors.New("malformed destination")
	// ErrStoreUnavailable is returned when the event store cannot be reached or a query fails.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ConfigError reports a required setting that was not provided.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return e.Missing + " missing"
}

// UpstreamError carries a non-2xx answer from the analytics source verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}
