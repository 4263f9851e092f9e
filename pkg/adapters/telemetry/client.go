package telemetry

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
)

// Edge geolocation headers. Vercel's are preferred, Cloudflare's country is a fallback.
const (
	headerCountry   = "X-Vercel-IP-Country"
	headerRegion    = "X-Vercel-IP-Country-Region"
	headerCity      = "X-Vercel-IP-City"
	headerCFCountry = "CF-IPCountry"
)

// ClientFromRequest collects the metadata recorded for a scan.
func ClientFromRequest(r *http.Request) domain.Client {
	country := r.Header.Get(headerCountry)
	if country == "" {
		country = r.Header.Get(headerCFCountry)
	}

	return domain.Client{
		IPTruncated: TruncateIP(ClientIP(r)),
		UserAgent:   r.UserAgent(),
		Referer:     r.Referer(),
		Country:     country,
		Region:      r.Header.Get(headerRegion),
		City:        unescape(r.Header.Get(headerCity)),
		Method:      r.Method,
	}
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TruncateIP zeroes the last IPv4 octet and passes IPv6 (anything with a ':')
// through unchanged. This is a coarse privacy measure, not anonymization: the
// result still narrows a visitor down to a /24 network.
func TruncateIP(ip string) string {
	if ip == "" || strings.Contains(ip, ":") {
		return ip
	}
	i := strings.LastIndexByte(ip, '.')
	if i < 0 || i == len(ip)-1 {
		return ip
	}
	for _, c := range ip[i+1:] {
		if c < '0' || c > '9' {
			return ip
		}
	}
	return ip[:i] + ".0"
}

// Vercel sends the city percent-encoded.
func unescape(s string) string {
	if s == "" {
		return s
	}
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
