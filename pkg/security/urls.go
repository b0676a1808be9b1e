// Package security checks URLs that steward hands to remote services.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// URLOptions relaxes ValidateURL. The zero value accepts only https URLs of
// public hosts.
type URLOptions struct {
	AllowHTTP bool
	// AllowLocalNetworks permits localhost names and loopback, private and
	// link-local addresses.
	AllowLocalNetworks bool
}

// ValidateURL rejects URLs whose scheme or target is not allowed by opts. Host
// names are not resolved; only literal addresses are checked against the network
// restrictions.
func ValidateURL(raw string, opts URLOptions) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return errors.Wrap(err, "invalid url")
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return errors.New("http urls are not allowed, use https")
		}
	default:
		return errors.Errorf("unsupported url scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("url has no host")
	}
	if opts.AllowLocalNetworks {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Errorf("local host %q is not allowed", host)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" {
		return errors.Errorf("zoned address %q is not allowed", host)
	}
	addr = addr.Unmap()
	switch {
	case addr.IsUnspecified(), addr.IsMulticast():
		return errors.Errorf("address %q is not allowed", host)
	case addr.IsLoopback(), addr.IsPrivate(), addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return errors.Errorf("local network address %q is not allowed", host)
	}
	return nil
}

// ValidateImageURL accepts inline data:image/... URLs and remote http(s) URLs of
// public hosts. Remote images are fetched by the vision provider, which cannot
// reach the user's local network anyway.
func ValidateImageURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		meta, _, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
		if !ok {
			return errors.New("data url has no payload")
		}
		if !strings.HasPrefix(strings.ToLower(meta), "image/") {
			return errors.Errorf("data url is not an image (%s)", meta)
		}
		return nil
	}
	return ValidateURL(raw, URLOptions{AllowHTTP: true})
}
