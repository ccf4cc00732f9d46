package rule

import (
	"errors"
	"net/netip"
	"strings"
)

// ErrNotRepresentable is returned for literals that are not a valid IPv4 or
// IPv6 address or network.
var ErrNotRepresentable = errors.New("not a representable IP literal")

// NormalizeCIDR validates an IP literal and returns it in address/prefix form.
// Networks with host bits set are accepted and returned unchanged. Bare
// addresses get /32 (IPv4) or /128 (IPv6).
func NormalizeCIDR(literal string) (string, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return "", ErrNotRepresentable
	}

	if strings.Contains(literal, "/") {
		prefix, err := netip.ParsePrefix(literal)
		if err != nil || !prefix.IsValid() {
			return "", ErrNotRepresentable
		}
		return literal, nil
	}

	addr, err := netip.ParseAddr(literal)
	if err != nil || addr.Zone() != "" {
		return "", ErrNotRepresentable
	}
	if addr.Is4() {
		return literal + "/32", nil
	}
	return literal + "/128", nil
}
