// Package source adapts differently shaped source documents into a uniform
// sequence of rule lines.
package source

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Kind selects the adapter for a source document.
type Kind string

const (
	// Auto infers the kind from the location extension.
	Auto Kind = "auto"
	// Flat is a newline-delimited rule list.
	Flat Kind = "flat"
	// Structured is a YAML or JSON document with an embedded rule array.
	Structured Kind = "structured"
	// GeoIP is a MaxMind database filtered by the source name.
	GeoIP Kind = "geoip"
)

// ParseKind parses a kind name. The empty string is Auto.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return Auto, nil
	case Auto, Flat, Structured, GeoIP:
		return k, nil
	case "list", "text", "txt":
		return Flat, nil
	case "yaml", "json":
		return Structured, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// Resolve returns the concrete kind for a location, inferring it when k is
// Auto.
func (k Kind) Resolve(location string) Kind {
	if k != Auto && k != "" {
		return k
	}
	return InferKind(location)
}

// InferKind maps a location's extension to a kind. Unknown extensions are
// treated as flat lists.
func InferKind(location string) Kind {
	switch Extension(location) {
	case ".yaml", ".yml", ".json":
		return Structured
	case ".mmdb":
		return GeoIP
	default:
		return Flat
	}
}

// Extension returns the lower-cased extension of a location's path,
// ignoring any query string.
func Extension(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// IsRuleExtension reports whether ext names a format some adapter reads.
func IsRuleExtension(ext string) bool {
	switch ext {
	case ".list", ".txt", ".conf", ".yaml", ".yml", ".json", ".mmdb":
		return true
	}
	return false
}
