// Package catalog discovers the rule sources an aggregation run processes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/xxxbrian/surge-ruleset/internal/source"
)

// ErrNotSequence is returned when a listing document is not a sequence.
var ErrNotSequence = errors.New("source listing is not a sequence")

// Entry is one discovered source.
type Entry struct {
	Name     string
	Kind     source.Kind
	Location string
}

// Lister enumerates sources. An empty result is zero work, not an error.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// Getter fetches the raw content at a location.
type Getter interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Type selects a Lister implementation.
type Type string

const (
	TypeStatic   Type = "static"
	TypeManifest Type = "manifest"
	TypeGitHub   Type = "github"
)

// SourceConfig is one statically configured source.
type SourceConfig struct {
	Name string `koanf:"name"`
	Kind string `koanf:"kind"`
	URL  string `koanf:"url"`
}

// Config describes how to build a Lister.
type Config struct {
	Type        string         `koanf:"type"`
	URL         string         `koanf:"url"`
	APIBase     string         `koanf:"api_base"`
	Owner       string         `koanf:"owner"`
	Repo        string         `koanf:"repo"`
	Path        string         `koanf:"path"`
	Ref         string         `koanf:"ref"`
	DirTemplate string         `koanf:"dir_template"`
	Sources     []SourceConfig `koanf:"sources"`
}

// Validate checks that the fields the selected type needs are present.
func (c Config) Validate() error {
	switch Type(strings.ToLower(c.Type)) {
	case "", TypeStatic:
		for i, s := range c.Sources {
			if s.URL == "" {
				return fmt.Errorf("sources[%d]: url is required", i)
			}
			if _, err := source.ParseKind(s.Kind); err != nil {
				return fmt.Errorf("sources[%d]: %w", i, err)
			}
		}
	case TypeManifest:
		if c.URL == "" {
			return errors.New("manifest catalog requires url")
		}
	case TypeGitHub:
		if c.Owner == "" || c.Repo == "" {
			return errors.New("github catalog requires owner and repo")
		}
	default:
		return fmt.Errorf("unknown catalog type %q", c.Type)
	}
	return nil
}

// New builds the Lister described by cfg. getter is used by listers that
// download their listing.
func New(cfg Config, getter Getter) (Lister, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch Type(strings.ToLower(cfg.Type)) {
	case TypeManifest:
		return &Manifest{URL: cfg.URL, Getter: getter}, nil
	case TypeGitHub:
		return &GitHub{
			APIBase:     cfg.APIBase,
			Owner:       cfg.Owner,
			Repo:        cfg.Repo,
			Path:        cfg.Path,
			Ref:         cfg.Ref,
			DirTemplate: cfg.DirTemplate,
			Getter:      getter,
		}, nil
	default:
		entries := make([]Entry, 0, len(cfg.Sources))
		for _, s := range cfg.Sources {
			e, err := newEntry(s.Name, s.Kind, s.URL)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		return Static(entries), nil
	}
}

// Static is a fixed source list.
type Static []Entry

// List returns a copy of the entries.
func (s Static) List(context.Context) ([]Entry, error) {
	return append([]Entry(nil), s...), nil
}

// newEntry builds an Entry, naming it after the location's file stem when
// name is empty.
func newEntry(name, kind, location string) (Entry, error) {
	k, err := source.ParseKind(kind)
	if err != nil {
		return Entry{}, err
	}
	if name == "" {
		name = stem(location)
	}
	return Entry{Name: name, Kind: k.Resolve(location), Location: location}, nil
}

// stem returns the last path element of location without its extension.
func stem(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	base := path.Base(location)
	return strings.TrimSuffix(base, path.Ext(base))
}
