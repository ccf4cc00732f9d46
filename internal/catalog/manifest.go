package catalog

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest reads the source list from a YAML or JSON document holding a
// sequence of {name, kind, url} mappings.
type Manifest struct {
	URL    string
	Getter Getter
}

type manifestEntry struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

// List fetches and decodes the manifest.
func (m *Manifest) List(ctx context.Context) ([]Entry, error) {
	data, err := m.Getter.Fetch(ctx, m.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a manifest document. Anything but a sequence is
// rejected with ErrNotSequence.
func ParseManifest(data []byte) ([]Entry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, ErrNotSequence
	}

	var raw []manifestEntry
	if err := doc.Content[0].Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		if r.URL == "" {
			return nil, fmt.Errorf("manifest entry %d: url is required", i)
		}
		e, err := newEntry(r.Name, r.Kind, r.URL)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
