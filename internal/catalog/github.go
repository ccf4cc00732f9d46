package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xxxbrian/surge-ruleset/internal/source"
)

// DefaultAPIBase is the GitHub REST API root.
const DefaultAPIBase = "https://api.github.com"

// GitHub lists a repository directory through the contents API. Files with
// a rule extension become sources; subdirectories become sources when
// DirTemplate is set, with {name} replaced by the directory name.
type GitHub struct {
	APIBase     string
	Owner       string
	Repo        string
	Path        string
	Ref         string
	DirTemplate string
	Getter      Getter
}

type contentEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

// ContentsURL returns the contents API URL of the listed directory.
func (g *GitHub) ContentsURL() string {
	base := g.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimSuffix(base, "/"), g.Owner, g.Repo, strings.Trim(g.Path, "/"))
	if g.Ref != "" {
		u += "?ref=" + url.QueryEscape(g.Ref)
	}
	return u
}

// List fetches the directory listing.
func (g *GitHub) List(ctx context.Context) ([]Entry, error) {
	data, err := g.Getter.Fetch(ctx, g.ContentsURL())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s: %w", g.Owner, g.Repo, err)
	}
	return g.parse(data)
}

func (g *GitHub) parse(data []byte) ([]Entry, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return nil, ErrNotSequence
	}

	var contents []contentEntry
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var entries []Entry
	for _, c := range contents {
		switch c.Type {
		case "file":
			ext := source.Extension(c.Name)
			if !source.IsRuleExtension(ext) || c.DownloadURL == "" {
				continue
			}
			entries = append(entries, Entry{
				Name:     c.Name[:len(c.Name)-len(ext)],
				Kind:     source.InferKind(c.Name),
				Location: c.DownloadURL,
			})
		case "dir":
			if g.DirTemplate == "" {
				continue
			}
			location := strings.ReplaceAll(g.DirTemplate, "{name}", url.PathEscape(c.Name))
			entries = append(entries, Entry{
				Name:     c.Name,
				Kind:     source.InferKind(location),
				Location: location,
			})
		}
	}
	return entries, nil
}
