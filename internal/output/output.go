// Package output writes rule sets to the on-disk artifact layout.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxbrian/surge-ruleset/internal/ruleset"
)

const (
	// DomainsFile holds the domain list of a source.
	DomainsFile = "domains.list"
	// CIDRsFile holds the CIDR list of a source.
	CIDRsFile = "ipcidr.list"
	// OtherDir holds artifacts from the custom-source phase.
	OtherDir = "Other"
)

// ErrInvalidName is returned for source names that are not a single safe
// path element.
var ErrInvalidName = errors.New("invalid source name")

// Artifact is the pair of files a rule set is written to.
type Artifact struct {
	Name        string
	DomainsPath string
	CIDRsPath   string
}

// Result records which files of an artifact were written.
type Result struct {
	Domains bool
	CIDRs   bool
}

// Writer writes artifacts below a root directory.
type Writer struct {
	root string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Root returns the output root directory.
func (w *Writer) Root() string {
	return w.root
}

// SourceArtifact returns <root>/<name>/domains.list and ipcidr.list.
func (w *Writer) SourceArtifact(name string) (Artifact, error) {
	if err := ValidateName(name); err != nil {
		return Artifact{}, err
	}
	dir := filepath.Join(w.root, name)
	return Artifact{
		Name:        name,
		DomainsPath: filepath.Join(dir, DomainsFile),
		CIDRsPath:   filepath.Join(dir, CIDRsFile),
	}, nil
}

// CustomArtifact returns <root>/Other/<name>-domains.list and
// <name>-ipcidr.list.
func (w *Writer) CustomArtifact(name string) (Artifact, error) {
	if err := ValidateName(name); err != nil {
		return Artifact{}, err
	}
	dir := filepath.Join(w.root, OtherDir)
	return Artifact{
		Name:        name,
		DomainsPath: filepath.Join(dir, name+"-"+DomainsFile),
		CIDRsPath:   filepath.Join(dir, name+"-"+CIDRsFile),
	}, nil
}

// Write stores rs in a. Each file is written only when its collection is
// non-empty; a file left over from a previous run is removed otherwise.
func (w *Writer) Write(a Artifact, rs ruleset.RuleSet) (Result, error) {
	var res Result
	var err error

	if res.Domains, err = writeList(a.DomainsPath, rs.Domains); err != nil {
		return res, err
	}
	if res.CIDRs, err = writeList(a.CIDRsPath, rs.CIDRs); err != nil {
		return res, err
	}
	return res, nil
}

// ValidateName checks that name can be used as a directory or file prefix.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Render returns the newline-terminated list payload.
func Render(entries []string) []byte {
	var n int
	for _, e := range entries {
		n += len(e) + 1
	}
	buf := make([]byte, 0, n)
	for _, e := range entries {
		buf = append(buf, e...)
		buf = append(buf, '\n')
	}
	return buf
}

func writeList(path string, entries []string) (bool, error) {
	if len(entries) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove stale %s: %w", path, err)
		}
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	_, err = tmp.Write(Render(entries))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0o644)
	}
	if err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
