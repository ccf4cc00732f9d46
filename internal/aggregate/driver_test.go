package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxbrian/surge-ruleset/internal/catalog"
	"github.com/xxxbrian/surge-ruleset/internal/output"
	"github.com/xxxbrian/surge-ruleset/internal/source"
)

type mapFetcher struct {
	mu      sync.Mutex
	docs    map[string]string
	fetched []string
}

func (m *mapFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, location)
	m.mu.Unlock()

	body, ok := m.docs[location]
	if !ok {
		return nil, fmt.Errorf("GET %s: 404 Not Found", location)
	}
	return []byte(body), nil
}

type failingLister struct{ err error }

func (f failingLister) List(context.Context) ([]catalog.Entry, error) { return nil, f.err }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to be absent", path)
}

func newTestDriver(f Fetcher, root string, workers int) *Driver {
	return NewDriver(f, output.NewWriter(root), Options{Workers: workers, Logger: zerolog.Nop()})
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	f := &mapFetcher{docs: map[string]string{
		"mem://Basic.list": "# comment\nDOMAIN,a.com\nDOMAIN-SUFFIX,b.com\nIP-CIDR,10.0.0.0/8\n" +
			"IP-CIDR,192.168.1.5\ngarbage-line-no-comma-but-kept-as-domain\n",
		"mem://Google.yaml": "payload:\n  - DOMAIN-SUFFIX,google.com\n  - '+.google.com'\n" +
			"  - IP-CIDR6,2001:4860::/32,no-resolve\n  - DOMAIN-KEYWORD,google\n",
		"mem://Keyword.list": "# nothing here\n\nDOMAIN-KEYWORD,ads\n",
		"mem://Custom.list":  "DOMAIN,mine.example\nIP-CIDR,1.1.1.1\n",
	}}

	primary := catalog.Static{
		{Name: "Basic", Kind: source.Flat, Location: "mem://Basic.list"},
		{Name: "Google", Kind: source.Auto, Location: "mem://Google.yaml"},
		{Name: "Keyword", Kind: source.Flat, Location: "mem://Keyword.list"},
		{Name: "Missing", Kind: source.Flat, Location: "mem://Missing.list"},
		{Name: "../escape", Kind: source.Flat, Location: "mem://Basic.list"},
	}
	custom := catalog.Static{
		{Name: "Custom", Kind: source.Flat, Location: "mem://Custom.list"},
	}

	report, err := newTestDriver(f, root, 2).Run(context.Background(), primary, custom)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 6)

	assert.Equal(t, "+.b.com\na.com\ngarbage-line-no-comma-but-kept-as-domain\n",
		readFile(t, filepath.Join(root, "Basic", "domains.list")))
	assert.Equal(t, "10.0.0.0/8\n192.168.1.5/32\n",
		readFile(t, filepath.Join(root, "Basic", "ipcidr.list")))

	assert.Equal(t, "+.google.com\n", readFile(t, filepath.Join(root, "Google", "domains.list")))
	assert.Equal(t, "2001:4860::/32\n", readFile(t, filepath.Join(root, "Google", "ipcidr.list")))

	assertMissing(t, filepath.Join(root, "Keyword"))
	assertMissing(t, filepath.Join(root, "Missing"))

	assert.Equal(t, "mine.example\n", readFile(t, filepath.Join(root, "Other", "Custom-domains.list")))
	assert.Equal(t, "1.1.1.1/32\n", readFile(t, filepath.Join(root, "Other", "Custom-ipcidr.list")))

	statuses := map[string]Status{}
	for _, o := range report.Outcomes {
		statuses[o.Source.Name] = o.Status
	}
	assert.Equal(t, map[string]Status{
		"Basic":     StatusWritten,
		"Google":    StatusWritten,
		"Keyword":   StatusEmpty,
		"Missing":   StatusSkipped,
		"../escape": StatusSkipped,
		"Custom":    StatusWritten,
	}, statuses)

	assert.Equal(t, PhaseCustom, report.Outcomes[5].Phase)
	assert.Equal(t, 3, report.Count(StatusWritten))
	assert.Equal(t, 1, report.Count(StatusEmpty))
	assert.Equal(t, 2, report.Count(StatusSkipped))
	domains, cidrs := report.Totals()
	assert.Equal(t, 5, domains)
	assert.Equal(t, 4, cidrs)
	// the escaping name is rejected before any fetch
	assert.Len(t, f.fetched, 5)
}

func TestRunOutcomesFollowListingOrder(t *testing.T) {
	f := &mapFetcher{docs: map[string]string{}}
	var entries catalog.Static
	for i := 0; i < 25; i++ {
		entries = append(entries, catalog.Entry{Name: fmt.Sprintf("s%02d", i), Location: fmt.Sprintf("mem://%d", i)})
	}

	report, err := newTestDriver(f, t.TempDir(), 4).Run(context.Background(), entries, nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 25)
	for i, o := range report.Outcomes {
		assert.Equal(t, entries[i].Name, o.Source.Name)
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Error(t, o.Err)
	}
}

func TestRunEmptyListing(t *testing.T) {
	report, err := newTestDriver(&mapFetcher{}, t.TempDir(), 1).Run(context.Background(), catalog.Static{}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
}

func TestRunDiscoveryFailure(t *testing.T) {
	_, err := newTestDriver(&mapFetcher{}, t.TempDir(), 1).Run(context.Background(), failingLister{catalog.ErrNotSequence}, nil)
	assert.ErrorIs(t, err, ErrDiscovery)
	assert.ErrorIs(t, err, catalog.ErrNotSequence)
}

func TestRunCustomDiscoveryFailureAfterPool(t *testing.T) {
	root := t.TempDir()
	f := &mapFetcher{docs: map[string]string{"mem://a": "a.com"}}
	primary := catalog.Static{{Name: "A", Location: "mem://a"}}

	report, err := newTestDriver(f, root, 1).Run(context.Background(), primary, failingLister{errors.New("boom")})
	assert.ErrorIs(t, err, ErrDiscovery)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "a.com\n", readFile(t, filepath.Join(root, "A", "domains.list")))
}

type slowFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowFetcher) Fetch(context.Context, string) ([]byte, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return []byte("DOMAIN,x.com"), nil
}

func TestRunBoundsConcurrency(t *testing.T) {
	f := &slowFetcher{}
	var entries catalog.Static
	for i := 0; i < 20; i++ {
		entries = append(entries, catalog.Entry{Name: fmt.Sprintf("s%d", i), Location: "mem://x"})
	}

	report, err := newTestDriver(f, t.TempDir(), 3).Run(context.Background(), entries, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Count(StatusWritten))
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
}

func TestRunRemovesStaleArtifacts(t *testing.T) {
	root := t.TempDir()
	f := &mapFetcher{docs: map[string]string{"mem://a": "a.com\nIP-CIDR,1.2.3.4"}}
	primary := catalog.Static{{Name: "A", Location: "mem://a"}}
	d := newTestDriver(f, root, 1)

	_, err := d.Run(context.Background(), primary, nil)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4/32\n", readFile(t, filepath.Join(root, "A", "ipcidr.list")))

	f.docs["mem://a"] = "DOMAIN-KEYWORD,only"
	report, err := d.Run(context.Background(), primary, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, report.Outcomes[0].Status)
	assertMissing(t, filepath.Join(root, "A", "ipcidr.list"))
	assertMissing(t, filepath.Join(root, "A", "domains.list"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "written", StatusWritten.String())
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestRunWriteFailureIsLocal(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	f := &mapFetcher{docs: map[string]string{"mem://a": "a.com"}}
	primary := catalog.Static{
		{Name: "A", Location: "mem://a"},
		{Name: "B", Location: "mem://b"},
	}

	report, err := newTestDriver(f, root, 2).Run(context.Background(), primary, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.Error(t, report.Outcomes[0].Err)
	assert.Equal(t, StatusSkipped, report.Outcomes[1].Status)
}

func TestRunSkipsDuplicateNames(t *testing.T) {
	root := t.TempDir()
	docs := map[string]string{"mem://Mine.list": "DOMAIN,mine.example\n"}
	var primary catalog.Static
	for i := range 8 {
		loc := fmt.Sprintf("mem://%d/Foo.list", i)
		docs[loc] = fmt.Sprintf("DOMAIN,foo%d.example\n", i)
		primary = append(primary, catalog.Entry{Name: "Foo", Location: loc})
	}
	custom := catalog.Static{
		{Name: "Mine", Location: "mem://Mine.list"},
		{Name: "Mine", Location: "mem://Missing.list"},
	}
	f := &mapFetcher{docs: docs}

	report, err := newTestDriver(f, root, 8).Run(context.Background(), primary, custom)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 10)

	assert.Equal(t, StatusWritten, report.Outcomes[0].Status)
	for _, out := range report.Outcomes[1:8] {
		assert.Equal(t, StatusSkipped, out.Status)
		assert.ErrorIs(t, out.Err, ErrDuplicateName)
	}
	assert.Equal(t, StatusWritten, report.Outcomes[8].Status)
	assert.Equal(t, StatusSkipped, report.Outcomes[9].Status)
	assert.ErrorIs(t, report.Outcomes[9].Err, ErrDuplicateName)

	// The first listed source owns the artifact; duplicates are never fetched.
	assert.Equal(t, "foo0.example\n", readFile(t, filepath.Join(root, "Foo", output.DomainsFile)))
	assert.ElementsMatch(t, []string{"mem://0/Foo.list", "mem://Mine.list"}, f.fetched)
	assert.Equal(t, 0, report.Count(StatusFailed))
}
