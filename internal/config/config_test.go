package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxbrian/surge-ruleset/internal/catalog"
	"github.com/xxxbrian/surge-ruleset/internal/fetcher"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "rules", cfg.Output.Dir)
	assert.Equal(t, 10, cfg.Fetch.Workers)
	assert.Equal(t, fetcher.DefaultTimeout, cfg.Fetch.Timeout)
	assert.Equal(t, fetcher.DefaultUserAgent, cfg.Fetch.UserAgent)
	assert.Equal(t, "static", cfg.Catalog.Type)
	assert.Equal(t, ":8080", cfg.Serve.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Serve.Refresh)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output:
  dir: /srv/rules
fetch:
  workers: 4
  timeout: 15s
catalog:
  type: github
  owner: blackmatrix7
  repo: ios_rule_script
  path: rule/Clash
  dir_template: https://raw.githubusercontent.com/blackmatrix7/ios_rule_script/master/rule/Clash/{name}/{name}.yaml
custom:
  sources:
    - name: Mine
      url: https://example.com/mine.list
      kind: flat
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/rules", cfg.Output.Dir)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "github", cfg.Catalog.Type)
	assert.Equal(t, "ios_rule_script", cfg.Catalog.Repo)
	assert.Equal(t, "static", cfg.Custom.Type)
	assert.Equal(t, []catalog.SourceConfig{{Name: "Mine", URL: "https://example.com/mine.list", Kind: "flat"}}, cfg.Custom.Sources)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SURGE_RULESET_FETCH__WORKERS", "3")
	t.Setenv("SURGE_RULESET_FETCH__USER_AGENT", "test-agent")
	t.Setenv("SURGE_RULESET_OUTPUT__DIR", "out")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Fetch.Workers)
	assert.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, "out", cfg.Output.Dir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Fetch.Workers = 0
	cfg.Catalog.Type = "carrier-pigeon"
	cfg.Output.Dir = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.workers")
	assert.Contains(t, err.Error(), "catalog")
	assert.Contains(t, err.Error(), "output.dir")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "fetch.user_agent", envKey("SURGE_RULESET_FETCH__USER_AGENT"))
	assert.Equal(t, "serve.addr", envKey("SURGE_RULESET_SERVE__ADDR"))
}
