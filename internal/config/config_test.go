package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FETCH_ORDER", "")
	t.Setenv("FETCH_TIMEOUT_MS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"direct", "proxy", "readable"}, cfg.FetchOrder)
	assert.Equal(t, 15000, cfg.FetchTimeoutMs)
	assert.True(t, cfg.ParserWeightMisparseFix)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FETCH_ORDER", " Proxy, readable ,,")
	t.Setenv("FETCH_TIMEOUT_MS", "2500")
	t.Setenv("PARSER_WEIGHT_MISPARSE_FIX", "off")
	t.Setenv("IMAP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"proxy", "readable"}, cfg.FetchOrder)
	assert.Equal(t, 2500, cfg.FetchTimeoutMs)
	assert.False(t, cfg.ParserWeightMisparseFix)
	assert.Equal(t, 993, cfg.IMAPPort)
}

func TestRequire(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.Require("IMAP_HOST", "  "))
	assert.NoError(t, cfg.Require("IMAP_HOST", "imap.example.com"))
}
