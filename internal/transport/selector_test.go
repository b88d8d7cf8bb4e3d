package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
)

func stubAncestry(t *testing.T, detected bool) {
	t.Helper()
	old := tuiAncestry
	tuiAncestry = func() bool { return detected }
	t.Cleanup(func() { tuiAncestry = old })
}

func TestSelectPrecedence(t *testing.T) {
	stubAncestry(t, false)
	cfg := &config.Config{}

	// Nothing set: local stdio.
	t.Setenv(config.EnvTUIMode, "")
	assert.Equal(t, ModeLocal, Select(cfg, false))

	// Explicit flag selects the network transport.
	assert.Equal(t, ModeNetwork, Select(cfg, true))

	// Configuration enables it without the flag.
	cfg.TCPTransport.Enabled = true
	assert.Equal(t, ModeNetwork, Select(cfg, false))
	cfg.TCPTransport.Enabled = false

	// A truthy TUI variable selects it ahead of everything.
	t.Setenv(config.EnvTUIMode, "true")
	assert.Equal(t, ModeNetwork, Select(cfg, false))
}

func TestSelectAncestryBeforeFlag(t *testing.T) {
	stubAncestry(t, true)
	cfg := &config.Config{}

	// A detected TUI ancestor selects network even with no flag or config.
	t.Setenv(config.EnvTUIMode, "")
	assert.Equal(t, ModeNetwork, Select(cfg, false))
}

func TestSelectFalsyEnvStillChecksAncestry(t *testing.T) {
	stubAncestry(t, true)
	cfg := &config.Config{}

	// A non-truthy TUI variable only skips the env step; ancestry
	// detection still runs and wins.
	for _, v := range []string{"0", "no", "false", "off"} {
		t.Setenv(config.EnvTUIMode, v)
		assert.Equal(t, ModeNetwork, Select(cfg, false), v)
	}
}

func TestSelectEnvVariants(t *testing.T) {
	stubAncestry(t, false)
	cfg := &config.Config{}

	for _, v := range []string{"1", "yes", "on", "TRUE"} {
		t.Setenv(config.EnvTUIMode, v)
		assert.Equal(t, ModeNetwork, Select(cfg, false), v)
	}
	for _, v := range []string{"0", "no", "false"} {
		t.Setenv(config.EnvTUIMode, v)
		assert.Equal(t, ModeLocal, Select(cfg, false), v)
	}
}
