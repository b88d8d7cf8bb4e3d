package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkFlagsRegistered(t *testing.T) {
	for _, name := range []string{"tcp", "tcp-mode", "network", "tui-managed", "config"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), name)
	}
}

func TestNetworkRequestedAnyFlag(t *testing.T) {
	reset := func() {
		flagTCP, flagTCPMode, flagNetwork, flagTUIManaged = false, false, false, false
	}
	reset()
	t.Cleanup(reset)

	require.False(t, networkRequested())

	for _, set := range []*bool{&flagTCP, &flagTCPMode, &flagNetwork, &flagTUIManaged} {
		reset()
		*set = true
		assert.True(t, networkRequested())
	}
}
