// Package transport implements the two tool-protocol transports: local
// stdio with length-prefixed frames and networked TCP with session
// authentication, plus the selector that picks between them.
package transport

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
)

// Mode names the selected transport.
type Mode string

const (
	ModeLocal   Mode = "local"
	ModeNetwork Mode = "network"
)

// Process names that indicate a TUI is holding the terminal. When the
// server's ancestry contains one of these, stdio belongs to the TUI and the
// network transport is used instead.
var tuiProcessNames = []string{"tui", "textual", "rich", "curses", "tmux", "screen", "byobu"}

const ancestorScanDepth = 5

// tuiAncestry is swapped out in tests.
var tuiAncestry = tuiAncestor

// Select picks the transport mode. TUI detection runs first: a truthy
// DSHIELD_TUI_MODE, then process-ancestry inspection. A non-truthy value
// of the variable only skips the env step, not the ancestry walk. The
// explicit flag and configuration come after, else local stdio.
func Select(cfg *config.Config, tcpFlag bool) Mode {
	switch strings.ToLower(os.Getenv(config.EnvTUIMode)) {
	case "1", "true", "yes", "on":
		log.Info().Str("reason", config.EnvTUIMode).Msg("Selecting network transport")
		return ModeNetwork
	}
	if tuiAncestry() {
		log.Info().Str("reason", "tui_parent").Msg("Selecting network transport")
		return ModeNetwork
	}
	if tcpFlag || cfg.TCPTransport.Enabled {
		return ModeNetwork
	}
	return ModeLocal
}

// tuiAncestor walks up the process tree looking for a known TUI manager.
// Inspection failures degrade silently to local mode.
func tuiAncestor() bool {
	proc, err := process.NewProcess(int32(os.Getppid()))
	if err != nil {
		return false
	}
	for depth := 0; depth < ancestorScanDepth; depth++ {
		name, err := proc.Name()
		if err != nil {
			return false
		}
		lower := strings.ToLower(name)
		for _, marker := range tuiProcessNames {
			if strings.Contains(lower, marker) {
				log.Debug().Str("process", name).Msg("TUI ancestor detected")
				return true
			}
		}
		parent, err := proc.Parent()
		if err != nil || parent == nil {
			return false
		}
		proc = parent
	}
	return false
}
