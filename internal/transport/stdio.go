package transport

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/logging"
	"github.com/dshield-mcp/dshield-mcp/internal/tools"
)

// Stdio is the local transport: framed requests on stdin, framed responses
// on stdout, one request at a time. All logging goes to stderr so stdout
// stays a clean protocol channel.
type Stdio struct {
	dispatcher *tools.Dispatcher
	in         io.Reader
	out        io.Writer
	maxBytes   int
}

// NewStdio wires the transport to the dispatcher.
func NewStdio(dispatcher *tools.Dispatcher, maxBytes int) *Stdio {
	return &Stdio{
		dispatcher: dispatcher,
		in:         os.Stdin,
		out:        os.Stdout,
		maxBytes:   maxBytes,
	}
}

// Run serves until stdin closes, a framing violation occurs, or the context
// is cancelled.
func (s *Stdio) Run(ctx context.Context) error {
	log.Info().Msg("Serving on stdio")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := readFrame(s.in, s.maxBytes)
		if err == io.EOF {
			log.Info().Msg("stdin closed, shutting down")
			return nil
		}
		if err != nil {
			return err
		}

		reqCtx, _ := logging.WithRequestID(ctx)
		resp := s.dispatcher.Handle(reqCtx, frame)
		if err := writeFrame(s.out, resp); err != nil {
			return err
		}
	}
}
