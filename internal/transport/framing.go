package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

// Frames are a 4-byte big-endian length prefix followed by that many bytes
// of JSON. Oversized frames are a protocol violation.

// readFrame reads one frame, enforcing the size limit before allocating.
func readFrame(r io.Reader, maxBytes int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, dserrors.New(dserrors.KindTransport, "transport.read",
			fmt.Errorf("read frame header: %w", err))
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > uint32(maxBytes) {
		return nil, dserrors.New(dserrors.KindTransport, "transport.read",
			fmt.Errorf("frame size %d exceeds limit %d", size, maxBytes))
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, dserrors.New(dserrors.KindTransport, "transport.read",
			fmt.Errorf("read frame payload: %w", err))
	}
	return payload, nil
}

// writeFrame writes one frame atomically with respect to other writers of
// the same connection; callers serialize.
func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return dserrors.New(dserrors.KindTransport, "transport.write",
			fmt.Errorf("write frame header: %w", err))
	}
	if _, err := w.Write(payload); err != nil {
		return dserrors.New(dserrors.KindTransport, "transport.write",
			fmt.Errorf("write frame payload: %w", err))
	}
	return nil
}
