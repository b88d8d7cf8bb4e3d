package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/logging"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
	"github.com/dshield-mcp/dshield-mcp/internal/tools"
)

const idleSweepInterval = time.Minute

// TCPServer is the network transport: framed JSON-RPC over TCP with
// session authentication, per-connection rate limiting, an idle janitor,
// and FIFO response ordering per connection.
type TCPServer struct {
	dispatcher *tools.Dispatcher
	cfg        config.TCPTransportConfig

	mu       sync.Mutex
	conns    map[*tcpConn]struct{}
	listener net.Listener
	wg       sync.WaitGroup
	baseCtx  context.Context
}

// tcpConn is the per-connection session state.
type tcpConn struct {
	conn        net.Conn
	bucket      *rate.Limiter
	connectedAt time.Time

	mu            sync.Mutex
	lastActivity  time.Time
	authenticated bool
	initialized   bool
	apiKey        string
	permissions   []string

	// Response slots are queued in request order; the writer drains them
	// sequentially so pipelined requests keep FIFO responses. done signals
	// teardown; the queue itself is never closed, so a reader racing a
	// janitor or shutdown close cannot send on a closed channel.
	respQueue chan chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewTCPServer wires the server to its dispatcher and configuration.
func NewTCPServer(dispatcher *tools.Dispatcher, cfg config.TCPTransportConfig) *TCPServer {
	return &TCPServer{
		dispatcher: dispatcher,
		cfg:        cfg,
		conns:      map[*tcpConn]struct{}{},
	}
}

// Run accepts connections until the context is cancelled, then closes every
// open connection and waits for their handlers.
func (s *TCPServer) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.baseCtx = ctx
	s.mu.Unlock()
	log.Info().Str("addr", addr).Msg("Serving on TCP")

	s.wg.Add(1)
	go s.janitor(ctx)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn().Err(err).Msg("Accept failed")
			continue
		}
		if !s.admit(conn) {
			continue
		}
	}

	s.closeAll()
	s.wg.Wait()
	return nil
}

// admit enforces the connection cap and starts the handler.
func (s *TCPServer) admit(conn net.Conn) bool {
	s.mu.Lock()
	if len(s.conns) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Connection cap reached, rejecting")
		conn.Close()
		return false
	}
	now := time.Now()
	c := &tcpConn{
		conn:         conn,
		bucket:       rate.NewLimiter(rate.Limit(float64(s.cfg.RateLimitRPM)/60.0), s.cfg.RateLimitBurst),
		connectedAt:  now,
		lastActivity: now,
		respQueue:    make(chan chan []byte, 64),
		done:         make(chan struct{}),
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	telemetry.ActiveConnections.Inc()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Connection accepted")

	s.wg.Add(2)
	go s.writeLoop(c)
	go s.readLoop(c)
	return true
}

func (s *TCPServer) remove(c *tcpConn) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()

		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		telemetry.ActiveConnections.Dec()
		log.Info().
			Str("remote", c.conn.RemoteAddr().String()).
			Dur("session", time.Since(c.connectedAt)).
			Msg("Connection closed")
	})
}

func (s *TCPServer) closeAll() {
	s.mu.Lock()
	open := make([]*tcpConn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()
	for _, c := range open {
		s.remove(c)
	}
}

// readLoop reads frames and dispatches each on its own goroutine while
// preserving response order through the queue.
func (s *TCPServer) readLoop(c *tcpConn) {
	defer s.wg.Done()
	defer s.remove(c)

	for {
		frame, err := readFrame(c.conn, s.cfg.MaxMessageBytes)
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Str("remote", c.conn.RemoteAddr().String()).Msg("Closing connection")
			}
			return
		}
		c.touch()

		select {
		case <-c.done:
			return
		default:
		}
		slot := make(chan []byte, 1)
		select {
		case c.respQueue <- slot:
		default:
			// Queue full: the peer is pipelining faster than it reads.
			log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("Response queue full, closing")
			return
		}

		s.wg.Add(1)
		go func(frame []byte, slot chan []byte) {
			defer s.wg.Done()
			slot <- s.serve(c, frame)
		}(frame, slot)
	}
}

// writeLoop drains the response queue in order until teardown.
func (s *TCPServer) writeLoop(c *tcpConn) {
	defer s.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case slot := <-c.respQueue:
			select {
			case <-c.done:
				return
			case resp := <-slot:
				if err := writeFrame(c.conn, resp); err != nil {
					log.Debug().Err(err).Msg("Write failed, closing connection")
					s.remove(c)
					return
				}
			}
		}
	}
}

// serve handles one frame: rate limit, authentication gate, then dispatch.
func (s *TCPServer) serve(c *tcpConn, frame []byte) []byte {
	var req tools.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return encode(tools.Response{JSONRPC: "2.0", Error: &tools.Error{
			Code: tools.ErrParse, Message: "failed to parse JSON-RPC request"}})
	}

	if !c.bucket.Allow() {
		return encode(tools.Response{JSONRPC: "2.0", ID: req.ID, Error: &tools.Error{
			Code: tools.ErrRateLimited, Message: "connection rate limit exceeded"}})
	}

	if req.Method == "authenticate" {
		return encode(s.authenticate(c, req))
	}
	c.mu.Lock()
	authed := c.authenticated
	if req.Method == "initialize" {
		c.initialized = true
	}
	c.mu.Unlock()
	if !authed && req.Method != "ping" {
		return encode(tools.Response{JSONRPC: "2.0", ID: req.ID, Error: &tools.Error{
			Code: tools.ErrInvalidRequest, Message: "authentication required"}})
	}

	ctx, _ := logging.WithRequestID(s.baseCtx)
	return encode(s.dispatcher.HandleRequest(ctx, req))
}

// authenticate validates the presented API key against the configured set.
func (s *TCPServer) authenticate(c *tcpConn, req tools.Request) tools.Response {
	var p tools.AuthenticateParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.APIKey == "" {
		return tools.Response{JSONRPC: "2.0", ID: req.ID, Error: &tools.Error{
			Code: tools.ErrInvalidParams, Message: "api_key is required"}}
	}

	for _, key := range s.cfg.APIKeys {
		if key.Key != p.APIKey {
			continue
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			break
		}
		c.mu.Lock()
		c.authenticated = true
		c.apiKey = p.APIKey
		c.permissions = key.Permissions
		c.mu.Unlock()
		log.Info().Str("remote", c.conn.RemoteAddr().String()).Msg("Connection authenticated")

		body, _ := json.Marshal(tools.AuthenticateResult{
			Authenticated: true,
			Permissions:   key.Permissions,
		})
		return tools.Response{JSONRPC: "2.0", ID: req.ID, Result: body}
	}

	log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("Authentication failed")
	return tools.Response{JSONRPC: "2.0", ID: req.ID, Error: &tools.Error{
		Code: tools.ErrInvalidRequest, Message: "authentication failed"}}
}

// janitor closes connections idle past the configured timeout.
func (s *TCPServer) janitor(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	timeout := time.Duration(s.cfg.ConnectionTimeoutSec) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := make([]*tcpConn, 0)
			for c := range s.conns {
				if time.Since(c.idleSince()) > timeout {
					stale = append(stale, c)
				}
			}
			s.mu.Unlock()
			for _, c := range stale {
				log.Info().Str("remote", c.conn.RemoteAddr().String()).Msg("Closing idle connection")
				s.remove(c)
			}
		}
	}
}

func (c *tcpConn) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *tcpConn) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func encode(resp tools.Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	return b
}
