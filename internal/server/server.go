// Package server wires the Protocol Frontend (spec §6): transport
// framing, frame validation, rate limiting, dispatch, and tool
// registration into a single stdio/TCP server loop.
//
// The read-validate-dispatch-respond loop is grounded on
// brennhill-gasoline-mcp-ai-devtools/cmd/dev-console/bridge_forward.go's
// bridgeForwardRequest (read message, classify, forward, write
// response), adapted from HTTP daemon forwarding to direct in-process
// dispatch.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/dispatch"
	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/frame"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcpmetrics"
	"github.com/dshield-mcp/dshield-mcp-server/internal/obslog"
	"github.com/dshield-mcp/dshield-mcp-server/internal/ratelimit"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
	"github.com/dshield-mcp/dshield-mcp-server/internal/transport"
	"github.com/dshield-mcp/dshield-mcp-server/internal/validate"
)

// DefaultConnectionConcurrency is the per-connection parallel tool-call
// cap (spec §5).
const DefaultConnectionConcurrency = 8

// DefaultDrainTimeout is how long graceful shutdown waits for in-flight
// calls before forcing shutdown (spec §6).
const DefaultDrainTimeout = 30 * time.Second

// Server is the Protocol Frontend: it owns the tool registry, feature
// manager, dispatcher, and rate-limiter hierarchy, and drives one or
// more connections against them.
type Server struct {
	Registry   *registry.Registry
	Features   *feature.Manager
	Dispatcher *dispatch.Dispatcher
	Limits     *ratelimit.Hierarchy

	MaxMessageSize int
}

// New builds a Server from its already-configured collaborators.
func New(reg *registry.Registry, features *feature.Manager, d *dispatch.Dispatcher, limits *ratelimit.Hierarchy) *Server {
	return &Server{
		Registry:       reg,
		Features:       features,
		Dispatcher:     d,
		Limits:         limits,
		MaxMessageSize: validate.MaxMessageSize,
	}
}

// connection is one stdio or TCP peer: its own API key (for rate
// limiting), concurrency cap, and a write mutex since responses
// complete out of order but share one underlying writer.
type connection struct {
	id      string
	apiKey  string
	writer  io.Writer
	writeMu sync.Mutex
	sem     chan struct{}
	wg      sync.WaitGroup
}

func newConnection(id, apiKey string, w io.Writer, concurrency int) *connection {
	if concurrency <= 0 {
		concurrency = DefaultConnectionConcurrency
	}
	return &connection{id: id, apiKey: apiKey, writer: w, sem: make(chan struct{}, concurrency)}
}

// ServeStdio runs the server loop over stdin/stdout until the stream
// closes or ctx is canceled. MCP stdio mode never logs to stdout —
// obslog is configured to write elsewhere by the caller.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	conn := newConnection("stdio", "", w, DefaultConnectionConcurrency)
	reader := bufio.NewReader(r)
	log := obslog.Component("server")

	for {
		if ctx.Err() != nil {
			break
		}
		raw, framing, err := transport.ReadMessageWithMode(reader, s.MaxMessageSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Error().Err(err).Msg("stdio read failed")
			break
		}
		s.handleMessage(ctx, conn, raw, framing)
	}

	conn.wg.Wait()
	return nil
}

// ServeTCP accepts connections on addr, authenticating each with the
// handshake frame before entering its message loop (spec §6).
func (s *Server) ServeTCP(ctx context.Context, addr string, validateKey transport.KeyValidator) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer func() { _ = listener.Close() }()

	log := obslog.Component("server")
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("tcp accept failed")
			continue
		}
		go s.handleTCPConnection(ctx, conn, validateKey)
	}
}

func (s *Server) handleTCPConnection(ctx context.Context, netConn net.Conn, validateKey transport.KeyValidator) {
	defer func() { _ = netConn.Close() }()
	log := obslog.Component("server")

	reader := bufio.NewReader(netConn)
	if err := transport.Authenticate(reader, s.MaxMessageSize, validateKey); err != nil {
		log.Warn().Err(err).Str("remote", netConn.RemoteAddr().String()).Msg("tcp handshake failed")
		return
	}

	conn := newConnection(netConn.RemoteAddr().String(), "", netConn, DefaultConnectionConcurrency)

	for {
		if ctx.Err() != nil {
			break
		}
		raw, framing, err := transport.ReadMessageWithMode(reader, s.MaxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("tcp read failed")
			}
			break
		}
		s.handleMessage(ctx, conn, raw, framing)
	}
	conn.wg.Wait()
}

// handleMessage validates and dispatches one raw frame. Dispatch for a
// tools/call runs under the connection's concurrency semaphore so
// independent calls overlap up to the cap (spec §5); the call result is
// written back as soon as it completes, regardless of the order other
// calls finish in — the response id is what preserves correspondence.
func (s *Server) handleMessage(ctx context.Context, conn *connection, raw []byte, framing transport.Framing) {
	log := obslog.Component("server")

	outcome := validate.ValidateFrame(raw)
	if outcome.Dropped {
		log.Warn().Str("reason", outcome.Reason).Msg("dropped malformed frame")
		return
	}

	var req frame.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Warn().Err(err).Msg("dropped frame with invalid JSON-RPC envelope")
		return
	}

	switch req.Kind() {
	case frame.KindInvalid:
		log.Warn().Msg("dropped frame with invalid id")
		return
	case frame.KindNotification:
		s.handleNotification(req)
		return
	}

	if serr := validate.ValidateMethodName(req.Method); serr != nil {
		s.writeError(conn, framing, req.ID, serr)
		return
	}

	if serr := s.Limits.Check(conn.apiKey, conn.id); serr != nil {
		mcpmetrics.RateLimitRejectionsTotal.WithLabelValues(string(serr.Code)).Inc()
		s.writeError(conn, framing, req.ID, serr)
		return
	}

	conn.sem <- struct{}{}
	conn.wg.Add(1)
	go func() {
		defer conn.wg.Done()
		defer func() { <-conn.sem }()
		s.handleRequest(ctx, conn, framing, req)
	}()
}

func (s *Server) handleNotification(req frame.Request) {
	// initialized/shutdown carry no response; the server simply logs
	// them for observability. No further dispatch happens for a
	// notification per spec §6.
	obslog.Component("server").Info().Str("method", req.Method).Msg("received notification")
}

func (s *Server) handleRequest(ctx context.Context, conn *connection, framing transport.Framing, req frame.Request) {
	switch req.Method {
	case "tools/list":
		s.writeResult(conn, framing, req.ID, map[string]any{"tools": s.Registry.ListAvailable(s.Features)})
		return
	case "tools/call":
		s.handleToolCall(ctx, conn, framing, req)
		return
	}
	s.writeError(conn, framing, req.ID, mcperr.New(mcperr.CodeUnknownTool, "no such method: "+req.Method))
}

type toolCallParams struct {
	Name           string          `json:"name"`
	Arguments      json.RawMessage `json:"arguments"`
	TimeoutSeconds float64         `json:"timeout_seconds"`
}

func (s *Server) handleToolCall(ctx context.Context, conn *connection, framing transport.Framing, req frame.Request) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(conn, framing, req.ID, mcperr.New(mcperr.CodeInvalidParams, "malformed tools/call params", mcperr.WithPointer("/params")))
		return
	}

	start := time.Now()
	result, serr := s.Dispatcher.Dispatch(ctx, params.Name, params.Arguments, params.TimeoutSeconds)
	mcpmetrics.ToolCallDuration.WithLabelValues(params.Name).Observe(time.Since(start).Seconds())
	if serr != nil {
		mcpmetrics.ToolCallsTotal.WithLabelValues(params.Name, string(serr.Code)).Inc()
		s.writeError(conn, framing, req.ID, serr)
		return
	}
	mcpmetrics.ToolCallsTotal.WithLabelValues(params.Name, "ok").Inc()
	s.writeResult(conn, framing, req.ID, result)
}

func (s *Server) writeResult(conn *connection, framing transport.Framing, id any, result any) {
	resp, err := frame.NewResponse(id, result)
	if err != nil {
		s.writeError(conn, framing, id, mcperr.New(mcperr.CodeInternal, "failed to encode result"))
		return
	}
	s.write(conn, framing, resp)
}

func (s *Server) writeError(conn *connection, framing transport.Framing, id any, serr *mcperr.StructuredError) {
	resp := frame.NewErrorResponse(id, serr.Code.JSONRPCCode(), serr.Message, serr)
	s.write(conn, framing, resp)
}

func (s *Server) write(conn *connection, framing transport.Framing, resp *frame.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		obslog.Component("server").Error().Err(err).Msg("failed to marshal response")
		return
	}
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if writeErr := transport.WriteMessage(conn.writer, payload, framing); writeErr != nil {
		obslog.Component("server").Error().Err(writeErr).Msg("failed to write response")
	}
}

// Shutdown waits up to timeout (DefaultDrainTimeout when timeout is not
// positive) for in-flight connections to
// finish, per the SIGTERM graceful-drain contract (spec §6).
func (s *Server) Shutdown(drain func(), timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	done := make(chan struct{})
	go func() {
		drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		obslog.Component("server").Warn().Msg("graceful drain timed out, forcing shutdown")
	}
}
