package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/meeting-copilot/internal/logging"
)

// Server serves /health, /metrics, the overlay hub on /ws and MCP on /mcp/ws.
type Server struct {
	Addr    string
	Hub     *Hub
	MCP     *sdk.Server
	Metrics http.Handler

	upgrader websocket.Upgrader
	srv      *http.Server
}

func NewServer(addr string, hub *Hub, mcpServer *sdk.Server, metrics http.Handler) *Server {
	return &Server{
		Addr:     addr,
		Hub:      hub,
		MCP:      mcpServer,
		Metrics:  metrics,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}
	if s.Hub != nil {
		mux.Handle("/ws", s.Hub)
	}
	if s.MCP != nil {
		mux.HandleFunc("/mcp/ws", s.serveMCP)
	}
	return mux
}

func (s *Server) serveMCP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("mcp: websocket upgrade failed", "err", err)
		return
	}
	go func() {
		session, err := s.MCP.Connect(context.Background(), newWebSocketTransport(conn), nil)
		if err != nil {
			logging.Warnw("mcp: server connect failed", "err", err)
			_ = conn.Close()
			return
		}
		if err := session.Wait(); err != nil {
			logging.Debugw("mcp: session ended", "err", err)
		}
	}()
}

// Run listens until ctx is done, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("control server listen %s: %w", s.Addr, err)
	}
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	logging.Infow("control server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.Hub != nil {
		s.Hub.Close()
	}
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	return nil
}
