package bridge

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
)

// Server exposes the broadcaster as a WebSocket endpoint at /ws.
type Server struct {
	broadcaster *Broadcaster
	httpServer  *http.Server
	listener    net.Listener
}

// NewServer creates a bridge server for addr. Nothing listens until
// Start is called.
func NewServer(addr string, broadcaster *Broadcaster) *Server {
	s := &Server{broadcaster: broadcaster}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start binds the listen address and serves in the background. The
// returned error covers the bind only; later serve errors are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("bridge serve error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, which differs from the configured
// one when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown disconnects all clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// Local observability endpoint with nothing secret; any origin
		// may watch
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("bridge upgrade error: %v", err)
		return
	}

	if os.Getenv("IDLEWATCH_DEBUG") == "true" {
		log.Printf("bridge client connected: %s", r.RemoteAddr)
	}
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			if os.Getenv("IDLEWATCH_DEBUG") == "true" {
				log.Printf("bridge client disconnected: %s", r.RemoteAddr)
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
