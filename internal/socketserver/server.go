package socketserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/codefionn/chatd/internal/logger"
	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/state"
)

var log = logger.Named("socketserver")

// Options configures a Server.
type Options struct {
	ListenAddr string
	// MaxConnections caps concurrent connections; 0 means unlimited.
	MaxConnections int
	Limits         Limits
}

// Server accepts TCP connections and runs one Client per connection.
type Server struct {
	opts  Options
	state *state.State
	ai    AIClient

	listener net.Listener

	// Connection tracking
	connMu  sync.Mutex
	clients map[string]*Client

	// Control
	mu       sync.Mutex
	running  bool
	stopOnce sync.Once

	// Connection ID counter
	connIDCounter int
	connIDMu      sync.Mutex
}

// NewServer creates a server. ai may be nil, in which case the `ai` command
// runs in degraded mode.
func NewServer(opts Options, st *state.State, ai AIClient) *Server {
	opts.Limits = opts.Limits.withDefaults()
	return &Server{
		opts:    opts,
		state:   st,
		ai:      ai,
		clients: make(map[string]*Client),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server is already listening")
	}

	ln, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.ListenAddr, err)
	}
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Stop is called. It
// calls Listen first if needed.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	ln := s.listener
	s.mu.Unlock()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()

	if s.opts.MaxConnections > 0 {
		log.Info("Server started on %s (max connections: %d)", ln.Addr(), s.opts.MaxConnections)
	} else {
		log.Info("Server started on %s", ln.Addr())
	}

	return s.acceptLoop(ctx, ln)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("Listener closed, exiting accept loop")
				return nil
			}

			// Transient accept failure such as EMFILE.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			log.Error("Error accepting connection: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		clientID := s.generateConnectionID()
		session := NewSession(s.state, s.ai, s.opts.Limits, conn.RemoteAddr().String())
		client := NewClient(clientID, conn, session, s.opts.Limits.UploadTimeout)

		s.trackClient(clientID, client)
		go func() {
			defer s.untrackClient(clientID)
			client.Serve(ctx)
		}()

		log.Info("New connection accepted: %s from %s (total: %d)", clientID, conn.RemoteAddr(), s.ClientCount())
	}
}

// Stop closes the listener and every open connection. In-flight handlers
// are not waited for.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Info("Stopping server...")

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				log.Error("Error closing listener: %v", err)
			}
		}
		s.running = false
		s.mu.Unlock()

		s.connMu.Lock()
		for _, c := range s.clients {
			c.Stop()
		}
		s.connMu.Unlock()

		log.Info("Server stopped")
	})
}

func (s *Server) trackClient(clientID string, client *Client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.clients[clientID] = client
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Set(float64(len(s.clients)))
}

func (s *Server) untrackClient(clientID string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if _, ok := s.clients[clientID]; ok {
		delete(s.clients, clientID)
		metrics.ConnectionsActive.Set(float64(len(s.clients)))
		log.Info("Connection %s closed", clientID)
	}
}

// generateConnectionID generates a unique connection ID
func (s *Server) generateConnectionID() string {
	s.connIDMu.Lock()
	defer s.connIDMu.Unlock()

	s.connIDCounter++
	return fmt.Sprintf("conn_%d", s.connIDCounter)
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.clients)
}

// IsRunning returns whether the accept loop is active.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
