package incppect

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Server holds the full state of one incppect instance: the getter
// registry, every connected client's request table, and the shared
// event-loop queue that every tick and every inbound message runs on.
//
// Register getters with Var and resources with SetResource before
// calling Run or RunAsync; a Server is not safe for concurrent use from
// outside its own event loop once running, except through NConnected
// and Stop.
type Server struct {
	params   Parameters
	registry *Registry
	handler  Handler
	logger   *zap.SugaredLogger

	loopCh chan func()
	quit   chan struct{}

	// mu guards the httpServer/listener handoff between Run and the
	// Stop closure, which race when Stop is called right after
	// RunAsync.
	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener

	nextClientID int32

	clients           map[int32]*clientState
	clientOrder       []int32
	transportToClient map[Transport]*clientState

	txTotal int64
	rxTotal int64

	resourceOverrides map[string][]byte
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithParameters overrides the server's Parameters (defaults are
// DefaultParameters()).
func WithParameters(p Parameters) Option {
	return func(s *Server) { s.params = p }
}

// WithHandler installs the Connect/Disconnect/Custom event handler.
func WithHandler(h Handler) Option {
	return func(s *Server) { s.handler = h }
}

// WithLogger installs a zap logger; by default a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l.Sugar() }
}

// NewServer constructs a Server and registers the built-in telemetry
// getters (incppect.nclients, incppect.tx_total, incppect.rx_total,
// incppect.ip_address[%d]).
func NewServer(opts ...Option) *Server {
	s := &Server{
		params:            DefaultParameters(),
		registry:          NewRegistry(),
		logger:            zap.NewNop().Sugar(),
		loopCh:            make(chan func(), 1024),
		quit:              make(chan struct{}),
		clients:           map[int32]*clientState{},
		transportToClient: map[Transport]*clientState{},
		resourceOverrides: map[string][]byte{},
		nextClientID:      1, // pre-incremented on connect; id 1 is never assigned
	}
	for _, o := range opts {
		o(s)
	}
	if s.params.PrintDebug {
		s.logger = s.logger.Desugar().WithOptions(zap.IncreaseLevel(zap.DebugLevel)).Sugar()
	}
	registerTelemetry(s)
	return s
}

// Var registers a getter under path. See Registry.Var.
func (s *Server) Var(path string, getter Getter) bool {
	return s.registry.Var(path, getter)
}

// SetResource registers an in-memory resource that takes priority over
// any file of the same name under Parameters.HTTPRoot.
func (s *Server) SetResource(url string, content []byte) {
	s.resourceOverrides[url] = content
}

// NConnected returns the number of currently connected clients. It is
// safe to call from any goroutine; a host polling for startup failure
// can use NConnected() == 0 after a failed Run to tell that the
// listener never came up.
func (s *Server) NConnected() int {
	done := make(chan int, 1)
	select {
	case s.loopCh <- func() { done <- len(s.clientOrder) }:
		return <-done
	case <-s.quit:
		return 0
	}
}

func (s *Server) enqueue(f func()) {
	select {
	case s.loopCh <- f:
	case <-s.quit:
	}
}

func (s *Server) runLoop() {
	for {
		select {
		case f := <-s.loopCh:
			f()
		case <-s.quit:
			return
		}
	}
}

// Run starts the event loop and the HTTP/WebSocket listener, blocking
// until the listener stops (via Stop or a fatal accept error).
func (s *Server) Run(ctx context.Context) error {
	go s.runLoop()

	router := httprouter.New()
	router.GET("/incppect", s.handleWS)
	for _, res := range s.params.Resources {
		res := res
		router.GET("/"+res, s.handleResource(res))
	}
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Resource not found", http.StatusNotFound)
	})

	addr := fmt.Sprintf(":%d", s.params.PortListen)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	if s.params.SSLCert != "" && s.params.SSLKey != "" {
		tlsConfig, tlsErr := serverTLSConfig(s.params.SSLCert, s.params.SSLKey)
		if tlsErr != nil {
			listener.Close()
			return fmt.Errorf("building TLS config: %w", tlsErr)
		}
		listener = tls.NewListener(listener, tlsConfig)
	}

	srv := &http.Server{Handler: router}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Infow("incppect listening", "Addr", listener.Addr().String())

	err = srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// RunAsync starts Run on a new goroutine and returns immediately.
func (s *Server) RunAsync(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

// Stop is idempotent: it defers a closure that closes every live
// connection, stops the event loop, and then closes the listener. Getters registered after Stop are accepted but unreachable,
// since no further ticks will run.
func (s *Server) Stop() error {
	select {
	case <-s.quit:
		return nil
	default:
	}
	s.enqueue(func() {
		select {
		case <-s.quit:
			return
		default:
		}
		for _, c := range s.clients {
			if wt, ok := c.transport.(*wsTransport); ok {
				wt.close()
			}
		}
		close(s.quit)
		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()
		if srv != nil {
			_ = srv.Close()
		}
	})
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.logger.Debugf("websocket accept error: %s", err)
		return
	}

	ip := remoteIPv4(r.RemoteAddr)
	idle := time.Duration(s.params.TIdleTimeoutS) * time.Second
	t := newWSTransport(r.Context(), conn, s.logger.Named("transport"), s.enqueue, idle)
	go t.runWriter()
	s.enqueue(func() { s.onConnect(t, ip) })

	// the request context is torn down when this handler returns, so
	// the handler stays parked in the read loop for the connection's
	// whole lifetime
	t.runReader(s.onMessage, s.onClose)
}

func (s *Server) handleResource(name string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if content, ok := s.resourceOverrides[name]; ok {
			w.Write(content)
			return
		}
		path := s.params.HTTPRoot + "/" + name
		http.ServeFile(w, r, path)
	}
}

func remoteIPv4(remoteAddr string) [4]byte {
	var out [4]byte
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if v4 := ip.To4(); v4 != nil {
		copy(out[:], v4)
	}
	return out
}
