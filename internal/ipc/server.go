package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
	"github.com/pagenode/pagenode-shell/internal/port"
)

const shutdownTimeout = 5 * time.Second

// Routes registered by NewRouter.
const (
	RouteBackendPort  = "/api/backend-port"
	RouteInvokeGetter = "/invoke/get_backend_port"
	RouteHealth       = "/healthz"
)

// NewRouter builds the gin engine serving the port query.
func NewRouter(h *Handler, cfg CORSConfig, log *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(CORS(cfg))

	router.GET(RouteBackendPort, h.BackendPort)
	router.POST(RouteInvokeGetter, h.BackendPort)
	router.GET(RouteHealth, h.Health)
	return router
}

// requestLogger logs each request at debug level.
func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("port query",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Server is the loopback HTTP listener for the port query.
type Server struct {
	listen string
	router *gin.Engine
	log    *logging.Logger

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewServer creates a Server bound to listen once Run is called.
func NewServer(listen string, state *port.State, origins []string, development bool, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	log = log.Named("ipc")
	return &Server{
		listen: listen,
		router: NewRouter(NewHandler(state), DefaultCORSConfig(origins...), log),
		log:    log,
		ready:  make(chan struct{}),
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Ready returns a channel closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Run has bound the listener.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until ctx is cancelled, then shuts down gracefully. A bind
// failure is returned as a CLIError with ExitEndpointFailed.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return model.WrapCLIError(model.ExitEndpointFailed,
			fmt.Sprintf("failed to listen on %s", s.listen), err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.log.Info("port query endpoint listening", zap.String("addr", ln.Addr().String()))

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return model.WrapCLIError(model.ExitEndpointFailed, "port query endpoint stopped", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down port query endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down port query endpoint: %w", err)
	}
	return nil
}
