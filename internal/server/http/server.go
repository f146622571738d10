package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/flodq/internal/runtime"
	"github.com/rzbill/flodq/internal/server/http/controllers"
	"github.com/rzbill/flodq/pkg/log"
)

// Server is the REST gateway over a Runtime.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger log.Logger
}

// New builds the router: request logging, metrics, CORS, then the
// controllers and /metrics.
func New(rt *runtime.Runtime, logger log.Logger) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	logger = logger.WithComponent("server.http")
	r := chi.NewRouter()
	s := &Server{rt: rt, logger: logger, srv: &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}}

	r.Use(s.requestLogger)
	r.Use(rt.Metrics().Middleware)
	r.Use(cors)
	controllers.NewControllerRegistry(rt).RegisterAllRoutes(r)
	r.Handle("/metrics", rt.Metrics().Handler())
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			log.Str("method", r.Method),
			log.Str("path", r.URL.Path),
			log.Dur("elapsed", time.Since(start)))
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
