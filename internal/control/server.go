package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = time.Second

type Option func(*Server) error

func Address(address string) Option {
	return func(s *Server) error {
		s.srv.Addr = address
		return nil
	}
}

func RequestLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.requestLogger = logger
		return nil
	}
}

type Server struct {
	logger        *slog.Logger
	requestLogger *slog.Logger
	srv           *http.Server
	handler       http.Handler
}

func NewServer(player Player, opts ...Option) (*Server, error) {
	s := &Server{
		logger:        slog.Default(),
		requestLogger: nil,
		srv: &http.Server{
			Addr: "localhost:8080",
		},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	router := httprouter.New()
	NewAPI(player).RegisterRoutes(router)
	s.handler = router
	if s.requestLogger != nil {
		s.handler = s.logRequest(s.handler)
	}
	s.srv.Handler = s.handler
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("serving control API", "address", s.srv.Addr)
		err := s.srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(ctx)
	})
	return eg.Wait()
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestLogger.Info("got request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
