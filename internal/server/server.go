// Package server exposes the dashboard over HTTP and WebSocket.
//
// REST handlers serialize the latest feed snapshots as JSON view models; the
// websocket hub pushes every accepted refresh to connected clients and gives
// each connection its own chat session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cryptodash/internal/assistant"
	"cryptodash/internal/format"
	"cryptodash/internal/market"
	"cryptodash/internal/market/derived"
	"cryptodash/internal/market/feed"
	"cryptodash/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Source is the read side of a feed.
type Source[T any] interface {
	Latest() feed.State[T]
	Subscribe() (<-chan feed.State[T], func())
}

type Options struct {
	Addr        string
	CORSOrigins []string
	SessionTTL  time.Duration
	Params      derived.Params
	Responder   *assistant.Responder
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Server struct {
	opts      Options
	router    chi.Router
	listing   Source[[]market.AssetQuote]
	global    Source[*market.GlobalSnapshot]
	news      Source[[]market.NewsItem] // nil when news is disabled
	hub       *WSHub
	sessions  *SessionStore
	formatter *format.Formatter
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(opts Options, listing Source[[]market.AssetQuote], global Source[*market.GlobalSnapshot], news Source[[]market.NewsItem]) (*Server, error) {
	if listing == nil || global == nil {
		return nil, market.NewConfigError("server sources", "listing and global must not be nil")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.SessionTTL <= 0 {
		return nil, market.NewConfigError("server.session_ttl", "must be positive, got %s", opts.SessionTTL)
	}
	if opts.Responder == nil {
		opts.Responder = assistant.NewDefaultResponder()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		opts:      opts,
		listing:   listing,
		global:    global,
		news:      news,
		formatter: format.German(),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	s.hub = NewWSHub(s.metrics, s.logger)
	s.sessions = NewSessionStore(opts.SessionTTL, opts.Responder, s.metrics)
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the router for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the websocket hub, the feed broadcasters and the session janitor.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.stopCh)
	}()
	go func() {
		defer s.wg.Done()
		s.sessions.Janitor(s.stopCh)
	}()

	forward(s, s.listing, "coins", s.coinsView)
	forward(s, s.global, "market", s.marketView)
	if s.news != nil {
		forward(s, s.news, "news", s.newsView)
	}
}

// Stop ends the background goroutines started by Start.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// ListenAndServe serves on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Start()
	defer s.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// forward pushes every state of src to websocket clients as a typed message.
func forward[T any](s *Server, src Source[T], kind string, view func(feed.State[T]) any) {
	updates, unsubscribe := src.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-s.stopCh:
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				if !st.HasValue {
					continue
				}
				s.hub.Broadcast(WSMessage{Type: kind, Data: view(st)})
			}
		}
	}()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.opts.CORSOrigins) > 0 {
		origins = s.opts.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/coins", s.handleCoins)
		r.Get("/market", s.handleMarket)
		r.Get("/news", s.handleNews)

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/messages", s.handlePostMessage)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			// Websocket connections stay open; their duration is meaningless here.
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				return
			}
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
