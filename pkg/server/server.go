// Package server assembles the proxy: the HTTP surface (WebSocket upgrade,
// server info, health, metrics, static assets), the shared Deployer and its
// token store, and graceful shutdown of all of it.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stevedore-dev/stevedore/pkg/auth"
	"github.com/stevedore-dev/stevedore/pkg/controller"
	"github.com/stevedore-dev/stevedore/pkg/deploy"
	"github.com/stevedore-dev/stevedore/pkg/dispatch"
	"github.com/stevedore-dev/stevedore/pkg/middleware"
	"github.com/stevedore-dev/stevedore/pkg/notify"
	"github.com/stevedore-dev/stevedore/pkg/proxy"
	"github.com/stevedore-dev/stevedore/pkg/store"
)

// Version is stamped at build time.
var Version = "dev"

// Server is the proxy server: one Deployer and token store shared by every
// WebSocket session.
type Server struct {
	config *Config
	logger *slog.Logger

	dialect    auth.Dialect
	deployer   *deploy.Deployer
	tokens     *deploy.TokenStore
	dispatcher *dispatch.Dispatcher
	metrics    *middleware.Metrics
	publisher  *notify.Publisher

	upgrader   websocket.Upgrader
	httpServer *http.Server
	redirector *http.Server
	startTime  time.Time
}

// New assembles a server from the given configuration.
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.fillDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "server")

	dialect, err := auth.DialectFor(config.APIVersion)
	if err != nil {
		return nil, err
	}

	var metricsOpts []middleware.MetricsOption
	if config.MetricsRegistry != nil {
		metricsOpts = append(metricsOpts, middleware.WithRegistry(config.MetricsRegistry))
	}
	s := &Server{
		config:  config,
		logger:  logger,
		dialect: dialect,
		metrics: middleware.NewMetrics(metricsOpts...),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		startTime: time.Now(),
	}

	if config.AMQPURL != "" {
		s.publisher, err = notify.New(config.AMQPURL, config.AMQPExchange, logger)
		if err != nil {
			return nil, err
		}
	}

	s.deployer = deploy.New(deploy.Options{
		APIURL:         config.APIURL,
		APIVersion:     config.APIVersion,
		ValidateBundle: controller.ValidateBundle,
		ImportBundle:   controller.ImportBundle,
		OnChange:       s.onChange,
	})
	s.tokens = deploy.NewTokenStore(0, logger)

	var bundles dispatch.BundleStore
	if config.S3Bucket != "" {
		bundles = store.New(store.Options{
			Bucket: config.S3Bucket,
			Prefix: config.S3Prefix,
			Region: config.S3Region,
		})
	}
	s.dispatcher = dispatch.New(dispatch.Options{
		Deployer: s.deployer,
		Tokens:   s.tokens,
		Store:    bundles,
	})
	return s, nil
}

// onChange observes every recorded deployment change for metrics and the
// optional broker mirror.
func (s *Server) onChange(change deploy.Change) {
	if change.Status == deploy.StatusCompleted {
		s.metrics.DeploymentFinished(change.Error != "")
	}
	s.metrics.SetQueueDepth(s.deployer.QueueLength())
	if s.publisher != nil {
		if err := s.publisher.PublishChange(context.Background(), change); err != nil {
			s.logger.Error("publish change failed", "error", err)
		}
	}
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.metrics.Instrument)
	r.Use(middleware.Tracing)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/ws/*", s.handleWebSocket)
	r.Get("/gui-server-info", s.handleInfo)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.NotFound(s.handleStatic)
	return r
}

// handleWebSocket upgrades a browser connection and runs its proxy session
// until either side disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}
	origin := r.Header.Get("Origin")
	session := proxy.NewSession(conn, proxy.SessionConfig{
		APIURL:     s.config.APIURL,
		Origin:     origin,
		Dialect:    s.dialect,
		Dispatcher: s.dispatcher,
		Metrics:    s.metrics,
		Logger:     s.logger.With("remote", r.RemoteAddr),
	})
	session.Run(r.Context())
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			"address", s.config.Address, "controller", s.config.APIURL)
		errCh <- s.httpServer.ListenAndServe()
	}()

	if s.config.RedirectAddress != "" {
		s.redirector = &http.Server{
			Addr:              s.config.RedirectAddress,
			Handler:           HTTPSRedirector(),
			ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		}
		go func() {
			s.logger.Info("redirector starting",
				"address", s.config.RedirectAddress)
			if err := s.redirector.ListenAndServe(); err != http.ErrServerClosed {
				s.logger.Error("redirector failed", "error", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the HTTP servers, the deploy stages and the
// token store.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.redirector != nil {
		s.redirector.Shutdown(ctx)
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.deployer.Shutdown()
	s.tokens.Close()
	if s.publisher != nil {
		s.publisher.Close()
	}
	s.logger.Info("server shutdown complete")
	return err
}
