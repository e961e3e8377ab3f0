// Package server exposes the read-only factor results API over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "factorflow/config"
	"factorflow/internal/runlog"
	"factorflow/logger"
)

// Server hosts the Gin-powered factor results API.
type Server struct {
	cfg        appconfig.Config
	store      *runlog.Store
	log        *logger.Log
	httpServer *http.Server
}

// NewServer constructs the API server over the given run log store.
func NewServer(cfg appconfig.Config, store *runlog.Store, log *logger.Log) *Server {
	cfg.Server.Address = normalizeAddress(cfg.Server.Address)
	return &Server{
		cfg:   cfg,
		store: store,
		log:   log,
	}
}

// Run starts the HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Address,
		Handler: router,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address": s.cfg.Server.Address,
	}).Info("starting API server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Server.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	// Debug routing output stays on in development only.
	mode := gin.DebugMode
	if appconfig.IsProductionLike(appconfig.AppEnvironment()) {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/factors", s.handleListFactors)
	router.GET("/factors/compare", s.handleCompareFactors)
	router.GET("/factors/time-series", s.handleTimeSeries)
	router.GET("/factors/:factor/logs", s.handleFactorLogs)
	router.GET("/factors/:factor/latest", s.handleFactorLatest)

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8000"
	}
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8000"
		}
		return net.JoinHostPort(host, port)
	}
	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8000")
	}
	return addr
}
