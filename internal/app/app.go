package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GeminiKeyRelay/internal/config"
	"github.com/router-for-me/GeminiKeyRelay/internal/http/api"
	"github.com/router-for-me/GeminiKeyRelay/internal/keypool"
	"github.com/router-for-me/GeminiKeyRelay/internal/ratelimit"
	"github.com/router-for-me/GeminiKeyRelay/internal/relay"
	"github.com/router-for-me/GeminiKeyRelay/internal/usage"
	"github.com/router-for-me/GeminiKeyRelay/internal/watcher"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server bundles the components RunServer starts.
type Server struct {
	Config    config.AppConfig
	Keys      keypool.Source
	Forwarder *relay.Forwarder
	Tracker   *usage.Tracker
	Limiter   *ratelimit.Manager
	Engine    *gin.Engine

	keyFile *watcher.KeyFile
}

// NewServer wires the relay components from cfg without starting anything.
func NewServer(cfg config.AppConfig) (*Server, error) {
	keys, keyFile, errKeys := buildKeySource(cfg.Keys)
	if errKeys != nil {
		return nil, errKeys
	}

	tracker := usage.NewTracker(nil)
	maxRetries := cfg.Retry.MaxRetriesOrDefault()
	forwarder := relay.NewForwarder(keys, &http.Client{Timeout: cfg.Upstream.Timeout}, relay.Options{
		URLTemplate:  cfg.Upstream.URL,
		MaxRetries:   &maxRetries,
		Delays:       cfg.Retry.Delays,
		DefaultDelay: cfg.Retry.DefaultDelay,
		Observer:     tracker,
	})
	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(cfg.RateLimit)), time.Now, nil)

	gin.SetMode(gin.ReleaseMode)
	engine := api.NewEngine(api.Options{
		RoutePath:   cfg.RoutePath,
		AllowOrigin: cfg.CORS.AllowOrigin,
		WebRoot:     cfg.WebRoot,
		Forwarder:   forwarder,
		Keys:        keys,
		Stats:       tracker,
		Limiter:     limiter,
	})

	return &Server{
		Config:    cfg,
		Keys:      keys,
		Forwarder: forwarder,
		Tracker:   tracker,
		Limiter:   limiter,
		Engine:    engine,
		keyFile:   keyFile,
	}, nil
}

// RunServer boots the relay and blocks until ctx is done or a component fails.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	srv, errNew := NewServer(cfg)
	if errNew != nil {
		return errNew
	}
	listener, errListen := net.Listen("tcp", cfg.Addr())
	if errListen != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), errListen)
	}
	return srv.Serve(ctx, listener)
}

// Serve runs the HTTP server on listener and the key file watcher, if any.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer func() {
		if errClose := s.Limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter")
		}
	}()

	httpServer := &http.Server{
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.WithFields(log.Fields{
			"addr":        listener.Addr().String(),
			"route":       s.Config.RoutePath,
			"max_retries": s.Forwarder.MaxAttempts() - 1,
		}).Info("starting gemini key relay")
		if errServe := httpServer.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", errServe)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("http server shutdown: %w", errShutdown)
		}
		log.Info("relay stopped")
		return nil
	})
	if s.keyFile != nil {
		group.Go(func() error {
			return s.keyFile.Run(groupCtx)
		})
	}
	return group.Wait()
}

func buildKeySource(cfg config.KeysConfig) (keypool.Source, *watcher.KeyFile, error) {
	if file := strings.TrimSpace(cfg.File); file != "" {
		keyFile, errLoad := watcher.NewKeyFile(file)
		if errLoad != nil {
			return nil, nil, errLoad
		}
		return keyFile, keyFile, nil
	}
	source := keypool.EnvSource{Name: cfg.Env}
	if keys, _ := source.Keys(); len(keys) == 0 {
		// EnvSource re-reads the variable per request, so keys may be set after startup.
		log.WithField("env", cfg.Env).Warn("no api keys configured")
	}
	return source, nil, nil
}
