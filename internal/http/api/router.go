// Package api wires the relay, health, stats and static routes onto a gin engine.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GeminiKeyRelay/internal/keypool"
	"github.com/router-for-me/GeminiKeyRelay/internal/ratelimit"
	"github.com/router-for-me/GeminiKeyRelay/internal/relay"
	internalsettings "github.com/router-for-me/GeminiKeyRelay/internal/settings"
	"github.com/router-for-me/GeminiKeyRelay/internal/usage"
)

// Forwarder relays one envelope upstream.
type Forwarder interface {
	Forward(ctx context.Context, req relay.Request) (relay.Result, error)
}

// StatsProvider exposes usage counters.
type StatsProvider interface {
	Snapshot() usage.Snapshot
}

// RateLimiter checks inbound requests per client.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
	Now() time.Time
}

// Options configures NewEngine.
type Options struct {
	RoutePath   string
	AllowOrigin string
	WebRoot     string

	Forwarder Forwarder
	Keys      keypool.Source
	Stats     StatsProvider
	Limiter   RateLimiter
}

// NewEngine builds the gin engine serving the relay endpoint and its companions.
func NewEngine(opts Options) *gin.Engine {
	routePath := strings.TrimSpace(opts.RoutePath)
	if routePath == "" {
		routePath = internalsettings.DefaultRoutePath
	}

	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)
	engine.Use(requestIDMiddleware())
	engine.Use(requestLogMiddleware())
	engine.Use(recoveryMiddleware())
	engine.Use(corsMiddleware(opts.AllowOrigin))

	relayHandler := &RelayHandler{forwarder: opts.Forwarder}
	engine.Any(routePath, rateLimitMiddleware(opts.Limiter), relayHandler.Serve)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "keys": poolSize(opts.Keys)})
	})
	engine.GET("/v0/stats", func(c *gin.Context) {
		if opts.Stats == nil {
			c.JSON(http.StatusOK, usage.Snapshot{Keys: []usage.KeyStats{}})
			return
		}
		c.JSON(http.StatusOK, opts.Stats.Snapshot())
	})

	if webRoot := strings.TrimSpace(opts.WebRoot); webRoot != "" {
		engine.NoRoute(staticHandler(webRoot))
	}
	return engine
}

func poolSize(keys keypool.Source) int {
	if keys == nil {
		return 0
	}
	list, errKeys := keys.Keys()
	if errKeys != nil {
		return 0
	}
	return len(list)
}
