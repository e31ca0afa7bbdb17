package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/router-for-me/GeminiKeyRelay/internal/ratelimit"
	"github.com/router-for-me/GeminiKeyRelay/internal/relay"
	internalsettings "github.com/router-for-me/GeminiKeyRelay/internal/settings"
	log "github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"

	corsAllowHeaders = "X-CSRF-Token, X-Requested-With, Accept, Accept-Version, Content-Length, Content-MD5, Content-Type, Date, X-Api-Version"
)

// corsMiddleware sets the cross-origin headers on every response.
func corsMiddleware(allowOrigin string) gin.HandlerFunc {
	allowOrigin = strings.TrimSpace(allowOrigin)
	if allowOrigin == "" {
		allowOrigin = internalsettings.DefaultAllowOrigin
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "OPTIONS,POST")
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Next()
	}
}

// requestIDMiddleware tags each request with a fresh uuid.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

// requestLogMiddleware writes one logrus line per request.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"request_id": requestID(c),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

// recoveryMiddleware converts panics into the standard 500 error body.
func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				log.WithFields(log.Fields{
					"request_id": requestID(c),
					"panic":      recovered,
				}).Error("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, relay.ErrorBody{
					Error:   relay.MsgInternalError,
					Details: fmt.Sprint(recovered),
				})
			}
		}()
		c.Next()
	}
}

// rateLimitMiddleware rejects POSTs from clients above the configured rate. Limiter errors fail open.
func rateLimitMiddleware(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		result, errAllow := limiter.Allow(c.Request.Context(), ratelimit.KeyForClient(c.ClientIP()))
		if errAllow != nil {
			log.WithError(errAllow).WithField("request_id", requestID(c)).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfter(limiter.Now())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, relay.ErrorBody{Error: http.StatusText(http.StatusTooManyRequests)})
			return
		}
		c.Next()
	}
}
