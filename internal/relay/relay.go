// Package relay forwards generation requests upstream, rotating API keys on rate limiting.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/GeminiKeyRelay/internal/keypool"
	internalsettings "github.com/router-for-me/GeminiKeyRelay/internal/settings"
	log "github.com/sirupsen/logrus"
)

// Doer issues upstream HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Forwarder. Zero values fall back to defaults.
type Options struct {
	URLTemplate  string
	MaxRetries   *int
	Delays       []time.Duration
	DefaultDelay time.Duration

	// StartIndex picks the first key index in [0, n). Defaults to a uniform random pick.
	StartIndex func(n int) int
	// Wait suspends between attempts. Defaults to a context-aware timer.
	Wait func(ctx context.Context, d time.Duration) error
	// Observer receives one event per upstream attempt.
	Observer Observer
}

// Forwarder relays one request per call, rotating across the credential pool on 429.
type Forwarder struct {
	keys        keypool.Source
	client      Doer
	urlTemplate string
	maxRetries  int
	backoff     Backoff
	startIndex  func(n int) int
	wait        func(ctx context.Context, d time.Duration) error
	observer    Observer
}

// NewForwarder constructs a Forwarder with default dependencies when nil.
func NewForwarder(keys keypool.Source, client Doer, opts Options) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: internalsettings.DefaultUpstreamTimeout}
	}
	f := &Forwarder{
		keys:        keys,
		client:      client,
		urlTemplate: strings.TrimSpace(opts.URLTemplate),
		maxRetries:  internalsettings.DefaultMaxRetries,
		backoff:     NewBackoff(opts.Delays, opts.DefaultDelay),
		startIndex:  opts.StartIndex,
		wait:        opts.Wait,
		observer:    opts.Observer,
	}
	if f.urlTemplate == "" {
		f.urlTemplate = internalsettings.DefaultUpstreamURL
	}
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		f.maxRetries = *opts.MaxRetries
	}
	if f.startIndex == nil {
		f.startIndex = rand.IntN
	}
	if f.wait == nil {
		f.wait = waitContext
	}
	if f.observer == nil {
		f.observer = nopObserver{}
	}
	return f
}

// MaxAttempts returns the upper bound of upstream calls per Forward.
func (f *Forwarder) MaxAttempts() int {
	return f.maxRetries + 1
}

// Forward sends payload to the upstream model, rotating keys on 429 responses.
// Validation and configuration failures, upstream responses and key exhaustion are all
// reported as a Result. A non-nil error means a local failure such as a network error or
// a cancelled context; it is never retried.
func (f *Forwarder) Forward(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.ModelName == "" || isEmptyPayload(req.Body) {
		return badRequestResult(), nil
	}
	if f.keys == nil {
		return configErrorResult(), nil
	}
	keys, errKeys := f.keys.Keys()
	if errKeys != nil || len(keys) == 0 {
		if errKeys != nil && !errors.Is(errKeys, keypool.ErrNoCredentials) {
			log.WithError(errKeys).Error("relay: load api keys failed")
		}
		return configErrorResult(), nil
	}

	// Rotation state is per invocation. There is no shared cursor.
	start := f.startIndex(len(keys))
	if start < 0 || start >= len(keys) {
		start = 0
	}

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			if errWait := f.wait(ctx, f.backoff.Delay(attempt)); errWait != nil {
				return Result{}, fmt.Errorf("relay: wait before attempt %d: %w", attempt+1, errWait)
			}
		}

		keyIndex := (start + attempt) % len(keys)
		resp, errDo := f.send(ctx, req, keys[keyIndex])
		if errDo != nil {
			errDo = withoutRequestURL(errDo)
			f.observer.ObserveAttempt(Attempt{Model: req.ModelName, KeyIndex: keyIndex, Number: attempt, Err: errDo})
			return Result{}, fmt.Errorf("relay: upstream request (key index %d): %w", keyIndex, errDo)
		}
		f.observer.ObserveAttempt(Attempt{Model: req.ModelName, KeyIndex: keyIndex, Number: attempt, StatusCode: resp.StatusCode})

		if resp.StatusCode == http.StatusTooManyRequests {
			log.WithFields(log.Fields{
				"model":     req.ModelName,
				"key_index": keyIndex,
				"attempt":   attempt + 1,
			}).Warn("relay: upstream rate limited, rotating key")
			drainAndClose(resp.Body)
			continue
		}

		body, errRead := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if errRead != nil {
			return Result{}, fmt.Errorf("relay: read upstream body (key index %d): %w", keyIndex, withoutRequestURL(errRead))
		}
		return Result{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
			Attempts:    attempt + 1,
		}, nil
	}

	f.observer.ObserveExhausted(req.ModelName)
	log.WithFields(log.Fields{
		"model":    req.ModelName,
		"attempts": f.maxRetries + 1,
	}).Warn("relay: all api keys rate limited")
	res := exhaustedResult()
	res.Attempts = f.maxRetries + 1
	return res, nil
}

func (f *Forwarder) send(ctx context.Context, req Request, key string) (*http.Response, error) {
	target, errURL := f.buildURL(req.ModelName, key)
	if errURL != nil {
		return nil, errURL
	}
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(req.Body))
	if errReq != nil {
		return nil, errReq
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return f.client.Do(httpReq)
}

func (f *Forwarder) buildURL(modelName, key string) (string, error) {
	raw := strings.ReplaceAll(f.urlTemplate, internalsettings.ModelPlaceholder, url.PathEscape(modelName))
	u, errParse := url.Parse(raw)
	if errParse != nil {
		return "", fmt.Errorf("parse upstream url: %w", errParse)
	}
	query := u.Query()
	query.Set("key", key)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// withoutRequestURL drops the *url.Error wrapper, whose message carries the request URL
// and with it the key query parameter.
func withoutRequestURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
