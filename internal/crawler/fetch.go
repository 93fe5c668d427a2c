package crawler

import (
	"context"
	mathrand "math/rand"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"kzfm923/madealworker/helpers"
	"kzfm923/madealworker/logger"
	"kzfm923/madealworker/pkg/errors"
)

// FetchOutcome classifies the result of a page fetch. Callers branch on
// the outcome instead of inspecting errors.
type FetchOutcome int

const (
	// FetchSuccess means a usable page body was obtained
	FetchSuccess FetchOutcome = iota
	// FetchBlocked means an anti-bot block page was served and recovery failed
	FetchBlocked
	// FetchTransient means retries were exhausted on a temporary failure
	FetchTransient
	// FetchFatal means the request can never succeed (bad URL, 4xx)
	FetchFatal
)

// String returns the outcome name for logs
func (o FetchOutcome) String() string {
	switch o {
	case FetchSuccess:
		return "success"
	case FetchBlocked:
		return "blocked"
	case FetchTransient:
		return "transient"
	case FetchFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Fetcher retrieves one page body. Implementations: StaticFetcher
// (plain HTTP) and RenderedFetcher (headless browser).
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, int, error)
}

// StaticFetcher fetches pages over plain HTTP with browser-like headers.
type StaticFetcher struct{}

// Fetch implements Fetcher
func (StaticFetcher) Fetch(_ context.Context, url string) ([]byte, int, error) {
	return helpers.FetchPage(url)
}

// DelayWindow is a randomized sleep range
type DelayWindow struct {
	Min time.Duration
	Max time.Duration
}

func (w DelayWindow) pick(rnd *mathrand.Rand) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rnd.Int63n(int64(w.Max-w.Min)))
}

// ControllerConfig tunes one source's crawl session
type ControllerConfig struct {
	Source string
	// HumanDelay is slept before every request
	HumanDelay DelayWindow
	// RecoveryDelay is slept once after a block page before the single recovery attempt
	RecoveryDelay DelayWindow
	// MaxTransientRetries bounds backoff retries on timeouts and 5xx
	MaxTransientRetries int
	// TransientBackoff is the initial backoff, doubled per retry
	TransientBackoff time.Duration
	// MinInterval is the hard floor between requests regardless of delays
	MinInterval time.Duration
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.HumanDelay.Max == 0 {
		c.HumanDelay = DelayWindow{Min: 3 * time.Second, Max: 8 * time.Second}
	}
	if c.RecoveryDelay.Max == 0 {
		c.RecoveryDelay = DelayWindow{Min: 15 * time.Second, Max: 30 * time.Second}
	}
	if c.MaxTransientRetries == 0 {
		c.MaxTransientRetries = 3
	}
	if c.TransientBackoff == 0 {
		c.TransientBackoff = 2 * time.Second
	}
	if c.MinInterval == 0 {
		c.MinInterval = time.Second
	}
	return c
}

// Controller owns one source's crawl session: request pacing, block
// detection, and the two-tier retry policy. A controller is used by a
// single goroutine; it is not safe for concurrent use.
type Controller struct {
	cfg     ControllerConfig
	fetcher Fetcher
	limiter *rate.Limiter
	rnd     *mathrand.Rand
	blocked bool
	log     *logger.Logger
}

// NewController creates a crawl controller for one source
func NewController(cfg ControllerConfig, fetcher Fetcher) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		rnd:     mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		log:     logger.ForSource(cfg.Source),
	}
}

// Aborted reports whether the session is in a blocked state. Callers
// should skip remaining work for this source when true; a later
// successful fetch clears it.
func (c *Controller) Aborted() bool {
	return c.blocked
}

// Fetch retrieves one page, applying the human-like delay, transient
// backoff, and the single block-recovery attempt. On FetchBlocked the
// session stays blocked until a later fetch succeeds.
func (c *Controller) Fetch(ctx context.Context, url string) ([]byte, FetchOutcome, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, FetchFatal, errors.NewFetch(c.cfg.Source, "cancelled while pacing", err)
	}
	if err := c.sleep(ctx, c.cfg.HumanDelay.pick(c.rnd)); err != nil {
		return nil, FetchFatal, errors.NewFetch(c.cfg.Source, "cancelled during delay", err)
	}

	body, outcome, err := c.attempt(ctx, url)

	backoff := c.cfg.TransientBackoff
	for retries := 0; outcome == FetchTransient && retries < c.cfg.MaxTransientRetries; retries++ {
		c.log.Warn().
			Str("url", url).
			Int("retry", retries+1).
			Dur("backoff", backoff).
			Msg("Transient fetch failure, backing off")
		if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
			return nil, FetchTransient, errors.NewFetch(c.cfg.Source, "cancelled during backoff", sleepErr)
		}
		backoff *= 2
		body, outcome, err = c.attempt(ctx, url)
	}

	switch outcome {
	case FetchSuccess:
		c.blocked = false
		return body, FetchSuccess, nil
	case FetchBlocked:
		if c.blocked {
			// The session already burned its recovery attempt; keep
			// failing fast until a fetch succeeds on its own
			return nil, FetchBlocked, errors.NewBlocked(c.cfg.Source, url)
		}
		return c.recover(ctx, url)
	case FetchTransient:
		return nil, FetchTransient, errors.NewFetch(c.cfg.Source, "retries exhausted for "+url, err)
	default:
		return nil, FetchFatal, errors.NewFetch(c.cfg.Source, "unrecoverable fetch for "+url, err)
	}
}

// recover makes exactly one retry after a block page, behind the longer
// recovery delay. Failure leaves the session blocked.
func (c *Controller) recover(ctx context.Context, url string) ([]byte, FetchOutcome, error) {
	c.blocked = true
	delay := c.cfg.RecoveryDelay.pick(c.rnd)
	c.log.Warn().
		Str("url", url).
		Dur("delay", delay).
		Msg("Block page detected, attempting one recovery")

	if err := c.sleep(ctx, delay); err != nil {
		return nil, FetchBlocked, errors.NewBlocked(c.cfg.Source, url)
	}

	body, outcome, _ := c.attempt(ctx, url)
	if outcome == FetchSuccess {
		c.blocked = false
		c.log.Info().Str("url", url).Msg("Recovered from block page")
		return body, FetchSuccess, nil
	}

	c.log.Error().Str("url", url).Msg("Recovery failed, source stays blocked")
	return nil, FetchBlocked, errors.NewBlocked(c.cfg.Source, url)
}

// attempt performs one raw fetch and classifies it
func (c *Controller) attempt(ctx context.Context, url string) ([]byte, FetchOutcome, error) {
	body, status, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		// Network-level failures (timeouts, resets) are worth retrying
		return nil, FetchTransient, err
	}

	switch {
	case status >= 500:
		return nil, FetchTransient, errors.NewFetch(c.cfg.Source, "server error "+url, nil)
	case IsBlockPage(body, status):
		return nil, FetchBlocked, nil
	case status >= 400:
		return nil, FetchFatal, errors.NewFetch(c.cfg.Source, "client error "+url, nil)
	default:
		return body, FetchSuccess, nil
	}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// blockIndicators are matched case-insensitively anywhere in the body
var blockIndicators = []string{
	"403 error",
	"the request could not be satisfied",
	"request blocked",
	"cloudfront",
	"access denied",
	"forbidden",
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

var blockedTitleWords = []string{"error", "blocked", "denied"}

// IsBlockPage reports whether a response is an anti-bot block page. A
// 403 status always counts; otherwise the body is scanned for known
// CDN/WAF block phrases and for an error-ish page title.
func IsBlockPage(body []byte, status int) bool {
	if status == 403 {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, indicator := range blockIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	if match := titleRe.FindStringSubmatch(lower); len(match) > 1 {
		for _, word := range blockedTitleWords {
			if strings.Contains(match[1], word) {
				return true
			}
		}
	}
	return false
}
