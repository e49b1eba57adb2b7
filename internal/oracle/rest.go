package oracle

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config configures a RESTSource.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
}

// markResponse is the shape of a GET /mark?symbol=... response body.
type markResponse struct {
	Price float64 `json:"price"`
	Epoch int64   `json:"epoch"`
}

// RESTSource is the demo oracle adapter: a resty HTTP client against a
// configurable mark-price endpoint, rate-limited and retried exactly like
// the teacher's exchange.Client, with a last-known-good cache so a single
// transient failure doesn't immediately starve the kill-band check.
type RESTSource struct {
	http *resty.Client
	rl   *TokenBucket

	mu       sync.Mutex
	cache    map[string]reading
	maxStale time.Duration
}

// NewRESTSource builds a RESTSource pointed at cfg.BaseURL.
func NewRESTSource(cfg Config) *RESTSource {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	maxStale := cfg.MaxStaleness
	if maxStale == 0 {
		maxStale = 5 * time.Second
	}

	return &RESTSource{
		http:     httpClient,
		rl:       NewTokenBucket(50, 20),
		cache:    make(map[string]reading),
		maxStale: maxStale,
	}
}

// Mark fetches the current price for oracleID, falling back to the last
// cached reading (if it is not older than maxStaleness) when the live
// fetch fails.
func (s *RESTSource) Mark(ctx context.Context, oracleID string) (float64, int64, error) {
	if err := s.rl.Wait(ctx); err != nil {
		return 0, 0, fmtUnreachable(oracleID, err)
	}

	var body markResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", oracleID).
		SetResult(&body).
		Get("/mark")

	if err == nil && resp.StatusCode() == http.StatusOK {
		r := reading{price: body.Price, epoch: body.Epoch, fetched: time.Now()}
		s.mu.Lock()
		s.cache[oracleID] = r
		s.mu.Unlock()
		return r.price, r.epoch, nil
	}

	s.mu.Lock()
	cached, ok := s.cache[oracleID]
	s.mu.Unlock()
	if ok && !cached.stale(s.maxStale) {
		return cached.price, cached.epoch, nil
	}

	if err != nil {
		return 0, 0, fmtUnreachable(oracleID, err)
	}
	return 0, 0, fmtUnreachable(oracleID, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
}
