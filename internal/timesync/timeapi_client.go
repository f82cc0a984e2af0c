package timesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata" // devices rarely ship a zoneinfo database

	"water_timer/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	currentTimePath = "/api/Time/current/zone"
	incrementPath   = "/api/Calculation/custom/increment"

	requestLayout  = "2006-01-02 15:04:05"
	responseLayout = "2006-01-02T15:04:05.999999999"
)

// Oracle operations, as reported to the observer.
const (
	OpNow       = "now"
	OpIncrement = "increment"
)

// RequestObserver is told the outcome of every oracle call ("ok" or "error").
type RequestObserver interface {
	OracleRequest(op, outcome string)
}

type TimeAPIConfig struct {
	BaseURL      string
	TimeZone     string
	Timeout      time.Duration
	Retries      int
	RetryInitial time.Duration
	RatePerSec   float64
	BreakerFails int
	BreakerOpen  time.Duration
}

// TimeAPIClient talks to a timeapi.io compatible service. Every request
// decodes into its own result value.
type TimeAPIClient struct {
	client   *resty.Client
	loc      *time.Location
	tz       string
	cfg      TimeAPIConfig
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	log      *logger.Logger
	observer RequestObserver
}

var _ Oracle = (*TimeAPIClient)(nil)

type currentTimeResponse struct {
	DateTime string `json:"dateTime"`
}

type incrementRequest struct {
	TimeZone     string `json:"timeZone"`
	DateTime     string `json:"dateTime"`
	TimeSpan     string `json:"timeSpan"`
	DSTAmbiguity string `json:"dstAmbiguity"`
}

type incrementResponse struct {
	CalculationResult struct {
		DateTime string `json:"dateTime"`
	} `json:"calculationResult"`
}

// statusError is a non-2xx answer from the oracle.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("oracle returned %d: %s", e.code, e.body)
}

func NewTimeAPIClient(cfg TimeAPIConfig, log *logger.Logger, observer RequestObserver) (*TimeAPIClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 250 * time.Millisecond
	}
	if cfg.BreakerFails <= 0 {
		cfg.BreakerFails = 3
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	fails := uint32(cfg.BreakerFails)
	c := &TimeAPIClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "water-timer"),
		loc:      loc,
		tz:       cfg.TimeZone,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		observer: observer,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "time-oracle",
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("oracle_breaker_state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// Now asks the oracle for the current time.
func (c *TimeAPIClient) Now(ctx context.Context) (time.Time, error) {
	var out time.Time
	err := c.do(ctx, OpNow, func(ctx context.Context) error {
		var res currentTimeResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("timeZone", c.tz).
			SetResult(&res).
			Get(currentTimePath)
		if err != nil {
			return err
		}
		if err := classify(resp); err != nil {
			return err
		}
		t, err := c.parse(res.DateTime)
		if err != nil {
			return backoff.Permanent(err)
		}
		out = t
		return nil
	})
	return out, err
}

// Increment asks the oracle to add span to from.
func (c *TimeAPIClient) Increment(ctx context.Context, from time.Time, span time.Duration) (time.Time, error) {
	body := incrementRequest{
		TimeZone: c.tz,
		DateTime: from.In(c.loc).Format(requestLayout),
		TimeSpan: FormatSpan(span),
	}
	var out time.Time
	err := c.do(ctx, OpIncrement, func(ctx context.Context) error {
		var res incrementResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&res).
			Post(incrementPath)
		if err != nil {
			return err
		}
		if err := classify(resp); err != nil {
			return err
		}
		t, err := c.parse(res.CalculationResult.DateTime)
		if err != nil {
			return backoff.Permanent(err)
		}
		out = t
		return nil
	})
	return out, err
}

func (c *TimeAPIClient) do(ctx context.Context, op string, call func(context.Context) error) error {
	err := c.limiter.Wait(ctx)
	if err == nil {
		_, err = c.cb.Execute(func() (interface{}, error) {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = c.cfg.RetryInitial
			policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(c.cfg.Retries, 0))), ctx)
			return nil, backoff.Retry(func() error {
				rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
				defer cancel()
				return call(rctx)
			}, policy)
		})
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.log.Debugw("oracle_request_failed", "op", op, "error", err)
	}
	if c.observer != nil {
		c.observer.OracleRequest(op, outcome)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return nil
}

// classify turns a non-2xx response into an error. Client errors are not retried.
func classify(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	err := &statusError{code: resp.StatusCode(), body: strings.TrimSpace(resp.String())}
	if resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError &&
		resp.StatusCode() != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

func (c *TimeAPIClient) parse(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty dateTime in oracle response")
	}
	t, err := time.ParseInLocation(responseLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse oracle dateTime %q: %w", s, err)
	}
	return t.UTC(), nil
}
