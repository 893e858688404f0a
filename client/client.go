// Package client implements the retrying HTTP client for the tablebase
// oracle endpoint.
package client

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
)

type State int32

const (
	StateRunning State = iota
	StateStopped
)

// httpDoer is the slice of fasthttp.Client the oracle client needs;
// tests substitute a scripted implementation.
type httpDoer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// OracleHTTPClient performs one logical tablebase lookup per call, hiding
// timeout cancellation and retry/backoff mechanics. It never touches the
// cache.
type OracleHTTPClient struct {
	logger  types.Logger
	config  *types.OracleConfig
	client  httpDoer
	breaker *CircuitBreaker
	state   atomic.Value

	// sleep is the backoff suspension point, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOracleHTTPClient(logger types.Logger, config *types.OracleConfig) (*OracleHTTPClient, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}
	if config.Timeout <= 0 || config.MovesTimeout <= 0 {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "oracle timeouts %v/%v", config.Timeout, config.MovesTimeout)
	}
	if config.MaxAttempts < 1 {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "oracle max attempts %d", config.MaxAttempts)
	}

	c := &OracleHTTPClient{
		logger: logger,
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:  config.MovesTimeout,
			WriteTimeout: config.MovesTimeout,
		},
		breaker: NewCircuitBreaker(config.Breaker, logger),
		sleep:   sleepWithContext,
	}
	c.state.Store(StateRunning)

	return c, nil
}

func (c *OracleHTTPClient) Probe(ctx context.Context, key string) (*types.OracleResult, error) {
	return c.lookup(ctx, key, 0, c.config.Timeout)
}

func (c *OracleHTTPClient) ProbeMoves(ctx context.Context, key string, moveLimit int) (*types.OracleResult, error) {
	if moveLimit <= 0 {
		moveLimit = c.config.MoveLimit
	}
	return c.lookup(ctx, key, moveLimit, c.config.MovesTimeout)
}

func (c *OracleHTTPClient) Close() {
	c.state.Store(StateStopped)
	if fc, ok := c.client.(*fasthttp.Client); ok {
		fc.CloseIdleConnections()
	}
}

func (c *OracleHTTPClient) lookup(ctx context.Context, key string, moveLimit int, timeout time.Duration) (*types.OracleResult, error) {
	if c.state.Load().(State) != StateRunning {
		return nil, types.ErrServiceNotRunning
	}

	requestID := uuid.NewString()
	requestURL := c.buildURL(key, moveLimit)

	var lastErr error
	lastWasTimeout := false

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapError(err, "lookup aborted")
		}

		if !c.breaker.CanExecute() {
			return nil, types.ErrOracleCircuitOpen
		}

		result, retryable, timedOut, err := c.attempt(requestURL, timeout)
		if err == nil {
			c.logger.Debug("Oracle lookup succeeded",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt))
			return result, nil
		}

		if !retryable {
			c.logger.Debug("Oracle lookup failed permanently",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}

		lastErr = err
		lastWasTimeout = timedOut

		if attempt < c.config.MaxAttempts {
			backoff := c.backoffDelay(attempt)
			c.logger.Debug("Retrying oracle lookup",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			if err := c.sleep(ctx, backoff); err != nil {
				return nil, types.WrapError(err, "lookup aborted during backoff")
			}
		}
	}

	if lastWasTimeout {
		return nil, types.Errorf(types.ErrClientTimeout, "after %d attempts", c.config.MaxAttempts)
	}
	return nil, types.Errorf(types.ErrOracleRequestFailed, "all %d attempts failed: %v", c.config.MaxAttempts, lastErr)
}

// attempt issues a single request. retryable marks transient failures
// (timeouts, transport errors, 5xx, 429); a permanent failure aborts the
// retry sequence without consuming the remaining budget.
func (c *OracleHTTPClient) attempt(requestURL string, timeout time.Duration) (result *types.OracleResult, retryable, timedOut bool, err error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	doErr := c.client.DoTimeout(req, resp, timeout)
	if doErr != nil {
		c.breaker.RecordFailure()
		if isTimeoutError(doErr) {
			return nil, true, true, types.Errorf(types.ErrClientTimeout, "%v", doErr)
		}
		return nil, true, false, types.Errorf(types.ErrOracleRequestFailed, "transport: %v", doErr)
	}

	statusCode := resp.StatusCode()

	switch {
	case statusCode >= 200 && statusCode < 300:
		c.breaker.RecordSuccess()
		parsed, parseErr := parseOracleResponse(resp.Body())
		if parseErr != nil {
			// A schema mismatch is a data-integrity failure; retrying
			// cannot fix it.
			return nil, false, false, parseErr
		}
		return parsed, false, false, nil

	case statusCode == fasthttp.StatusTooManyRequests, statusCode == fasthttp.StatusRequestTimeout:
		c.breaker.RecordFailure()
		return nil, true, false, types.Errorf(types.ErrOracleRequestFailed, "HTTP %d", statusCode)

	case statusCode >= 400 && statusCode < 500:
		return nil, false, false, types.Errorf(types.ErrPositionRejected, "HTTP %d", statusCode)

	default:
		c.breaker.RecordFailure()
		return nil, true, false, types.Errorf(types.ErrOracleRequestFailed, "HTTP %d", statusCode)
	}
}

// backoffDelay grows linearly with bounded jitter rather than unbounded
// exponential growth, keeping worst-case latency predictable.
func (c *OracleHTTPClient) backoffDelay(attempt int) time.Duration {
	base := c.config.BackoffBase
	delay := time.Duration(attempt)*base + time.Duration(rand.Int63n(int64(base)))
	if delay > c.config.BackoffMax {
		delay = c.config.BackoffMax
	}
	return delay
}

func (c *OracleHTTPClient) buildURL(key string, moveLimit int) string {
	// The oracle wants a full FEN; a canonical 4-field key gets neutral
	// counters restored.
	fen := key
	if len(strings.Fields(key)) == 4 {
		fen = key + " 0 1"
	}

	var sb strings.Builder
	sb.WriteString(c.config.BaseURL)
	sb.WriteString("?fen=")
	sb.WriteString(url.QueryEscape(fen))
	if moveLimit > 0 {
		sb.WriteString("&moves=")
		sb.WriteString(strconv.Itoa(moveLimit))
	}
	return sb.String()
}

func isTimeoutError(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrTLSHandshakeTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
