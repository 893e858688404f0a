package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
	ErrConfigIsNil          = errors.New("config is nil")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
)

var (
	ErrOracleRequestFailed   = errors.New("oracle request failed")
	ErrOracleResponseInvalid = errors.New("oracle response invalid")
	ErrOracleCircuitOpen     = errors.New("oracle circuit open")
	ErrClientTimeout         = errors.New("oracle request timeout")
)

// Failure states surfaced across the service boundary. Callers distinguish
// them with errors.Is; nothing else escapes Evaluation/TopMoves.
var (
	ErrTablebaseUnavailable = errors.New("tablebase unavailable")
	ErrPositionRejected     = errors.New("position rejected by tablebase")
	ErrResponseMalformed    = errors.New("malformed tablebase response")
	ErrPositionInvalid      = errors.New("invalid position")
)

var (
	ErrServiceNotRunning     = errors.New("service not running")
	ErrServiceAlreadyRunning = errors.New("service already running")
	ErrComponentStartFailed  = errors.New("component start failed")
	ErrComponentStopFailed   = errors.New("component stop failed")
)

var (
	ErrMetricsStartFailed = errors.New("metrics start failed")
	ErrSchedulerStopped   = errors.New("maintenance scheduler stopped")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
