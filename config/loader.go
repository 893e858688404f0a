package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/endgamekit/tablebase/types"
)

const DefaultOracleBaseURL = "https://tablebase.lichess.ovh/standard"

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.readFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate fails fast on invalid parameters so no call-time surprises
// remain (non-positive timeouts, zero capacity and the like).
func (l *Loader) Validate(config *types.ServiceConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}
	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}
	if config.Oracle != nil && config.Oracle.BackoffMax < config.Oracle.BackoffBase {
		return types.Errorf(types.ErrConfigValidateFailed, "oracle backoff ceiling %v below base %v",
			config.Oracle.BackoffMax, config.Oracle.BackoffBase)
	}
	return nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "tablebase",
		Version: "dev",
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Oracle: &types.OracleConfig{
			BaseURL:      DefaultOracleBaseURL,
			Timeout:      5 * time.Second,
			MovesTimeout: 10 * time.Second,
			MaxAttempts:  3,
			BackoffBase:  300 * time.Millisecond,
			BackoffMax:   2 * time.Second,
			MoveLimit:    20,
			Breaker: &types.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 2,
			},
		},
		Cache: &types.CacheConfig{
			Type:       "memory",
			Capacity:   200,
			DefaultTTL: 5 * time.Minute,
		},
		Metrics: &types.MetricsConfig{
			Enabled:   false,
			Namespace: "tablebase",
		},
		Health: &types.HealthConfig{
			Enabled:  false,
			Interval: time.Minute,
		},
		Maintenance: &types.MaintenanceConfig{
			Enabled:       false,
			SweepSchedule: "0 */5 * * * *",
		},
	}
}
