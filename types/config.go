package types

import (
	"time"
)

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Oracle      *OracleConfig      `yaml:"oracle" json:"oracle"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Maintenance *MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
}

type LoggerConfig struct {
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type OracleConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url" validate:"required,url"`
	// Timeout bounds a plain evaluation request; MovesTimeout bounds the
	// larger move-list query.
	Timeout      time.Duration         `yaml:"timeout" json:"timeout" validate:"gt=0"`
	MovesTimeout time.Duration         `yaml:"moves_timeout" json:"moves_timeout" validate:"gt=0"`
	MaxAttempts  int                   `yaml:"max_attempts" json:"max_attempts" validate:"min=1"`
	BackoffBase  time.Duration         `yaml:"backoff_base" json:"backoff_base" validate:"gt=0"`
	BackoffMax   time.Duration         `yaml:"backoff_max" json:"backoff_max" validate:"gt=0"`
	MoveLimit    int                   `yaml:"move_limit" json:"move_limit" validate:"min=1"`
	Breaker      *CircuitBreakerConfig `yaml:"breaker" json:"breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"omitempty,min=1"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"omitempty,min=1"`
}

type CacheConfig struct {
	Type       string        `yaml:"type" json:"type" validate:"required,oneof=memory redis"`
	Capacity   int           `yaml:"capacity" json:"capacity" validate:"min=1"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"gt=0"`
	Config     interface{}   `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type HealthConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval" validate:"omitempty,gt=0"`
}

type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// SweepSchedule is a cron expression with a seconds field.
	SweepSchedule string `yaml:"sweep_schedule" json:"sweep_schedule"`
}
