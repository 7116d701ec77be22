package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Balancer  BalancerConfig  `yaml:"balancer"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HeaderTimeout  time.Duration `yaml:"header_timeout"`
	MaxIdleConns   int           `yaml:"max_idle_conns"`
}

type BalancerConfig struct {
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
	MinSampleSize        int           `yaml:"min_sample_size"`
	UnhealthyThreshold   float64       `yaml:"unhealthy_threshold"`
	SuccessRateWeight    float64       `yaml:"success_rate_weight"`
	ResponseTimeWeight   float64       `yaml:"response_time_weight"`
	LatencyFloorMs       float64       `yaml:"latency_floor_ms"`
	LatencyCeilingMs     float64       `yaml:"latency_ceiling_ms"`
	EMAAlpha             float64       `yaml:"ema_alpha"`
	PerformanceWindow    time.Duration `yaml:"performance_window"`
	PruneInterval        time.Duration `yaml:"prune_interval"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	RPM     int  `yaml:"rpm"`
}

type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     300 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://generativelanguage.googleapis.com",
			RequestTimeout: 60 * time.Second,
			HeaderTimeout:  60 * time.Second,
			MaxIdleConns:   32,
		},
		Balancer: BalancerConfig{
			MaxConsecutiveErrors: 3,
			MinSampleSize:        5,
			UnhealthyThreshold:   0.3,
			SuccessRateWeight:    0.7,
			ResponseTimeWeight:   0.3,
			LatencyFloorMs:       100,
			LatencyCeilingMs:     5000,
			EMAAlpha:             0.1,
			PerformanceWindow:    10 * time.Minute,
			PruneInterval:        5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPM:     120,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "prism",
			User:            "prism",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
	}
}
