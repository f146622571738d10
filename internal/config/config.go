package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names the remote store a client talks to.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendRedis Backend = "redis"
	BackendGRPC  Backend = "grpc"
)

// LostElementPolicy decides what happens to an element popped for a wait
// that already lost its request.
type LostElementPolicy string

const (
	// LostElementRequeue pushes the element back to the end it came from and
	// reports it as lost only when that push fails.
	LostElementRequeue LostElementPolicy = "requeue"
	// LostElementReport skips the push-back and always reports.
	LostElementReport LostElementPolicy = "report"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DefaultNamespaceName string            `json:"defaultNamespaceName" yaml:"defaultNamespaceName"`
	NamespaceNameRegex   string            `json:"namespaceNameRegex" yaml:"namespaceNameRegex"`
	Backend              Backend           `json:"backend" yaml:"backend"`
	DataDir              string            `json:"dataDir" yaml:"dataDir"`
	Fsync                string            `json:"fsync" yaml:"fsync"`
	FsyncInterval        time.Duration     `json:"fsyncInterval" yaml:"fsyncInterval"`
	Redis                RedisConfig       `json:"redis" yaml:"redis"`
	GRPC                 GRPCConfig        `json:"grpc" yaml:"grpc"`
	HTTPAddr             string            `json:"httpAddr" yaml:"httpAddr"`
	DefaultTimeout       time.Duration     `json:"defaultTimeout" yaml:"defaultTimeout"`
	LostElementPolicy    LostElementPolicy `json:"lostElementPolicy" yaml:"lostElementPolicy"`
	QueueNameMaxBytes    int               `json:"queueNameMaxBytes" yaml:"queueNameMaxBytes"`
	PayloadMaxBytes      int               `json:"payloadMaxBytes" yaml:"payloadMaxBytes"`
}

// RedisConfig selects a Redis-compatible store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	DB       int    `json:"db" yaml:"db"`
	Password string `json:"password" yaml:"password"`
	// MaxWaits caps blocked pops in flight. Each holds a connection from a
	// pool of this size kept apart from the one pushes use.
	MaxWaits  int    `json:"maxWaits" yaml:"maxWaits"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// GRPCConfig addresses a flodq server.
type GRPCConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DefaultNamespaceName: "default",
		NamespaceNameRegex:   "[a-z0-9-_]{1,64}",
		Backend:              BackendLocal,
		Fsync:                "interval",
		FsyncInterval:        5 * time.Millisecond,
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			MaxWaits:  256,
			KeyPrefix: "flodq:",
		},
		GRPC:              GRPCConfig{Addr: "localhost:50061"},
		HTTPAddr:          ":8080",
		DefaultTimeout:    30 * time.Second,
		LostElementPolicy: LostElementRequeue,
		QueueNameMaxBytes: 256,
		PayloadMaxBytes:   1 << 20,
	}
}

// Validate rejects combinations the runtime cannot serve.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendRedis, BackendGRPC:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.LostElementPolicy {
	case LostElementRequeue, LostElementReport:
	default:
		return fmt.Errorf("config: unknown lost element policy %q", c.LostElementPolicy)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("config: negative default timeout")
	}
	if c.Redis.MaxWaits <= 0 {
		return fmt.Errorf("config: redis max waits must be positive")
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
