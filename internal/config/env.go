package config

import (
	"os"
	"strings"

	"github.com/spf13/cast"
)

// FromEnv overlays FLODQ_* environment variables onto cfg. Durations accept
// Go syntax ("250ms") or a bare number of nanoseconds.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("FLODQ_DEFAULT_NAMESPACE_NAME", &cfg.DefaultNamespaceName)
	str("FLODQ_NAMESPACE_NAME_REGEX", &cfg.NamespaceNameRegex)
	str(DataDirEnv, &cfg.DataDir)
	str("FLODQ_FSYNC", &cfg.Fsync)
	str("FLODQ_REDIS_ADDR", &cfg.Redis.Addr)
	str("FLODQ_REDIS_PASSWORD", &cfg.Redis.Password)
	str("FLODQ_REDIS_KEY_PREFIX", &cfg.Redis.KeyPrefix)
	str("FLODQ_GRPC", &cfg.GRPC.Addr)
	str("FLODQ_HTTP_ADDR", &cfg.HTTPAddr)

	if v := os.Getenv("FLODQ_BACKEND"); v != "" {
		cfg.Backend = Backend(strings.ToLower(v))
	}
	if v := os.Getenv("FLODQ_LOST_ELEMENT_POLICY"); v != "" {
		cfg.LostElementPolicy = LostElementPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("FLODQ_REDIS_DB"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("FLODQ_QUEUE_NAME_MAX_BYTES"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			cfg.QueueNameMaxBytes = n
		}
	}
	if v := os.Getenv("FLODQ_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			cfg.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("FLODQ_FSYNC_INTERVAL"); v != "" {
		if d, err := cast.ToDurationE(v); err == nil {
			cfg.FsyncInterval = d
		}
	}
	if v := os.Getenv("FLODQ_REDIS_MAX_WAITS"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			cfg.Redis.MaxWaits = n
		}
	}
	if v := os.Getenv("FLODQ_DEFAULT_TIMEOUT"); v != "" {
		if d, err := cast.ToDurationE(v); err == nil {
			cfg.DefaultTimeout = d
		}
	}
}
