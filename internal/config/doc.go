// Package config provides loading and environment overlay for flodq
// configuration. It exposes a Default() baseline, JSON/YAML file loading and
// a FLODQ_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/flodq.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{DataDir: cfg.DataDir, Config: cfg})
//	defer rt.Close()
package config
