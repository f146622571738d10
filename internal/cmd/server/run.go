package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/flodq/internal/config"
	"github.com/rzbill/flodq/internal/runtime"
	grpcserver "github.com/rzbill/flodq/internal/server/grpc"
	httpserver "github.com/rzbill/flodq/internal/server/http"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	logpkg "github.com/rzbill/flodq/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = os.Getenv

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Logger defaults to one built from FLODQ_LOG_LEVEL and FLODQ_LOG_FORMAT.
	Logger logpkg.Logger
}

func processLogger() (logpkg.Logger, *logpkg.Config) {
	cfg := &logpkg.Config{
		Level:  getenvDefault("FLODQ_LOG_LEVEL", "info"),
		Format: getenvDefault("FLODQ_LOG_FORMAT", "text"),
	}
	l, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if parsed, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = parsed
		}
		l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	return l, cfg
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or
// either server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		var lcfg *logpkg.Config
		logger, lcfg = processLogger()
		logpkg.RedirectStdLog(logger)
		logger.Debug("logger configured", logpkg.Str("level", lcfg.Level), logpkg.Str("format", lcfg.Format))
	}

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting flodq server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str("fsync", opts.Fsync.String()),
	)

	gsrv := grpcserver.New(rt)
	hsrv := httpserver.New(rt, logger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return gsrv.ListenAndServe(gctx, opts.GRPCAddr) })
	g.Go(func() error { return hsrv.ListenAndServe(gctx, opts.HTTPAddr) })
	err = g.Wait()
	// servers stop before the runtime closes its storage
	gsrv.Close()
	hsrv.Close()
	if err != nil && sctx.Err() == nil {
		logger.Error("server stopped", logpkg.Err(err))
		return err
	}
	logger.Info("flodq server stopped")
	return nil
}
