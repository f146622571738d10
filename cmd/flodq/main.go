package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/flodq/internal/cmd/client"
	serverrun "github.com/rzbill/flodq/internal/cmd/server"
	cfgpkg "github.com/rzbill/flodq/internal/config"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	logpkg "github.com/rzbill/flodq/pkg/log"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	level := os.Getenv("FLODQ_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.WarnLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:          "flodq",
		Short:        "flodq blocking deque CLI",
		Long:         "flodq serves named double-ended queues with blocking multi-queue polls. This CLI runs the server and talks to a store.",
		SilenceUsage: true,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start flodq server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)

			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = cfg.DataDir
			}
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			if httpAddr == "" {
				httpAddr = cfg.HTTPAddr
			}
			fsyncFlag, _ := cmd.Flags().GetString("fsync")
			if fsyncFlag == "" {
				fsyncFlag = cfg.Fsync
			}
			mode, err := pebblestore.ParseFsyncMode(fsyncFlag)
			if err != nil {
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}
			interval := cfg.FsyncInterval
			if ms, _ := cmd.Flags().GetInt("fsync-interval-ms"); ms > 0 {
				interval = time.Duration(ms) * time.Millisecond
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				GRPCAddr:      grpcAddr,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: interval,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("FLODQ_CONFIG"), "Config file (.yaml, .yml or .json)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("grpc", ":50061", "gRPC listen address")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default from config, :8080)")
	serverStartCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never (default from config)")
	serverStartCmd.Flags().Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewDequeCommand(logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
