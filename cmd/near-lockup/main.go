package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/lumera-labs/near-lockup/internal/logging"
	"github.com/lumera-labs/near-lockup/pkg/config"
	"github.com/lumera-labs/near-lockup/pkg/httpserver"
	"github.com/lumera-labs/near-lockup/pkg/inspect"
	"github.com/lumera-labs/near-lockup/pkg/metrics"
	"github.com/lumera-labs/near-lockup/pkg/rpc"
)

var (
	GitTag    = "dev"
	GitCommit = "unknown"
)

var flagMain struct {
	Config   string
	Addr     string
	RPCURL   string
	LogLevel string
}

var cmdMain = &cobra.Command{
	Use:          "near-lockup",
	Short:        "Serve NEAR lockup balances over HTTP",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         serve,
}

func init() {
	f := cmdMain.Flags()
	f.StringVarP(&flagMain.Config, "config", "c", "", "Path to a TOML config file")
	f.StringVar(&flagMain.Addr, "addr", "", "HTTP listen address")
	f.StringVar(&flagMain.RPCURL, "rpc-url", "", "NEAR JSON-RPC endpoint")
	f.StringVar(&flagMain.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmdMain.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagMain.Config)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.HTTPAddr = flagMain.Addr
	}
	if flags.Changed("rpc-url") {
		cfg.RPCURL = flagMain.RPCURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagMain.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.Setup(logging.Options{
		Service: "near-lockup",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	m := metrics.Lockup()
	client := rpc.NewClient(cfg.RPCURL, &http.Client{Timeout: cfg.RPCTimeout}).WithMetrics(m)
	in := inspect.New(client, inspect.Options{
		Override:   cfg.TransfersOverride,
		Retries:    cfg.RPCRetries,
		RetryDelay: cfg.RPCRetryDelay,
		Logger:     logger,
		Metrics:    m,
	})
	srv := httpserver.New(httpserver.Config{
		Inspector:  in,
		RatePerMin: cfg.RatePerMin,
		Burst:      cfg.Burst,
		TrustProxy: cfg.TrustProxy,
		Logger:     logger,
		GitTag:     GitTag,
		GitCommit:  GitCommit,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("NEAR lockup API listening",
		"addr", cfg.HTTPAddr,
		"rpc_url", cfg.RPCURL,
		"transfers_override", cfg.TransfersOverride.Mode,
		"git_tag", GitTag,
		"git_commit", GitCommit)

	var g run.Group
	g.Add(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	})
	ctx, cancel := context.WithCancel(cmd.Context())
	g.Add(func() error {
		<-ctx.Done()
		return nil
	}, func(error) {
		cancel()
	})
	if err := g.Run(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
