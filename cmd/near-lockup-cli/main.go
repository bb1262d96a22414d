package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lumera-labs/near-lockup/internal/logging"
	"github.com/lumera-labs/near-lockup/pkg/config"
	"github.com/lumera-labs/near-lockup/pkg/format"
	"github.com/lumera-labs/near-lockup/pkg/inspect"
	"github.com/lumera-labs/near-lockup/pkg/metrics"
	"github.com/lumera-labs/near-lockup/pkg/policy"
	"github.com/lumera-labs/near-lockup/pkg/rpc"
	"github.com/lumera-labs/near-lockup/pkg/types"
)

var flagMain struct {
	Account           string
	BlockHeight       uint64
	Config            string
	RPCURL            string
	Format            string
	Pretty            bool
	NoHeader          bool
	OverrideMode      string
	OverrideTimestamp uint64
	LogLevel          string
}

var cmdMain = &cobra.Command{
	Use:          "near-lockup-cli",
	Short:        "Print the locked balance of a NEAR lockup account",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := cmdMain.Flags()
	f.StringVarP(&flagMain.Account, "lockup-account-id", "a", "", "Lockup account ID, e.g. 3ad9...b1c0.lockup.near")
	f.Uint64VarP(&flagMain.BlockHeight, "block-height", "b", 0, "Evaluate at this block height instead of the latest final block")
	f.StringVarP(&flagMain.Config, "config", "c", "", "Path to a TOML config file")
	f.StringVar(&flagMain.RPCURL, "rpc-url", "", "NEAR JSON-RPC endpoint (archival for old heights)")
	f.StringVarP(&flagMain.Format, "format", "f", "csv", "Output format: csv or json")
	f.BoolVar(&flagMain.Pretty, "pretty", false, "Indent JSON output")
	f.BoolVar(&flagMain.NoHeader, "no-header", false, "Omit the CSV header row")
	f.StringVar(&flagMain.OverrideMode, "transfers-override-mode", "", "Transfers override: off, if-disabled or always")
	f.Uint64Var(&flagMain.OverrideTimestamp, "transfers-override-timestamp", 0, "Transfers-enabled timestamp used by the override")
	f.StringVar(&flagMain.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	_ = cmdMain.MarkFlagRequired("lockup-account-id")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmdMain.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagMain.Config)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("rpc-url") {
		cfg.RPCURL = flagMain.RPCURL
	}
	if flags.Changed("transfers-override-mode") {
		cfg.TransfersOverride.Mode = policy.Mode(flagMain.OverrideMode)
	}
	if flags.Changed("transfers-override-timestamp") {
		cfg.TransfersOverride.Timestamp = flagMain.OverrideTimestamp
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagMain.LogLevel
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if flagMain.Format != "csv" && flagMain.Format != "json" {
		return fmt.Errorf("unknown format %q", flagMain.Format)
	}

	// stdout carries the report, so logs go to stderr or the configured file
	logger, closer, err := logging.Setup(logging.Options{
		Service: "near-lockup-cli",
		Level:   cfg.LogLevel,
		Format:  "text",
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

	var height *uint64
	if cmd.Flags().Changed("block-height") {
		height = &flagMain.BlockHeight
	}

	report, err := in.Inspect(cmd.Context(), flagMain.Account, height)
	if err != nil {
		logger.Error("inspect failed", "account_id", flagMain.Account, "error", err)
		return err
	}

	out := cmd.OutOrStdout()
	if flagMain.Format == "json" {
		return format.WriteJSON(out, report, flagMain.Pretty)
	}
	return format.WriteCSV(out, []*types.LockupReport{report}, !flagMain.NoHeader)
}
