package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/telemetry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "shipbox-worker",
	Short:         "Correios shipment fulfillment and tracking reconciliation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciler, the order consumer and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return RunWorker(cmd.Context(), cfg, defaultWorkerFactories(), log)
	},
}

var forceUpdateCmd = &cobra.Command{
	Use:   "force-update <orderID>",
	Short: "Reconcile one order against the carrier now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		c, err := buildComponents(cmd.Context(), cfg, defaultWorkerFactories(), log, true)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.reconciler.ForceUpdate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var (
	estimateFrom   string
	estimateTo     string
	estimateWeight float64
	estimateValue  string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Quote PAC and SEDEX between two CEPs",
	RunE: func(cmd *cobra.Command, args []string) error {
		value := decimal.Zero
		if estimateValue != "" {
			v, err := decimal.NewFromString(estimateValue)
			if err != nil {
				return errors.Wrap(err, "parse --value")
			}
			value = v
		}

		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		c, err := buildComponents(cmd.Context(), cfg, defaultWorkerFactories(), log, false)
		if err != nil {
			return err
		}
		defer c.Close()

		return printJSON(cmd, c.rates.Estimate(cmd.Context(), estimateFrom, estimateTo, estimateWeight, value))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("configPath"), "path to the YAML config")

	estimateCmd.Flags().StringVar(&estimateFrom, "from", "", "origin CEP")
	estimateCmd.Flags().StringVar(&estimateTo, "to", "", "destination CEP")
	estimateCmd.Flags().Float64Var(&estimateWeight, "weight", 0, "weight in kg")
	estimateCmd.Flags().StringVar(&estimateValue, "value", "", "declared value in BRL")
	_ = estimateCmd.MarkFlagRequired("from")
	_ = estimateCmd.MarkFlagRequired("to")
	_ = estimateCmd.MarkFlagRequired("weight")

	rootCmd.AddCommand(runCmd, forceUpdateCmd, estimateCmd)
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}
	log, err := telemetry.NewLogger(cfg.ShipBox.LogLevel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "init logger")
	}
	return cfg, log, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
