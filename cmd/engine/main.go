// Command engine is the worker process entrypoint: it loads
// configuration, wires the default indicator/signal/sizing bundle, and
// runs the strategy engine's event loop until signalled to stop. Built
// as a cobra root command so flags can override the session-schedule
// path and variant name without new environment variables.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haka-quant/optionengine/config"
	"github.com/haka-quant/optionengine/greeks"
	"github.com/haka-quant/optionengine/indicator"
	"github.com/haka-quant/optionengine/notifications"
	"github.com/haka-quant/optionengine/selector"
	"github.com/haka-quant/optionengine/signal"
	"github.com/haka-quant/optionengine/sizing"
	"github.com/haka-quant/optionengine/strategy"
	"github.com/haka-quant/optionengine/worker"
)

var (
	sessionSchedulePath string
	variantName         string
	instanceID          string
	strategyName        string
	barWindowMinutes    int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "engine runs the options/futures strategy engine worker process",
	RunE:  runEngine,
}

func init() {
	rootCmd.Flags().StringVar(&sessionSchedulePath, "sessions", "config/sessions.yaml", "path to the trading-session schedule YAML file")
	rootCmd.Flags().StringVar(&variantName, "variant", "default", "strategy variant name, scopes monitor rows")
	rootCmd.Flags().StringVar(&instanceID, "instance", "1", "worker instance id, scopes monitor rows alongside variant")
	rootCmd.Flags().StringVar(&strategyName, "strategy-name", "options-futures-engine", "strategy_name used for persistence snapshots")
	rootCmd.Flags().IntVar(&barWindowMinutes, "bar-window-minutes", 1, "bar aggregation window in minutes (1 disables aggregation)")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if missing := config.ValidateEnvVars(); len(missing) > 0 {
		return fmt.Errorf("engine: missing required environment variables: %v", missing)
	}

	sched, err := config.LoadSessionSchedule(sessionSchedulePath)
	if err != nil {
		log.Printf("⚠️  engine: no session schedule at %s (%v), running unrestricted", sessionSchedulePath, err)
		sched = nil
	}

	engineCfg := strategy.Config{
		StrategyName:   strategyName,
		RolloverHour:   cfg.Trading.RolloverHour,
		RolloverMinute: cfg.Trading.RolloverMinute,
		LiquidityFilter: selector.LiquidityFilter{
			MinBidVolume:   cfg.Trading.MinBidVolume,
			MaxSpreadTicks: cfg.Trading.SpreadMaxTicks,
		},
		MinDaysToExpiry:    cfg.Trading.MinDaysToExpiry,
		MaxDaysToExpiry:    cfg.Trading.MaxDaysToExpiry,
		DefaultOTMLevel:    cfg.Trading.DefaultOTMLevel,
		DefaultOpenVolume:  1,
		ContractMultiplier: cfg.Risk.ContractMultiplier,
		RiskFreeRate:       cfg.IV.RiskFreeRate,
		IVConfig: greeks.IVConfig{
			Tolerance: cfg.IV.Tolerance,
			MaxIter:   cfg.IV.MaxIter,
		},
		SizingConfig: sizing.Config{
			PerSymbolDailyCap:      cfg.Trading.PerSymbolDailyOpenCap,
			GlobalDailyCap:         cfg.Trading.GlobalDailyOpenCap,
			MaxConcurrentPositions: cfg.Trading.MaxConcurrentPositions,
			PositionRatio:          cfg.Trading.PositionRatio,
		},
		OrderTimeout:           time.Duration(cfg.Scheduler.OrderTimeoutSec) * time.Second,
		MaxRetries:             cfg.Scheduler.MaxRetries,
		AdaptiveSlippageTicks:  cfg.Scheduler.AdaptiveSlippageTicks,
		BlockOpensOnRiskBreach: cfg.Trading.BlockOpensOnRiskBreach,
	}
	if sched != nil {
		engineCfg.Products = sched.Products
	}

	services := strategy.ServiceBundle{
		Indicator:          indicator.Bundle{indicator.NewTD9()},
		Signal:             signal.NewDivergenceTD9(),
		Sizer:              sizing.New(engineCfg.SizingConfig),
		SignalToOptionType: signalToOptionType,
	}

	deps := worker.Deps{
		EngineConfig:     engineCfg,
		Services:         services,
		Variant:          variantName,
		InstanceID:       instanceID,
		BarWindowMinutes: barWindowMinutes,
		WebhookHooks:     loadWebhooksFromEnv(),
	}

	w, err := worker.Bootstrap(cfg, deps)
	if err != nil {
		return fmt.Errorf("engine: bootstrap failed: %w", err)
	}

	if sched != nil {
		for _, product := range sched.Products {
			if err := w.Subscribe(product); err != nil {
				log.Printf("⚠️  engine: subscribe %s failed: %v", product, err)
			}
		}
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return w.Run(ctx)
}

// signalToOptionType maps the built-in DivergenceTD9 signal's open-signal
// strings to the option side the engine should trade. Deployments with a
// custom signal.Service must supply their own mapping; this is the
// default wired for the built-in.
func signalToOptionType(sig string) (selector.OptionType, bool) {
	switch sig {
	case signal.SignalSellPutDivergenceTD9:
		return selector.Put, true
	case signal.SignalSellCallDivergenceTD9:
		return selector.Call, true
	default:
		return "", false
	}
}

// loadWebhooksFromEnv builds a single webhook target from env vars, if
// configured. A full multi-hook deployment would load these from a
// config file instead.
func loadWebhooksFromEnv() []notifications.Webhook {
	url := os.Getenv("WEBHOOK_URL")
	if url == "" {
		return nil
	}
	return []notifications.Webhook{{
		ID:                1,
		URL:               url,
		Method:            "POST",
		RetryCount:        3,
		RetryDelaySeconds: 2,
	}}
}
