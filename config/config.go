// Package config loads engine configuration from environment variables
// (with .env support) plus a YAML trading-session/instrument-universe file.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// requiredEnvVars are validated by ValidateEnvVars at startup. Connection
// errors are fail-fast — the engine must never silently fall back to an
// embedded store.
var requiredEnvVars = []string{
	"VNPY_DATABASE_DRIVER",
	"VNPY_DATABASE_DATABASE",
	"VNPY_DATABASE_USER",
	"VNPY_DATABASE_PASSWORD",
}

// Config holds application configuration.
type Config struct {
	// Broker/gateway credentials
	BrokerAccountID string
	BrokerUsername  string
	BrokerPassword  string
	GatewayWSURL    string

	// Database configuration
	DatabaseDriver   string
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	Trading   TradingConfig
	Risk      RiskConfig
	Scheduler SchedulerConfig
	Hedge     HedgeConfig
	IV        IVConfig
}

// TradingConfig holds signal/sizing/selection parameters.
type TradingConfig struct {
	// Position management / daily caps
	GlobalDailyOpenCap   int
	PerSymbolDailyOpenCap int
	MaxConcurrentPositions int
	PositionRatio         float64 // fraction of balance required free before opening

	// Rollover
	RolloverHour   int // 14
	RolloverMinute int // 50

	// Liquidity gate
	MinBidVolume  int
	SpreadMaxTicks float64

	// Option selection
	DefaultOTMLevel    int
	MaxDaysToExpiry    int
	MinDaysToExpiry    int

	// Risk-breach policy (see DESIGN.md for the default rationale)
	BlockOpensOnRiskBreach bool
}

// RiskConfig holds per-position and portfolio Greek thresholds.
type RiskConfig struct {
	PositionDeltaLimit float64
	PositionGammaLimit float64
	PositionVegaLimit  float64
	PositionThetaLimit float64

	PortfolioDeltaLimit float64
	PortfolioGammaLimit float64
	PortfolioVegaLimit  float64
	PortfolioThetaLimit float64

	ContractMultiplier float64
}

// SchedulerConfig holds defaults for the advanced order scheduler.
type SchedulerConfig struct {
	IcebergBatchSize        int
	ClassicJitterRatio      float64 // in [0,1]
	ClassicPriceOffsetTicks int
	TimedSplitIntervalSec   int
	TWAPNumSlices           int
	EnhancedTWAPWindowSec   int

	OrderTimeoutSec int
	MaxRetries      int
	AdaptiveSlippageTicks int
}

// HedgeConfig holds defaults for Delta hedging and Gamma scalping.
type HedgeConfig struct {
	TargetDelta          float64
	HedgingBand          float64
	HedgeInstrumentDelta float64 // per-unit delta of the hedge instrument (e.g. 1.0 for the future itself)
	HedgeMultiplier      float64
	GammaRebalanceThreshold float64
}

// IVConfig controls the implied-vol Newton solver.
type IVConfig struct {
	Tolerance  float64
	MaxIter    int
	RiskFreeRate float64
}

// LoadFromEnv loads configuration from environment variables, falling back
// to .env if present. Missing required database variables are NOT fatal
// here — callers must call ValidateEnvVars and abort startup themselves
// (see worker.Bootstrap) so the failure mode is visible to the supervisor.
func LoadFromEnv() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		BrokerAccountID: os.Getenv("BROKER_ACCOUNT_ID"),
		BrokerUsername:  os.Getenv("BROKER_USERNAME"),
		BrokerPassword:  os.Getenv("BROKER_PASSWORD"),
		GatewayWSURL:    getEnvOrDefault("GATEWAY_WS_URL", "wss://gateway.local/ws"),

		DatabaseDriver:   os.Getenv("VNPY_DATABASE_DRIVER"),
		DatabaseHost:     getEnvOrDefault("VNPY_DATABASE_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("VNPY_DATABASE_PORT", "3306"),
		DatabaseName:     os.Getenv("VNPY_DATABASE_DATABASE"),
		DatabaseUser:     os.Getenv("VNPY_DATABASE_USER"),
		DatabasePassword: os.Getenv("VNPY_DATABASE_PASSWORD"),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Trading: TradingConfig{
			GlobalDailyOpenCap:     getEnvInt("TRADING_GLOBAL_DAILY_OPEN_CAP", 20),
			PerSymbolDailyOpenCap:  getEnvInt("TRADING_PER_SYMBOL_DAILY_OPEN_CAP", 3),
			MaxConcurrentPositions: getEnvInt("TRADING_MAX_CONCURRENT_POSITIONS", 10),
			PositionRatio:          getEnvFloat("TRADING_POSITION_RATIO", 0.3),
			RolloverHour:           getEnvInt("TRADING_ROLLOVER_HOUR", 14),
			RolloverMinute:         getEnvInt("TRADING_ROLLOVER_MINUTE", 50),
			MinBidVolume:           getEnvInt("TRADING_MIN_BID_VOLUME", 5),
			SpreadMaxTicks:         getEnvFloat("TRADING_SPREAD_MAX_TICKS", 3.0),
			DefaultOTMLevel:        getEnvInt("TRADING_DEFAULT_OTM_LEVEL", 1),
			MaxDaysToExpiry:        getEnvInt("TRADING_MAX_DAYS_TO_EXPIRY", 45),
			MinDaysToExpiry:        getEnvInt("TRADING_MIN_DAYS_TO_EXPIRY", 5),
			BlockOpensOnRiskBreach: getEnvOrDefault("TRADING_BLOCK_OPENS_ON_RISK_BREACH", "true") == "true",
		},

		Risk: RiskConfig{
			PositionDeltaLimit:  getEnvFloat("RISK_POSITION_DELTA_LIMIT", 50.0),
			PositionGammaLimit:  getEnvFloat("RISK_POSITION_GAMMA_LIMIT", 20.0),
			PositionVegaLimit:   getEnvFloat("RISK_POSITION_VEGA_LIMIT", 1000.0),
			PositionThetaLimit:  getEnvFloat("RISK_POSITION_THETA_LIMIT", 1000.0),
			PortfolioDeltaLimit: getEnvFloat("RISK_PORTFOLIO_DELTA_LIMIT", 200.0),
			PortfolioGammaLimit: getEnvFloat("RISK_PORTFOLIO_GAMMA_LIMIT", 100.0),
			PortfolioVegaLimit:  getEnvFloat("RISK_PORTFOLIO_VEGA_LIMIT", 5000.0),
			PortfolioThetaLimit: getEnvFloat("RISK_PORTFOLIO_THETA_LIMIT", 5000.0),
			ContractMultiplier:  getEnvFloat("RISK_CONTRACT_MULTIPLIER", 10.0),
		},

		Scheduler: SchedulerConfig{
			IcebergBatchSize:        getEnvInt("SCHEDULER_ICEBERG_BATCH_SIZE", 10),
			ClassicJitterRatio:      getEnvFloat("SCHEDULER_CLASSIC_JITTER_RATIO", 0.2),
			ClassicPriceOffsetTicks: getEnvInt("SCHEDULER_CLASSIC_PRICE_OFFSET_TICKS", 2),
			TimedSplitIntervalSec:   getEnvInt("SCHEDULER_TIMED_SPLIT_INTERVAL_SEC", 30),
			TWAPNumSlices:           getEnvInt("SCHEDULER_TWAP_NUM_SLICES", 5),
			EnhancedTWAPWindowSec:   getEnvInt("SCHEDULER_ENHANCED_TWAP_WINDOW_SEC", 300),
			OrderTimeoutSec:         getEnvInt("SCHEDULER_ORDER_TIMEOUT_SEC", 15),
			MaxRetries:              getEnvInt("SCHEDULER_MAX_RETRIES", 3),
			AdaptiveSlippageTicks:   getEnvInt("SCHEDULER_ADAPTIVE_SLIPPAGE_TICKS", 2),
		},

		Hedge: HedgeConfig{
			TargetDelta:             getEnvFloat("HEDGE_TARGET_DELTA", 0.0),
			HedgingBand:             getEnvFloat("HEDGE_BAND", 5.0),
			HedgeInstrumentDelta:    getEnvFloat("HEDGE_INSTRUMENT_DELTA", 1.0),
			HedgeMultiplier:         getEnvFloat("HEDGE_MULTIPLIER", 10.0),
			GammaRebalanceThreshold: getEnvFloat("GAMMA_REBALANCE_THRESHOLD", 10.0),
		},

		IV: IVConfig{
			Tolerance:    getEnvFloat("IV_TOLERANCE", 1e-6),
			MaxIter:      getEnvInt("IV_MAX_ITER", 100),
			RiskFreeRate: getEnvFloat("IV_RISK_FREE_RATE", 0.03),
		},
	}
}

// ValidateEnvVars returns the names of required environment variables that
// are unset. An empty slice means startup may proceed. Callers must treat
// a non-empty result as fatal — configuration errors fail fast.
func ValidateEnvVars() []string {
	var missing []string
	for _, name := range requiredEnvVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
