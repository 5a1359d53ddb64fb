package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the single source of truth for all engine thresholds and
// parameters. It is built once in main and passed explicitly into each
// constructor; no component reads the environment directly.
type Config struct {
	Environment string
	LogLevel    string
	Symbol      string
	DryRun      bool

	Risk       RiskConfig
	Sizing     SizingConfig
	Portfolio  PortfolioConfig
	TWAP       TWAPConfig
	Broker     BrokerConfig
	Store      StoreConfig
	Monitoring MonitoringConfig
}

// RiskConfig holds the Risk Engine thresholds.
type RiskConfig struct {
	InitialRiskPct             float64 // percent of equity risked per trade before reductions
	MinRiskPct                 float64 // floor for multiplicative reductions
	DailyLossLimitPct          float64 // realized daily loss as % of start-of-day NAV that blocks the day
	MaxDrawdownLimitPct        float64 // drawdown from peak NAV that triggers a reduction
	ConsecutiveLossesThreshold int
	ConsecutiveLossMultiplier  float64
	MaxReductionSteps          int
	RecoveryEnabled            bool
	RecoveryConsecWins         int
	RecoveryStepFraction       float64 // recover by this fraction of the initial risk pct per step
}

// SizingConfig holds the Position Sizer caps.
type SizingConfig struct {
	MaxSingleOrderPct float64 // cap on one order as % of equity
	MinOrderNotional  float64 // below this the sizer returns a zero-size skip
}

// PortfolioConfig holds signal aggregation parameters.
type PortfolioConfig struct {
	AgentWeight    float64
	RuleWeight     float64
	DefaultRiskPct float64 // used when no signal suggests a risk pct
	DefaultStopPct float64 // conservative stop distance when signals omit one
}

// TWAPConfig holds the execution scheduler parameters.
type TWAPConfig struct {
	Duration         time.Duration // total execution window
	Slices           int
	LimitOffsetPct   float64 // fractional offset for passive limit prices
	MaxSlippagePct   float64 // fractional per-slice slippage bound
	MinSliceNotional float64
	LimitTimeout     time.Duration // wait for a passive fill before fallback
	MarketFallback   bool
	UseDepthCheck    bool
}

// BrokerConfig holds exchange connectivity settings.
type BrokerConfig struct {
	Name      string
	APIKey    string
	APISecret string
	Category  string // spot, linear
	Testnet   bool
	Demo      bool
}

// StoreConfig holds persistence settings for decision traces and ledgers.
type StoreConfig struct {
	DatabasePath string
	TraceDir     string
	ReportDir    string
}

// MonitoringConfig holds the metrics endpoint settings.
type MonitoringConfig struct {
	MetricsPort int
}

// Load builds a Config from environment variables with conservative
// defaults. Callers load .env beforehand (godotenv in cmd).
func Load() *Config {
	return &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Symbol:      getEnv("TRADING_SYMBOL", "BTCUSDT"),
		DryRun:      getEnvBool("DRY_RUN", true),

		Risk: RiskConfig{
			InitialRiskPct:             getEnvFloat("INITIAL_RISK_PCT", 1.0),
			MinRiskPct:                 getEnvFloat("MIN_RISK_PCT", 0.05),
			DailyLossLimitPct:          getEnvFloat("DAILY_LOSS_LIMIT_PCT", 1.0),
			MaxDrawdownLimitPct:        getEnvFloat("MAX_DRAWDOWN_LIMIT_PCT", 10.0),
			ConsecutiveLossesThreshold: getEnvInt("CONSECUTIVE_LOSSES_THRESHOLD", 3),
			ConsecutiveLossMultiplier:  getEnvFloat("CONSECUTIVE_LOSS_MULTIPLIER", 0.5),
			MaxReductionSteps:          getEnvInt("MAX_REDUCTION_STEPS", 5),
			RecoveryEnabled:            getEnvBool("RECOVERY_ENABLED", true),
			RecoveryConsecWins:         getEnvInt("RECOVERY_CONSEC_WINS", 3),
			RecoveryStepFraction:       getEnvFloat("RECOVERY_STEP_FRACTION", 0.1),
		},

		Sizing: SizingConfig{
			MaxSingleOrderPct: getEnvFloat("MAX_SINGLE_ORDER_PCT", 20.0),
			MinOrderNotional:  getEnvFloat("MIN_ORDER_NOTIONAL", 5000),
		},

		Portfolio: PortfolioConfig{
			AgentWeight:    getEnvFloat("AGENT_WEIGHT", 0.6),
			RuleWeight:     getEnvFloat("RULE_WEIGHT", 0.2),
			DefaultRiskPct: getEnvFloat("RISK_PER_TRADE_PCT", 1.0),
			DefaultStopPct: getEnvFloat("DEFAULT_STOP_PCT", 1.0),
		},

		TWAP: TWAPConfig{
			Duration:         getEnvDuration("TWAP_DURATION", 5*time.Minute),
			Slices:           getEnvInt("TWAP_SLICES", 6),
			LimitOffsetPct:   getEnvFloat("TWAP_LIMIT_OFFSET_PCT", 0.001),
			MaxSlippagePct:   getEnvFloat("MAX_SLIPPAGE_PCT", 0.002),
			MinSliceNotional: getEnvFloat("TWAP_MIN_SLICE_NOTIONAL", 5000),
			LimitTimeout:     getEnvDuration("TWAP_LIMIT_TIMEOUT", 8*time.Second),
			MarketFallback:   getEnvBool("TWAP_MARKET_FALLBACK", true),
			UseDepthCheck:    getEnvBool("TWAP_USE_DEPTH_CHECK", true),
		},

		Broker: BrokerConfig{
			Name:      getEnv("BROKER_NAME", "bybit"),
			APIKey:    getEnv("BROKER_API_KEY", ""),
			APISecret: getEnv("BROKER_API_SECRET", ""),
			Category:  getEnv("BROKER_CATEGORY", "spot"),
			Testnet:   getEnvBool("BROKER_TESTNET", true),
			Demo:      getEnvBool("BROKER_DEMO", false),
		},

		Store: StoreConfig{
			DatabasePath: getEnv("TRACE_DB_PATH", "data/engine.db"),
			TraceDir:     getEnv("TRACE_DIR", "logs/decision_traces"),
			ReportDir:    getEnv("REPORT_DIR", "reports"),
		},

		Monitoring: MonitoringConfig{
			MetricsPort: getEnvInt("METRICS_PORT", 8080),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
