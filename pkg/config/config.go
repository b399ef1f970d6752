// Package config loads the driver's configuration surface (§6's CLI surface: node
// URL, private key, polling interval, earliest/latest submit time, solver type,
// subsidy factor, log level) from a config file and environment variables; cmd/driver
// applies its command-line flag overrides on top of the result.
// Grounded on the teacher's hft-bot/pkg/config/config.go (viper.New, SetDefault per
// field, AutomaticEnv with a "." -> "_" key replacer, validate-after-unmarshal).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the driver's full configuration.
type Config struct {
	Exchange   ExchangeConfig   `yaml:"exchange" json:"exchange"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" json:"scheduler"`
	Solver     SolverConfig     `yaml:"solver" json:"solver"`
	Subsidy    SubsidyConfig    `yaml:"subsidy" json:"subsidy"`
	GasOracle  GasOracleConfig  `yaml:"gas_oracle" json:"gas_oracle"`
	Persist    PersistConfig    `yaml:"persist" json:"persist"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`
}

// ExchangeConfig is how the driver reaches the chain and signs transactions.
type ExchangeConfig struct {
	NodeURL        string `yaml:"node_url" json:"node_url"`
	PrivateKey     string `yaml:"private_key" json:"private_key"`
	ContractAddr   string `yaml:"contract_address" json:"contract_address"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
}

// SchedulerConfig carries the batch timing knobs from §4.8.
type SchedulerConfig struct {
	PollInterval               time.Duration `yaml:"poll_interval" json:"poll_interval"`
	EarliestSolutionSubmitTime time.Duration `yaml:"earliest_solution_submit_time" json:"earliest_solution_submit_time"`
	LatestSolutionSubmitTime   time.Duration `yaml:"latest_solution_submit_time" json:"latest_solution_submit_time"`
}

// SolverConfig configures the price finder subprocess (§6).
type SolverConfig struct {
	Command     string   `yaml:"command" json:"command"`
	BaseArgs    []string `yaml:"base_args" json:"base_args"`
	Type        string   `yaml:"type" json:"type"`
	InstanceDir string   `yaml:"instance_dir" json:"instance_dir"`
	ResultDir   string   `yaml:"result_dir" json:"result_dir"`
	FeeRatio    float64  `yaml:"fee_ratio" json:"fee_ratio"`
}

// SubsidyConfig is the input to the gas price cap formula (§4.9).
type SubsidyConfig struct {
	SubsidyFactor decimal.Decimal `yaml:"subsidy_factor" json:"subsidy_factor"`
	EthPriceInOwl decimal.Decimal `yaml:"eth_price_in_owl" json:"eth_price_in_owl"`
	GasPerTrade   decimal.Decimal `yaml:"gas_per_trade" json:"gas_per_trade"`
}

// GasOracleConfig points at the gas station endpoint and its polling cadence.
type GasOracleConfig struct {
	URL          string        `yaml:"url" json:"url"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	Fallback     decimal.Decimal `yaml:"fallback" json:"fallback"`
}

// PersistConfig is where the event log is written to and loaded from on startup.
type PersistConfig struct {
	EventLogPath string        `yaml:"event_log_path" json:"event_log_path"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig matches pkg/logger.NewLogger's expected fields.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// MonitoringConfig is where the health and metrics HTTP servers listen.
type MonitoringConfig struct {
	HealthAddr  string `yaml:"health_addr" json:"health_addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// Load reads configuration from built-in defaults, the config file (configPath if
// set), and the environment, in that order of increasing priority, then validates the
// result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("driver")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	// decimal.Decimal fields are decoded from strings via their UnmarshalText; the
	// duration and slice hooks are viper's defaults.
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.confirm_timeout", "2m")

	v.SetDefault("scheduler.poll_interval", "2s")
	v.SetDefault("scheduler.earliest_solution_submit_time", "30s")
	v.SetDefault("scheduler.latest_solution_submit_time", "4m")

	v.SetDefault("solver.command", "python")
	v.SetDefault("solver.base_args", []string{"-m", "batchauctions.scripts.e2e._run"})
	v.SetDefault("solver.type", "standard")
	v.SetDefault("solver.instance_dir", "instances")
	v.SetDefault("solver.result_dir", "results")
	v.SetDefault("solver.fee_ratio", 0.001)

	v.SetDefault("subsidy.subsidy_factor", "1")
	v.SetDefault("subsidy.eth_price_in_owl", "1")
	v.SetDefault("subsidy.gas_per_trade", "120000")

	v.SetDefault("gas_oracle.poll_interval", "15s")
	v.SetDefault("gas_oracle.fallback", "20")

	v.SetDefault("persist.event_log_path", "eventlog.bin")
	v.SetDefault("persist.flush_interval", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.health_addr", ":8081")
	v.SetDefault("monitoring.metrics_addr", ":9090")
}

func validate(cfg *Config) error {
	if cfg.Exchange.NodeURL == "" {
		return fmt.Errorf("exchange.node_url is required")
	}
	if cfg.Exchange.PrivateKey == "" {
		return fmt.Errorf("exchange.private_key is required")
	}
	if cfg.Scheduler.EarliestSolutionSubmitTime >= cfg.Scheduler.LatestSolutionSubmitTime {
		return fmt.Errorf("scheduler.earliest_solution_submit_time must be before latest_solution_submit_time")
	}
	if cfg.Scheduler.LatestSolutionSubmitTime >= time.Duration(300)*time.Second {
		return fmt.Errorf("scheduler.latest_solution_submit_time must be under the 300s batch duration")
	}
	return nil
}
