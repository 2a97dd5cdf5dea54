package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	StaticDir      string   `yaml:"static_dir" mapstructure:"static_dir"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// StoreConfig configures where prediction and critical-case logs live.
type StoreConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"`
	Dir               string `yaml:"dir" mapstructure:"dir"`
	PredictionsFile   string `yaml:"predictions_file" mapstructure:"predictions_file"`
	CriticalCasesFile string `yaml:"critical_cases_file" mapstructure:"critical_cases_file"`
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns          int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns          int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ClassifierConfig selects and configures the classification gateway.
type ClassifierConfig struct {
	Provider                string `yaml:"provider" mapstructure:"provider"`
	BaseURL                 string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs             int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts             int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	CircuitFailureThreshold int    `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int    `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	AnthropicKey            string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel          string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	MetadataPath            string `yaml:"metadata_path" mapstructure:"metadata_path"`
}

// ReportConfig configures monthly report generation.
type ReportConfig struct {
	Dir                    string         `yaml:"dir" mapstructure:"dir"`
	DriftMode              string         `yaml:"drift_mode" mapstructure:"drift_mode"`
	LowConfidenceThreshold float64        `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
	HighLatencySecs        float64        `yaml:"high_latency_secs" mapstructure:"high_latency_secs"`
	FakeSpikeMultiplier    float64        `yaml:"fake_spike_multiplier" mapstructure:"fake_spike_multiplier"`
	LatencyAnomalySecs     float64        `yaml:"latency_anomaly_secs" mapstructure:"latency_anomaly_secs"`
	Schedule               ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
}

// ScheduleConfig configures background report regeneration.
type ScheduleConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	IntervalMins int    `yaml:"interval_mins" mapstructure:"interval_mins"`
	WebhookURL   string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERACITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("store.driver", "jsonl")
	v.SetDefault("store.dir", "logs")
	v.SetDefault("store.predictions_file", "predictions.jsonl")
	v.SetDefault("store.critical_cases_file", "critical_cases.jsonl")
	v.SetDefault("store.database_url", "logs/veracity.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("classifier.provider", "http")
	v.SetDefault("classifier.base_url", "http://127.0.0.1:9000")
	v.SetDefault("classifier.timeout_secs", 10)
	v.SetDefault("classifier.max_attempts", 3)
	v.SetDefault("classifier.circuit_failure_threshold", 5)
	v.SetDefault("classifier.circuit_reset_secs", 30)
	v.SetDefault("classifier.anthropic_key", "")
	v.SetDefault("classifier.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("classifier.metadata_path", "model_metadata.json")
	v.SetDefault("report.dir", "monthly_reports")
	v.SetDefault("report.drift_mode", "calendar_month")
	v.SetDefault("report.low_confidence_threshold", 0.55)
	v.SetDefault("report.high_latency_secs", 1.2)
	v.SetDefault("report.fake_spike_multiplier", 1.5)
	v.SetDefault("report.latency_anomaly_secs", 1.5)
	v.SetDefault("report.schedule.enabled", false)
	v.SetDefault("report.schedule.interval_mins", 60)
	v.SetDefault("report.schedule.webhook_url", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings required by the given mode: "serve", "predict"
// or "report".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		problems = append(problems, c.classifierProblems()...)
	case "predict":
		problems = append(problems, c.classifierProblems()...)
	case "report":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if !slices.Contains([]string{"jsonl", "sqlite", "postgres"}, c.Store.Driver) {
		problems = append(problems, "store.driver must be jsonl, sqlite or postgres")
	}
	if c.Store.Driver == "postgres" &&
		!strings.HasPrefix(c.Store.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.Store.DatabaseURL, "postgresql://") {
		problems = append(problems, "store.database_url must be a postgres:// URL for the postgres driver")
	}
	if !slices.Contains([]string{"calendar_month", "year_month"}, c.Report.DriftMode) {
		problems = append(problems, "report.drift_mode must be calendar_month or year_month")
	}
	if c.Report.LowConfidenceThreshold < 0 || c.Report.LowConfidenceThreshold > 1 {
		problems = append(problems, "report.low_confidence_threshold must be within [0, 1]")
	}
	if c.Report.HighLatencySecs <= 0 || c.Report.LatencyAnomalySecs <= 0 {
		problems = append(problems, "report latency thresholds must be > 0")
	}
	if c.Report.FakeSpikeMultiplier <= 0 {
		problems = append(problems, "report.fake_spike_multiplier must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) classifierProblems() []string {
	var problems []string
	switch c.Classifier.Provider {
	case "http":
		if c.Classifier.BaseURL == "" {
			problems = append(problems, "classifier.base_url is required for the http provider")
		}
	case "anthropic":
		if c.Classifier.AnthropicKey == "" {
			problems = append(problems, "classifier.anthropic_key is required for the anthropic provider (VERACITY_CLASSIFIER_ANTHROPIC_KEY)")
		}
	default:
		problems = append(problems, "classifier.provider must be http or anthropic")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
