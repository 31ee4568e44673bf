package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Registry    RegistryConfig   `mapstructure:"registry"`
	Classifier  ClassifierConfig `mapstructure:"classifier"`
	Features    FeaturesConfig   `mapstructure:"features"`
	Detection   DetectionConfig  `mapstructure:"detection"`
	Analysis    AnalysisConfig   `mapstructure:"analysis"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RegistryConfig controls the suspicious-wallet registry.
type RegistryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	TTLHours int    `mapstructure:"ttl_hours"`
	Prefix   string `mapstructure:"prefix"`
}

// ClassifierConfig points at the external model-serving sidecar.
type ClassifierConfig struct {
	ServiceURL string  `mapstructure:"service_url"`
	Timeout    int     `mapstructure:"timeout"`
	Threshold  float64 `mapstructure:"threshold"`
}

// FeaturesConfig locates the deployment feature schema artifact.
type FeaturesConfig struct {
	SchemaPath     string `mapstructure:"schema_path"`
	MidPriceWindow int    `mapstructure:"mid_price_window"`
}

// DetectionConfig holds the tunable parameters of the heuristic rules.
// The windows and tolerances are deployment parameters; defaults are
// deliberately conservative.
type DetectionConfig struct {
	SpoofingWindowSeconds int         `mapstructure:"spoofing_window_seconds"`
	SpoofingTolerance     float64     `mapstructure:"spoofing_tolerance"`
	LoopWindowSeconds     int         `mapstructure:"loop_window_seconds"`
	MaxLoopLength         int         `mapstructure:"max_loop_length"`
	RepeatedPairThreshold int         `mapstructure:"repeated_pair_threshold"`
	Rules                 RuleToggles `mapstructure:"rules"`
}

// RuleToggles enables or disables individual heuristic rules.
type RuleToggles struct {
	SelfTrade    bool `mapstructure:"self_trade"`
	Spoofing     bool `mapstructure:"spoofing"`
	TradeLoop    bool `mapstructure:"trade_loop"`
	RepeatedPair bool `mapstructure:"repeated_pair"`
}

type AnalysisConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// SpoofingWindow returns the spoofing window as a duration.
func (d DetectionConfig) SpoofingWindow() time.Duration {
	return time.Duration(d.SpoofingWindowSeconds) * time.Second
}

// LoopWindow returns the loop-detection window as a duration.
func (d DetectionConfig) LoopWindow() time.Duration {
	return time.Duration(d.LoopWindowSeconds) * time.Second
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(cfg *Config) error {
	if cfg.Classifier.Threshold < 0 || cfg.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier threshold must be in [0,1], got %f", cfg.Classifier.Threshold)
	}
	if cfg.Detection.MaxLoopLength < 2 {
		return fmt.Errorf("max loop length must be at least 2, got %d", cfg.Detection.MaxLoopLength)
	}
	if cfg.Detection.SpoofingTolerance <= 0 || cfg.Detection.SpoofingTolerance >= 1 {
		return fmt.Errorf("spoofing tolerance must be in (0,1), got %f", cfg.Detection.SpoofingTolerance)
	}
	if cfg.Analysis.MaxWorkers < 1 {
		return fmt.Errorf("analysis max_workers must be positive, got %d", cfg.Analysis.MaxWorkers)
	}
	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Suspicious-wallet registry
	viper.SetDefault("registry.enabled", true)
	viper.SetDefault("registry.ttl_hours", 72)
	viper.SetDefault("registry.prefix", "wash_wallets:")

	// Classifier sidecar
	viper.SetDefault("classifier.service_url", "http://localhost:3002")
	viper.SetDefault("classifier.timeout", 30)
	viper.SetDefault("classifier.threshold", 0.5)

	// Feature schema
	viper.SetDefault("features.schema_path", "./configs/model_features.json")
	viper.SetDefault("features.mid_price_window", 20)

	// Detection parameters
	viper.SetDefault("detection.spoofing_window_seconds", 300)
	viper.SetDefault("detection.spoofing_tolerance", 0.05)
	viper.SetDefault("detection.loop_window_seconds", 600)
	viper.SetDefault("detection.max_loop_length", 5)
	viper.SetDefault("detection.repeated_pair_threshold", 5)
	viper.SetDefault("detection.rules.self_trade", true)
	viper.SetDefault("detection.rules.spoofing", true)
	viper.SetDefault("detection.rules.trade_loop", true)
	viper.SetDefault("detection.rules.repeated_pair", true)

	// Analysis
	viper.SetDefault("analysis.max_workers", 8)
}
