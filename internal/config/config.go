package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the explicit configuration record passed into the pipeline at
// invocation time. Nothing in the pipeline reads process-wide state.
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Indicators  IndicatorsConfig `mapstructure:"indicators"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	TTL     string `mapstructure:"ttl"`
}

// IndicatorsConfig holds the default indicator periods. Each one can be
// overridden per invocation through the request payload.
type IndicatorsConfig struct {
	EMAFastPeriod    int     `mapstructure:"ema_fast_period"`
	EMASlowPeriod    int     `mapstructure:"ema_slow_period"`
	MACDSignalPeriod int     `mapstructure:"macd_signal_period"`
	RSIPeriod        int     `mapstructure:"rsi_period"`
	BollingerPeriod  int     `mapstructure:"bollinger_period"`
	BollingerStd     float64 `mapstructure:"bollinger_std"`
}

// RiskConfig holds the risk-calculation defaults. AnnualizationFactor must
// match the bar interval in use; the default assumes daily bars.
type RiskConfig struct {
	Window              int     `mapstructure:"window"`
	AnnualizationFactor float64 `mapstructure:"annualization_factor"`
	VaRConfidence       float64 `mapstructure:"var_confidence"`
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
	TargetRiskPerTrade  float64 `mapstructure:"target_risk_per_trade"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CacheTTL parses the configured cache TTL, falling back to five minutes.
func (c *Config) CacheTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}

// Load reads configuration from ./configs/config.yaml (or the working
// directory), with environment variables overriding file values and built-in
// defaults backing both.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

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

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings that could never produce a valid pipeline run.
func (c *Config) Validate() error {
	ind := c.Indicators
	for name, period := range map[string]int{
		"ema_fast_period":    ind.EMAFastPeriod,
		"ema_slow_period":    ind.EMASlowPeriod,
		"macd_signal_period": ind.MACDSignalPeriod,
		"rsi_period":         ind.RSIPeriod,
		"bollinger_period":   ind.BollingerPeriod,
	} {
		if period < 1 {
			return fmt.Errorf("indicators.%s must be at least 1, got %d", name, period)
		}
	}
	if ind.EMAFastPeriod >= ind.EMASlowPeriod {
		return fmt.Errorf("indicators.ema_fast_period (%d) must be shorter than ema_slow_period (%d)",
			ind.EMAFastPeriod, ind.EMASlowPeriod)
	}
	if ind.BollingerStd < 0 {
		return fmt.Errorf("indicators.bollinger_std must be non-negative, got %v", ind.BollingerStd)
	}
	if c.Risk.Window < 2 {
		return fmt.Errorf("risk.window must be at least 2, got %d", c.Risk.Window)
	}
	if c.Risk.AnnualizationFactor <= 0 {
		return fmt.Errorf("risk.annualization_factor must be positive, got %v", c.Risk.AnnualizationFactor)
	}
	if c.Risk.VaRConfidence <= 0 || c.Risk.VaRConfidence >= 1 {
		return fmt.Errorf("risk.var_confidence must be in (0,1), got %v", c.Risk.VaRConfidence)
	}
	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be in (0,1], got %v", c.Risk.MaxPositionFraction)
	}
	if c.Risk.TargetRiskPerTrade <= 0 {
		return fmt.Errorf("risk.target_risk_per_trade must be positive, got %v", c.Risk.TargetRiskPerTrade)
	}
	if c.Cache.Enabled {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("cache.ttl is not a valid duration: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.ttl", "5m")

	viper.SetDefault("indicators.ema_fast_period", 12)
	viper.SetDefault("indicators.ema_slow_period", 26)
	viper.SetDefault("indicators.macd_signal_period", 9)
	viper.SetDefault("indicators.rsi_period", 14)
	viper.SetDefault("indicators.bollinger_period", 20)
	viper.SetDefault("indicators.bollinger_std", 2.0)

	viper.SetDefault("risk.window", 60)
	viper.SetDefault("risk.annualization_factor", math.Sqrt(252))
	viper.SetDefault("risk.var_confidence", 0.95)
	viper.SetDefault("risk.max_position_fraction", 0.10)
	viper.SetDefault("risk.target_risk_per_trade", 0.001)

	viper.SetDefault("telemetry.enabled", false)
}
