package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Broker  BrokerConfig
	Trading TradingConfig
	Runtime RuntimeConfig
	Metrics MetricsConfig
}

type BrokerConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Mobile         string
	Password       string
	TOTPSecret     string
	Environment    string
	DemoMode       bool
}

type TradingConfig struct {
	ExchangeSegment string
	Product         string
	Validity        string
	PollInterval    time.Duration
	SettleDelay     time.Duration
}

type RuntimeConfig struct {
	Log LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type MetricsConfig struct {
	ListenAddr string
}

func Load() (*Config, error) {

	cfg := &Config{}
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.ReadInConfig()

	cfg.Broker = BrokerConfig{
		BaseURL:        viper.GetString("broker.base_url"),
		ConsumerKey:    envSub("broker.consumer_key"),
		ConsumerSecret: envSub("broker.consumer_secret"),
		Mobile:         envSub("broker.mobile"),
		Password:       envSub("broker.password"),
		TOTPSecret:     envSub("broker.totp_secret"),
		Environment:    viper.GetString("broker.environment"),
		DemoMode:       viper.GetBool("broker.demo_mode"),
	}

	cfg.Trading = TradingConfig{
		ExchangeSegment: viper.GetString("trading.exchange_segment"),
		Product:         viper.GetString("trading.product"),
		Validity:        viper.GetString("trading.validity"),
		PollInterval:    viper.GetDuration("trading.poll_interval"),
		SettleDelay:     viper.GetDuration("trading.settle_delay"),
	}

	cfg.Runtime = RuntimeConfig{
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	cfg.Metrics = MetricsConfig{
		ListenAddr: viper.GetString("metrics.listen_addr"),
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.ExchangeSegment == "" {
		c.Trading.ExchangeSegment = "nse_cm"
	}
	if c.Trading.Product == "" {
		c.Trading.Product = "CNC"
	}
	if c.Trading.Validity == "" {
		c.Trading.Validity = "DAY"
	}
	if c.Trading.PollInterval <= 0 {
		c.Trading.PollInterval = 1 * time.Second
	}
	if c.Trading.SettleDelay <= 0 {
		c.Trading.SettleDelay = 500 * time.Millisecond
	}
	if c.Broker.Environment == "" {
		c.Broker.Environment = "prod"
	}
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
