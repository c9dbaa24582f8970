package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Exchanges  map[string]ExchangeConfig `mapstructure:"exchanges"`
	Executor   ExecutorConfig            `mapstructure:"executor"`
	Queue      QueueConfig               `mapstructure:"queue"`
	Reconciler ReconcilerConfig          `mapstructure:"reconciler"`
	FillStream FillStreamConfig          `mapstructure:"fill_stream"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Reconcile    string `mapstructure:"reconcile"`
	PendingRetry string `mapstructure:"pending_retry"`
}

// ExchangeConfig carries one exchange's operating limits. Open-order caps
// differ per exchange (200 on some venues, 500 on others) and are config,
// not constants in the queue manager.
type ExchangeConfig struct {
	OpenOrderCap int                         `mapstructure:"open_order_cap"`
	RateLimits   map[string]RateBudgetConfig `mapstructure:"rate_limits"`
	Symbols      map[string]SymbolRuleConfig `mapstructure:"symbols"`
	DryRun       bool                        `mapstructure:"dry_run"`
}

// RateBudgetConfig is one endpoint class budget: sustained requests per
// second plus a burst allowance.
type RateBudgetConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// SymbolRuleConfig is the exchange-published precision rule for one symbol.
type SymbolRuleConfig struct {
	QuantityPrecision int     `mapstructure:"quantity_precision"`
	MinNotional       float64 `mapstructure:"min_notional"`
}

type ExecutorConfig struct {
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type QueueConfig struct {
	MaxSubmitAttempts int `mapstructure:"max_submit_attempts"`
}

type ReconcilerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type FillStreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.reconcile", "@every 30s")
	v.SetDefault("cron.pending_retry", "@every 10s")

	v.SetDefault("executor.pool_size", 8)
	v.SetDefault("executor.timeout", "30s")
	v.SetDefault("queue.max_submit_attempts", 3)
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("fill_stream.enabled", false)
	v.SetDefault("fill_stream.url", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
