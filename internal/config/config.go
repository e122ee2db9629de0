// Package config 加载并校验主配置文件。
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tradesim/internal/market"
)

// 默认值常量
const (
	defaultLogLevel      = "info"
	defaultLogPath       = "data/logs/tradesim.log"
	defaultQuotesDB      = "data/db/quotes.db"
	defaultResultsDB     = "data/db/runs.db"
	defaultProfilesPath  = "configs/profiles.yaml"
	defaultServerAddr    = ":9985"
	defaultInitialEquity = 1_000_000
	defaultCommission    = 0.002
	defaultStampTax      = 0.001
	defaultMaxConcurrent = 2
)

type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Broker   BrokerConfig   `mapstructure:"broker" yaml:"broker"`
	Backtest BacktestConfig `mapstructure:"backtest" yaml:"backtest"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogPath  string `mapstructure:"log_path" yaml:"log_path"`
}

type DataConfig struct {
	QuotesDB  string `mapstructure:"quotes_db" yaml:"quotes_db"`
	ResultsDB string `mapstructure:"results_db" yaml:"results_db"`
	// ImportJSON 非空时启动前先导入该 JSON 行情文件。
	ImportJSON string `mapstructure:"import_json" yaml:"import_json,omitempty"`
}

type BrokerConfig struct {
	InitialEquity float64 `mapstructure:"initial_equity" yaml:"initial_equity"`
	Commission    float64 `mapstructure:"commission" yaml:"commission"`
	StampTax      float64 `mapstructure:"stamp_tax" yaml:"stamp_tax"`
	PricePolicy   string  `mapstructure:"price_policy" yaml:"price_policy"`
	ShortAllowed  bool    `mapstructure:"short_allowed" yaml:"short_allowed"`
}

type BacktestConfig struct {
	Start        string `mapstructure:"start" yaml:"start"`
	End          string `mapstructure:"end" yaml:"end"`
	ProfilesPath string `mapstructure:"profiles_path" yaml:"profiles_path"`
	// Profiles 一次性模式下要跑的 profile 名单；为空表示全部。
	Profiles      []string `mapstructure:"profiles" yaml:"profiles,omitempty"`
	MaxConcurrent int      `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config 路径不能为空")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败 (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultLogLevel
	}
	if c.App.LogPath == "" {
		c.App.LogPath = defaultLogPath
	}
	if c.Data.QuotesDB == "" {
		c.Data.QuotesDB = defaultQuotesDB
	}
	if c.Data.ResultsDB == "" {
		c.Data.ResultsDB = defaultResultsDB
	}
	if c.Broker.InitialEquity <= 0 {
		c.Broker.InitialEquity = defaultInitialEquity
	}
	if c.Broker.Commission == 0 {
		c.Broker.Commission = defaultCommission
	}
	if c.Broker.StampTax == 0 {
		c.Broker.StampTax = defaultStampTax
	}
	if c.Broker.PricePolicy == "" {
		c.Broker.PricePolicy = string(market.PolicyClose)
	}
	if c.Backtest.ProfilesPath == "" {
		c.Backtest.ProfilesPath = defaultProfilesPath
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
}

func (c *Config) validate() error {
	if c.Broker.Commission < 0 {
		return fmt.Errorf("broker.commission 不能为负: %v", c.Broker.Commission)
	}
	if c.Broker.StampTax < 0 {
		return fmt.Errorf("broker.stamp_tax 不能为负: %v", c.Broker.StampTax)
	}
	if _, err := market.ParsePricePolicy(c.Broker.PricePolicy); err != nil {
		return fmt.Errorf("broker.price_policy 非法: %w", err)
	}
	if c.Backtest.Start != "" && c.Backtest.End != "" && c.Backtest.Start > c.Backtest.End {
		return fmt.Errorf("backtest.start 晚于 end: %s > %s", c.Backtest.Start, c.Backtest.End)
	}
	return nil
}

// WriteDefault 在路径不存在时写出一份带默认值的配置文件。
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	cfg := Config{}
	cfg.applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
