package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config riskd 全局配置
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Venue   VenueConfig   `yaml:"venue"`
	Risk    RiskConfig    `yaml:"risk"`
	Sizer   SizerConfig   `yaml:"sizer"`
	Drift   DriftConfig   `yaml:"drift"`
	Console ConsoleConfig `yaml:"console"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`       // debug/info/warn/error
	OutputFile string `yaml:"output_file"` // 为空则只输出控制台
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	Backend     string `yaml:"backend"`      // "badger"（默认）或 "file"
	Dir         string `yaml:"dir"`          // 数据目录
	AuditDBPath string `yaml:"audit_db_path"` // 审计日志 SQLite 路径
}

// VenueConfig 交易所（只读持仓查询）配置
type VenueConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAddress    string `yaml:"user_address"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RiskConfig 风控闸门阈值
type RiskConfig struct {
	MaxDailyLossUsd        float64 `yaml:"max_daily_loss_usd"`
	MaxOpenPositions       int     `yaml:"max_open_positions"`
	MaxExposurePerMarketUsd float64 `yaml:"max_exposure_per_market_usd"`
	MinLiquidityScore      float64 `yaml:"min_liquidity_score"`
	MaxSpreadFraction      float64 `yaml:"max_spread_fraction"`
}

// SizerConfig 仓位计算配置
type SizerConfig struct {
	AbsoluteCapUsd     float64 `yaml:"absolute_cap_usd"`
	MinConfidence      float64 `yaml:"min_confidence"`
	SlippageBaseRate   float64 `yaml:"slippage_base_rate"`
	SlippageImpactCoef float64 `yaml:"slippage_impact_coef"`
	SlippageRefSizeUsd float64 `yaml:"slippage_ref_size_usd"`
	SlippageRefVolume  float64 `yaml:"slippage_ref_volume"`
}

// DriftConfig 模型漂移检测配置
type DriftConfig struct {
	CoefficientChangeThreshold float64 `yaml:"coefficient_change_threshold"`
	WeightChangeThreshold      float64 `yaml:"weight_change_threshold"`
	WeightFlipThreshold        float64 `yaml:"weight_flip_threshold"`
	AccuracyWindowSize         int     `yaml:"accuracy_window_size"`
	AccuracyFloor              float64 `yaml:"accuracy_floor"`
	AccuracyDropThreshold      float64 `yaml:"accuracy_drop_threshold"`
	ThrottleAfterDrifts        int     `yaml:"throttle_after_drifts"`
	ThrottleDurationMinutes    int     `yaml:"throttle_duration_minutes"`
}

// ConsoleConfig 操作台 HTTP 服务配置
type ConsoleConfig struct {
	Listen string `yaml:"listen"` // 例如 ":8090"；为空则不启动
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			OutputFile: "logs/riskcore.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Storage: StorageConfig{
			Backend:     "badger",
			Dir:         "data/risk",
			AuditDBPath: "data/audit.db",
		},
		Venue: VenueConfig{
			BaseURL:        "https://data-api.polymarket.com",
			TimeoutSeconds: 10,
		},
		Risk: RiskConfig{
			MaxDailyLossUsd:         100,
			MaxOpenPositions:        10,
			MaxExposurePerMarketUsd: 50,
			MinLiquidityScore:       0.3,
			MaxSpreadFraction:       0.05,
		},
		Sizer: SizerConfig{
			AbsoluteCapUsd:     25,
			MinConfidence:      0.55,
			SlippageBaseRate:   0.005,
			SlippageImpactCoef: 0.01,
			SlippageRefSizeUsd: 100,
			SlippageRefVolume:  1000,
		},
		Drift: DriftConfig{
			CoefficientChangeThreshold: 0.5,
			WeightChangeThreshold:      0.15,
			WeightFlipThreshold:        0.3,
			AccuracyWindowSize:         50,
			AccuracyFloor:              0.45,
			AccuracyDropThreshold:      0.15,
			ThrottleAfterDrifts:        3,
			ThrottleDurationMinutes:    30,
		},
		Console: ConsoleConfig{
			Listen: ":8090",
		},
	}
}

// Load 加载配置：默认值 <- 配置文件 <- 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			// 文件不存在时使用默认值（环境变量仍可覆盖）
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖（只覆盖最常用的运维项）
func (c *Config) applyEnv() {
	c.Log.Level = getEnv("RISKCORE_LOG_LEVEL", c.Log.Level)
	c.Storage.Backend = getEnv("RISKCORE_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Dir = getEnv("RISKCORE_STORAGE_DIR", c.Storage.Dir)
	c.Venue.BaseURL = getEnv("RISKCORE_VENUE_URL", c.Venue.BaseURL)
	c.Venue.UserAddress = getEnv("RISKCORE_VENUE_USER", c.Venue.UserAddress)
	c.Console.Listen = getEnv("RISKCORE_CONSOLE_LISTEN", c.Console.Listen)

	c.Risk.MaxDailyLossUsd = parseFloatEnv("RISKCORE_MAX_DAILY_LOSS_USD", c.Risk.MaxDailyLossUsd)
	c.Risk.MaxOpenPositions = parseIntEnv("RISKCORE_MAX_OPEN_POSITIONS", c.Risk.MaxOpenPositions)
	c.Risk.MaxExposurePerMarketUsd = parseFloatEnv("RISKCORE_MAX_EXPOSURE_PER_MARKET_USD", c.Risk.MaxExposurePerMarketUsd)
}

// Validate 校验配置（程序员错误快速失败）
func (c *Config) Validate() error {
	if c.Risk.MaxDailyLossUsd <= 0 {
		return fmt.Errorf("config: max_daily_loss_usd must be positive, got %v", c.Risk.MaxDailyLossUsd)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("config: max_open_positions must be positive, got %v", c.Risk.MaxOpenPositions)
	}
	if c.Risk.MaxExposurePerMarketUsd <= 0 {
		return fmt.Errorf("config: max_exposure_per_market_usd must be positive, got %v", c.Risk.MaxExposurePerMarketUsd)
	}
	if c.Risk.MinLiquidityScore <= 0 || c.Risk.MinLiquidityScore > 1 {
		return fmt.Errorf("config: min_liquidity_score must be in (0,1], got %v", c.Risk.MinLiquidityScore)
	}
	if c.Risk.MaxSpreadFraction <= 0 {
		return fmt.Errorf("config: max_spread_fraction must be positive, got %v", c.Risk.MaxSpreadFraction)
	}
	switch c.Storage.Backend {
	case "badger", "file":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Venue.TimeoutSeconds <= 0 {
		c.Venue.TimeoutSeconds = 10
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
