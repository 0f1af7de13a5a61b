package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Mode 表示抢购策略模式。
type Mode string

const (
	// ModeExplicit 按指定 token id 抢购。
	ModeExplicit Mode = "explicit"
	// ModeSweep 按特征扫货，一笔交易批量购买。
	ModeSweep Mode = "sweep"
	// ModeAuto 按特征扫货，逐个提交购买。
	ModeAuto Mode = "auto"
)

// DefaultFeeRate 为市场手续费加价比例。
const DefaultFeeRate = 0.02

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Sniper      SniperConfig      `mapstructure:"sniper"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Wallets     []WalletConfig    `mapstructure:"wallets"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// MarketplaceConfig 描述挂单查询接口与合约信息。
type MarketplaceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Collection string        `mapstructure:"collection"` // NFT 合约地址
	Contract   string        `mapstructure:"contract"`   // 市场合约地址
	Denom      string        `mapstructure:"denom"`
	PageSize   int           `mapstructure:"page_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // 每秒请求数
}

// Trait 表示一个期望特征。
type Trait struct {
	Type  string `mapstructure:"type" json:"type"`
	Value string `mapstructure:"value" json:"value"`
}

// SniperConfig 管理抢购策略参数。
type SniperConfig struct {
	Mode                Mode          `mapstructure:"mode"`
	TokenIDs            []string      `mapstructure:"token_ids"`
	DesiredTraits       []Trait       `mapstructure:"desired_traits"`
	PriceLimit          float64       `mapstructure:"price_limit"`
	BuyLimit            int           `mapstructure:"buy_limit"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	FeeRate             float64       `mapstructure:"fee_rate"`
	ResumeBought        bool          `mapstructure:"resume_bought"`
	ReconcileBatchFills bool          `mapstructure:"reconcile_batch_fills"`
}

// ExecutionConfig 控制交易提交方式。
type ExecutionConfig struct {
	Client               string        `mapstructure:"client"` // relay | simulated
	RelayURL             string        `mapstructure:"relay_url"`
	Memo                 string        `mapstructure:"memo"`
	Timeout              time.Duration `mapstructure:"timeout"`
	SimulatedFailureRate float64       `mapstructure:"simulated_failure_rate"`
}

// WalletConfig 描述单个钱包会话。
type WalletConfig struct {
	Address      string        `mapstructure:"address"`
	PollInterval time.Duration `mapstructure:"poll_interval"` // 为 0 时使用 sniper.poll_interval
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口，Port 为 0 时不启动。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// ConfigurationError 表示单个钱包配置无效，该钱包不会被调度。
type ConfigurationError struct {
	Wallet string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("钱包 %q 配置无效: %s", e.Wallet, e.Reason)
}

// Budget 返回有效的购买上限，explicit 模式未设置时等于目标数量。
func (s SniperConfig) Budget() int {
	if s.BuyLimit <= 0 && s.Mode == ModeExplicit {
		return len(s.TokenIDs)
	}
	return s.BuyLimit
}

// Interval 返回该钱包的轮询周期。
func (w WalletConfig) Interval(fallback time.Duration) time.Duration {
	if w.PollInterval > 0 {
		return w.PollInterval
	}
	return fallback
}

// Check 校验单个钱包配置。
func (w WalletConfig) Check(fallback time.Duration) error {
	if strings.TrimSpace(w.Address) == "" {
		return &ConfigurationError{Wallet: w.Address, Reason: "address 不能为空"}
	}
	if w.PollInterval < 0 {
		return &ConfigurationError{Wallet: w.Address, Reason: "poll_interval 不能为负"}
	}
	if w.Interval(fallback) <= 0 {
		return &ConfigurationError{Wallet: w.Address, Reason: "轮询周期必须大于0"}
	}
	return nil
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Marketplace.BaseURL == "" {
		err = multierr.Append(err, errors.New("marketplace.base_url 不能为空"))
	}
	if c.Marketplace.Collection == "" {
		err = multierr.Append(err, errors.New("marketplace.collection 不能为空"))
	}
	if c.Marketplace.Contract == "" {
		err = multierr.Append(err, errors.New("marketplace.contract 不能为空"))
	}
	if c.Marketplace.Denom == "" {
		err = multierr.Append(err, errors.New("marketplace.denom 不能为空"))
	}
	if c.Marketplace.PageSize <= 0 || c.Marketplace.PageSize > 100 {
		err = multierr.Append(err, errors.New("marketplace.page_size 必须位于(0,100]"))
	}
	if c.Marketplace.Timeout <= 0 {
		err = multierr.Append(err, errors.New("marketplace.timeout 必须大于0"))
	}
	if c.Marketplace.RateLimit < 0 {
		err = multierr.Append(err, errors.New("marketplace.rate_limit 不能为负"))
	}

	switch c.Sniper.Mode {
	case ModeExplicit:
		if len(c.Sniper.TokenIDs) == 0 {
			err = multierr.Append(err, errors.New("explicit 模式需要配置 sniper.token_ids"))
		}
	case ModeSweep, ModeAuto:
		if c.Sniper.PriceLimit <= 0 {
			err = multierr.Append(err, errors.New("扫货模式需要配置 sniper.price_limit"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("sniper.mode %q 无效，可选 explicit/sweep/auto", c.Sniper.Mode))
	}
	if c.Sniper.BuyLimit < 0 {
		err = multierr.Append(err, errors.New("sniper.buy_limit 不能为负"))
	}
	if c.Sniper.Mode != ModeExplicit && c.Sniper.BuyLimit <= 0 {
		err = multierr.Append(err, errors.New("扫货模式需要 sniper.buy_limit 大于0"))
	}
	if c.Sniper.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("sniper.poll_interval 必须大于0"))
	}
	if c.Sniper.FeeRate < 0 || c.Sniper.FeeRate > 0.2 {
		err = multierr.Append(err, errors.New("sniper.fee_rate 应位于[0,0.2]"))
	}

	switch strings.ToLower(c.Execution.Client) {
	case "relay":
		if c.Execution.RelayURL == "" {
			err = multierr.Append(err, errors.New("relay 模式需要配置 execution.relay_url"))
		}
	case "simulated":
		if c.Execution.SimulatedFailureRate < 0 || c.Execution.SimulatedFailureRate > 1 {
			err = multierr.Append(err, errors.New("execution.simulated_failure_rate 必须位于[0,1]"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("execution.client %q 无效，可选 relay/simulated", c.Execution.Client))
	}
	if c.Execution.Timeout < 0 {
		err = multierr.Append(err, errors.New("execution.timeout 不能为负"))
	}

	if len(c.Wallets) == 0 {
		err = multierr.Append(err, errors.New("wallets 至少包含一个钱包"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
