package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "sniper"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.Sniper.Mode = Mode(strings.ToLower(strings.TrimSpace(string(cfg.Sniper.Mode))))
	cfg.Sniper.TokenIDs = trimAll(cfg.Sniper.TokenIDs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("marketplace.base_url", "https://api.prod.pallet.exchange")
	v.SetDefault("marketplace.collection", "")
	v.SetDefault("marketplace.contract", "sei152u2u0lqc27428cuf8dx48k8saua74m6nql5kgvsu4rfeqm547rsnhy4y9")
	v.SetDefault("marketplace.denom", "usei")
	v.SetDefault("marketplace.page_size", 25)
	v.SetDefault("marketplace.timeout", "10s")
	v.SetDefault("marketplace.rate_limit", 5)

	v.SetDefault("sniper.mode", "explicit")
	v.SetDefault("sniper.token_ids", []string{})
	v.SetDefault("sniper.desired_traits", []Trait{})
	v.SetDefault("sniper.price_limit", 0)
	v.SetDefault("sniper.buy_limit", 0)
	v.SetDefault("sniper.poll_interval", "2s")
	v.SetDefault("sniper.fee_rate", DefaultFeeRate)
	v.SetDefault("sniper.resume_bought", false)
	v.SetDefault("sniper.reconcile_batch_fills", false)

	v.SetDefault("execution.client", "simulated")
	v.SetDefault("execution.relay_url", "")
	v.SetDefault("execution.memo", "sniper")
	v.SetDefault("execution.timeout", "0s")
	v.SetDefault("execution.simulated_failure_rate", 0)

	v.SetDefault("wallets", []WalletConfig{})

	v.SetDefault("database.path", "data/sniper.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToTraitsHookFunc(),
			stringToWalletsHookFunc(),
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// secondsToDurationHookFunc 将不带单位的数字按秒解析为时长，
// 例如 SNIPER_SNIPER_POLL_INTERVAL=2 等价于 2s。
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != durationType || f == durationType {
			return data, nil
		}
		var secs float64
		switch f.Kind() {
		case reflect.String:
			v, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
			if err != nil {
				return data, nil
			}
			secs = v
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			secs = reflect.ValueOf(data).Convert(reflect.TypeOf(float64(0))).Float()
		default:
			return data, nil
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// stringToTraitsHookFunc 支持以 JSON 字符串配置特征，例如环境变量
// SNIPER_SNIPER_DESIRED_TRAITS='[{"type":"Hat","value":"Crown"}]'。
func stringToTraitsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf([]Trait{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []Trait{}, nil
		}
		var traits []Trait
		if err := json.Unmarshal([]byte(raw), &traits); err != nil {
			return nil, fmt.Errorf("解析 desired_traits 失败: %w", err)
		}
		return traits, nil
	}
}

// stringToWalletsHookFunc 支持以逗号分隔的地址列表配置钱包。
func stringToWalletsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf([]WalletConfig{}) {
			return data, nil
		}
		wallets := make([]WalletConfig, 0)
		for _, addr := range strings.Split(data.(string), ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				wallets = append(wallets, WalletConfig{Address: addr})
			}
		}
		return wallets, nil
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
