package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"makerwatch/internal/logging"
	"makerwatch/internal/model"
)

// maxDecimals bounds fixed-point precision to what a uint256 can carry.
const maxDecimals = 77

// Config materialises application configuration.
type Config struct {
	App          AppConfig       `mapstructure:"app"`
	Logging      logging.Config  `mapstructure:"logging"`
	Ethereum     EthereumConfig  `mapstructure:"ethereum"`
	Contracts    ContractsConfig `mapstructure:"contracts"`
	Ilks         []IlkConfig     `mapstructure:"ilks"`
	Scaling      ScalingConfig   `mapstructure:"scaling"`
	Supply       SupplyConfig    `mapstructure:"supply"`
	Auctions     ScanConfig      `mapstructure:"auctions"`
	DebtAuctions ScanConfig      `mapstructure:"debt_auctions"`
	Jobs         JobsConfig      `mapstructure:"jobs"`
	HTTP         HTTPConfig      `mapstructure:"http"`
	Alerting     AlertingConfig  `mapstructure:"alerting"`
	Redis        RedisConfig     `mapstructure:"redis"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxConnsPerHost   int           `mapstructure:"max_conns_per_host"`
}

// ContractsConfig lists the deployment addresses.
type ContractsConfig struct {
	Stablecoin TokenConfig `mapstructure:"stablecoin"`
	Governance TokenConfig `mapstructure:"governance"`
	Vow        string      `mapstructure:"vow"`
	Flop       string      `mapstructure:"flop"`
}

// TokenConfig is an ERC20 whose supply is tracked.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// IlkConfig is one collateral type and its clipper.
type IlkConfig struct {
	Name    string `mapstructure:"name"`
	Clipper string `mapstructure:"clipper"`
}

// ScalingConfig assigns lot precision per ilk.
type ScalingConfig struct {
	Rules           []model.ScalingRule `mapstructure:"rules"`
	DefaultDecimals int32               `mapstructure:"default_decimals"`
	DefaultUnit     string              `mapstructure:"default_unit"`
}

// SupplyConfig tunes the supply trackers.
type SupplyConfig struct {
	Window  time.Duration `mapstructure:"window"`
	Epsilon float64       `mapstructure:"epsilon"`
}

// ScanConfig tunes one sparse record scan.
type ScanConfig struct {
	MaxID           uint64        `mapstructure:"max_id"`
	BatchSize       int           `mapstructure:"batch_size"`
	InterBatchDelay time.Duration `mapstructure:"inter_batch_delay"`
	MaxInFlight     int           `mapstructure:"max_in_flight"`
	ProbeRetries    int           `mapstructure:"probe_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// JobsConfig holds the cadence of every periodic job.
type JobsConfig struct {
	Supply       JobConfig `mapstructure:"supply"`
	Auctions     JobConfig `mapstructure:"auctions"`
	DebtAuctions JobConfig `mapstructure:"debt_auctions"`
	Stats        JobConfig `mapstructure:"stats"`
}

// JobConfig governs a job's cadence.
type JobConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	RetryMaxInterval time.Duration `mapstructure:"retry_max_interval"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
}

// HTTPConfig configures the read-side API.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled              bool           `mapstructure:"enabled"`
	SupplyDeltaThreshold float64        `mapstructure:"supply_delta_threshold"`
	NewAuctions          bool           `mapstructure:"new_auctions"`
	Cooldown             time.Duration  `mapstructure:"cooldown"`
	Telegram             TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig enables the pub/sub presenter.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// DefaultIlks is the collateral list of the PulseChain fork of the Maker deployment.
var DefaultIlks = []IlkConfig{
	{Name: "ETH-A", Clipper: "0xc67963a226eddd77B91aD8c421630A1b0AdFF270"},
	{Name: "ETH-B", Clipper: "0x71eb894330e8a4b96b8d6056962e7F116F50e06F"},
	{Name: "ETH-C", Clipper: "0xc2b12567523e3f3CBd9931492b91fe65b240bc47"},
	{Name: "WBTC-A", Clipper: "0x0227b54AdbFAEec5f1eD1dFa11f54dcff9076e2C"},
	{Name: "WBTC-B", Clipper: "0xe30663C6f83A06eDeE6273d72274AE24f1084a22"},
	{Name: "WBTC-C", Clipper: "0x39F29773Dcb94A32529d0612C6706C49622161D1"},
	{Name: "BAT-A", Clipper: "0x3D22e6f643e2F4c563fD9db22b229Cbb0Cd570fb"},
	{Name: "USDC-A", Clipper: "0x046b1A5718da6A226D912cFd306BA19980772908"},
	{Name: "USDC-B", Clipper: "0x5590F23358Fe17361d7E4E4F91219145D8cCfCb3"},
	{Name: "TUSD-A", Clipper: "0x0F6f88f8A4b918584E3539182793a0C276097f44"},
	{Name: "KNC-A", Clipper: "0x006Aa3eB5E666D8E006aa647D4afAB212555Ddea"},
	{Name: "ZRX-A", Clipper: "0xdc90d461E148552387f3aB3EBEE0Bdc58Aa16375"},
	{Name: "MANA-A", Clipper: "0xF5C8176E1eB0915359E46DEd16E52C071Bb435c0"},
	{Name: "PAXUSD-A", Clipper: "0xBCb396Cd139D1116BD89562B49b9D1d6c25378B0"},
	{Name: "COMP-A", Clipper: "0x2Bb690931407DCA7ecE84753EA931ffd304f0F38"},
	{Name: "LRC-A", Clipper: "0x81C5CDf4817DBf75C7F08B8A1cdaB05c9B3f70F7"},
	{Name: "LINK-A", Clipper: "0x832Dd5f17B30078a5E46Fdb8130A68cBc4a74dC0"},
	{Name: "BAL-A", Clipper: "0x6AAc067bb903E633A422dE7BE9355E62B3CE0378"},
	{Name: "YFI-A", Clipper: "0x9daCc11dcD0aa13386D295eAeeBBd38130897E6f"},
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MAKERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "makerwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ethereum.rpc_url", "https://rpc.pulsechain.com")
	v.SetDefault("ethereum.request_timeout", "10s")
	v.SetDefault("ethereum.requests_per_second", 0.0)
	v.SetDefault("ethereum.burst", 1)
	v.SetDefault("ethereum.max_conns_per_host", 64)

	v.SetDefault("contracts.stablecoin.symbol", "pDAI")
	v.SetDefault("contracts.stablecoin.address", "0x6B175474E89094C44Da98b954EedeAC495271d0F")
	v.SetDefault("contracts.stablecoin.decimals", 18)
	v.SetDefault("contracts.governance.symbol", "pMKR")
	v.SetDefault("contracts.governance.address", "0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	v.SetDefault("contracts.governance.decimals", 18)
	v.SetDefault("contracts.vow", "0xA950524441892A31ebddF91d3cEEFa04Bf454466")
	v.SetDefault("contracts.flop", "")

	v.SetDefault("ilks", ilkDefaults())

	v.SetDefault("scaling.rules", []map[string]any{
		{"match": "WBTC", "decimals": 8, "unit": "WBTC"},
		{"match": "USDC", "decimals": 6, "unit": "USDC"},
	})
	v.SetDefault("scaling.default_decimals", 18)
	v.SetDefault("scaling.default_unit", "PLS")

	v.SetDefault("supply.window", "1h")
	v.SetDefault("supply.epsilon", 1e-4)

	v.SetDefault("auctions.max_id", 200)
	v.SetDefault("auctions.batch_size", 10)
	v.SetDefault("auctions.inter_batch_delay", "100ms")
	v.SetDefault("auctions.max_in_flight", 0)
	v.SetDefault("auctions.probe_retries", 0)
	v.SetDefault("auctions.retry_delay", "250ms")

	v.SetDefault("debt_auctions.max_id", 200)
	v.SetDefault("debt_auctions.batch_size", 50)
	v.SetDefault("debt_auctions.inter_batch_delay", "0s")
	v.SetDefault("debt_auctions.max_in_flight", 0)
	v.SetDefault("debt_auctions.probe_retries", 0)
	v.SetDefault("debt_auctions.retry_delay", "250ms")

	v.SetDefault("jobs.supply.interval", "60s")
	v.SetDefault("jobs.supply.retry_interval", "5s")
	for _, job := range []string{"auctions", "debt_auctions", "stats"} {
		v.SetDefault("jobs."+job+".interval", "30s")
		v.SetDefault("jobs."+job+".retry_interval", "5s")
	}

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "5s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.supply_delta_threshold", 1000000.0)
	v.SetDefault("alerting.new_auctions", true)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "makerwatch.events")
}

func ilkDefaults() []map[string]any {
	out := make([]map[string]any, 0, len(DefaultIlks))
	for _, ilk := range DefaultIlks {
		out = append(out, map[string]any{"name": ilk.Name, "clipper": ilk.Clipper})
	}
	return out
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url must be configured")
	}
	if c.Ethereum.RequestTimeout <= 0 {
		return fmt.Errorf("ethereum.request_timeout must be greater than zero")
	}
	if c.Ethereum.RequestsPerSecond < 0 {
		return fmt.Errorf("ethereum.requests_per_second cannot be negative")
	}

	addresses := map[string]string{
		"contracts.stablecoin.address": c.Contracts.Stablecoin.Address,
		"contracts.governance.address": c.Contracts.Governance.Address,
		"contracts.vow":                c.Contracts.Vow,
	}
	if c.Contracts.Flop != "" {
		addresses["contracts.flop"] = c.Contracts.Flop
	}
	for key, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", key, addr)
		}
	}

	precisions := map[string]int32{
		"contracts.stablecoin.decimals": c.Contracts.Stablecoin.Decimals,
		"contracts.governance.decimals": c.Contracts.Governance.Decimals,
		"scaling.default_decimals":      c.Scaling.DefaultDecimals,
	}
	for i, rule := range c.Scaling.Rules {
		precisions[fmt.Sprintf("scaling.rules[%d].decimals", i)] = rule.Decimals
	}
	for key, d := range precisions {
		if d < 0 || d > maxDecimals {
			return fmt.Errorf("%s must be between 0 and %d, got %d", key, maxDecimals, d)
		}
	}

	if len(c.Ilks) == 0 {
		return fmt.Errorf("at least one ilk must be configured")
	}
	seen := make(map[string]struct{}, len(c.Ilks))
	for i, ilk := range c.Ilks {
		if ilk.Name == "" {
			return fmt.Errorf("ilks[%d].name must be set", i)
		}
		if _, dup := seen[ilk.Name]; dup {
			return fmt.Errorf("ilk %s configured twice", ilk.Name)
		}
		seen[ilk.Name] = struct{}{}
		if !common.IsHexAddress(ilk.Clipper) {
			return fmt.Errorf("ilk %s clipper is not a valid address: %q", ilk.Name, ilk.Clipper)
		}
	}

	if c.Supply.Window <= 0 {
		return fmt.Errorf("supply.window must be greater than zero")
	}
	if c.Supply.Epsilon < 0 {
		return fmt.Errorf("supply.epsilon cannot be negative")
	}

	for name, scan := range map[string]ScanConfig{"auctions": c.Auctions, "debt_auctions": c.DebtAuctions} {
		if scan.BatchSize <= 0 {
			return fmt.Errorf("%s.batch_size must be greater than zero", name)
		}
		if scan.InterBatchDelay < 0 {
			return fmt.Errorf("%s.inter_batch_delay cannot be negative", name)
		}
		if scan.ProbeRetries < 0 {
			return fmt.Errorf("%s.probe_retries cannot be negative", name)
		}
	}

	jobs := map[string]JobConfig{
		"supply":        c.Jobs.Supply,
		"auctions":      c.Jobs.Auctions,
		"debt_auctions": c.Jobs.DebtAuctions,
		"stats":         c.Jobs.Stats,
	}
	for name, job := range jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("jobs.%s.interval must be greater than zero", name)
		}
		if job.RetryInterval <= 0 {
			return fmt.Errorf("jobs.%s.retry_interval must be greater than zero", name)
		}
	}

	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http.listen_addr must be set when http is enabled")
	}
	if c.Alerting.SupplyDeltaThreshold < 0 {
		return fmt.Errorf("alerting.supply_delta_threshold cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Redis.Enabled && (c.Redis.Addr == "" || c.Redis.Channel == "") {
		return fmt.Errorf("redis.addr and redis.channel must be set when redis is enabled")
	}
	return nil
}

// DebtAuctionHouse returns the contract exposing bids(id): the flop when set, otherwise the vow.
func (c *Config) DebtAuctionHouse() common.Address {
	if c.Contracts.Flop != "" {
		return common.HexToAddress(c.Contracts.Flop)
	}
	return common.HexToAddress(c.Contracts.Vow)
}

// Clippers resolves every ilk into a scan source with its lot precision.
func (c *Config) Clippers() []model.RecordSource {
	fallback := model.ScalingRule{Decimals: c.Scaling.DefaultDecimals, Unit: c.Scaling.DefaultUnit}
	out := make([]model.RecordSource, 0, len(c.Ilks))
	for _, ilk := range c.Ilks {
		decimals, unit := model.ResolveScaling(ilk.Name, c.Scaling.Rules, fallback)
		out = append(out, model.RecordSource{
			Label:    ilk.Name,
			Address:  common.HexToAddress(ilk.Clipper),
			Decimals: decimals,
			Unit:     unit,
		})
	}
	return out
}
