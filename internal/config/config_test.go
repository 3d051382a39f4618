package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.pulsechain.com", cfg.Ethereum.RPCURL)
	assert.Equal(t, 10*time.Second, cfg.Ethereum.RequestTimeout)
	assert.Equal(t, "pDAI", cfg.Contracts.Stablecoin.Symbol)
	assert.Equal(t, "0x6B175474E89094C44Da98b954EedeAC495271d0F", cfg.Contracts.Stablecoin.Address)
	assert.Len(t, cfg.Ilks, 19)
	assert.Equal(t, "ETH-A", cfg.Ilks[0].Name)

	assert.Equal(t, time.Hour, cfg.Supply.Window)
	assert.Equal(t, 1e-4, cfg.Supply.Epsilon)

	assert.Equal(t, uint64(200), cfg.Auctions.MaxID)
	assert.Equal(t, 10, cfg.Auctions.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Auctions.InterBatchDelay)
	assert.Equal(t, 50, cfg.DebtAuctions.BatchSize)

	assert.Equal(t, 30*time.Second, cfg.Jobs.Auctions.Interval)
	assert.Equal(t, 5*time.Second, cfg.Jobs.Stats.RetryInterval)
	assert.Equal(t, common.HexToAddress(cfg.Contracts.Vow), cfg.DebtAuctionHouse())
}

func TestLoadMissingExplicitFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
ethereum:
  rpc_url: http://localhost:8545
contracts:
  flop: "0x00000000000000000000000000000000000000f1"
ilks:
  - name: WBTC-A
    clipper: "0x0227b54AdbFAEec5f1eD1dFa11f54dcff9076e2C"
  - name: ETH-A
    clipper: "0xc67963a226eddd77B91aD8c421630A1b0AdFF270"
jobs:
  stats:
    interval: 2m
    retry_max_interval: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("MAKERWATCH_SUPPLY_WINDOW", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Ethereum.RPCURL)
	assert.Equal(t, 30*time.Minute, cfg.Supply.Window)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.Stats.Interval)
	assert.Equal(t, time.Minute, cfg.Jobs.Stats.RetryMaxInterval)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000f1"), cfg.DebtAuctionHouse())

	clippers := cfg.Clippers()
	require.Len(t, clippers, 2)
	assert.Equal(t, "WBTC-A", clippers[0].Label)
	assert.Equal(t, int32(8), clippers[0].Decimals)
	assert.Equal(t, "WBTC", clippers[0].Unit)
	assert.Equal(t, int32(18), clippers[1].Decimals)
	assert.Equal(t, "PLS", clippers[1].Unit)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(c *Config){
		"bad vow":            func(c *Config) { c.Contracts.Vow = "0x1234" },
		"bad clipper":        func(c *Config) { c.Ilks[3].Clipper = "nope" },
		"duplicate ilk":      func(c *Config) { c.Ilks[1].Name = c.Ilks[0].Name },
		"no ilks":            func(c *Config) { c.Ilks = nil },
		"zero window":        func(c *Config) { c.Supply.Window = 0 },
		"zero batch":         func(c *Config) { c.DebtAuctions.BatchSize = 0 },
		"zero job interval":  func(c *Config) { c.Jobs.Supply.Interval = 0 },
		"zero retry":         func(c *Config) { c.Jobs.Auctions.RetryInterval = 0 },
		"telegram sans chat": func(c *Config) { c.Alerting.Telegram = TelegramConfig{Enabled: true, BotToken: "x"} },
		"redis sans channel": func(c *Config) { c.Redis = RedisConfig{Enabled: true, Addr: "localhost:6379"} },
		"empty rpc":          func(c *Config) { c.Ethereum.RPCURL = "" },
		"negative decimals":  func(c *Config) { c.Contracts.Governance.Decimals = -1 },
		"oversized scaling":  func(c *Config) { c.Scaling.Rules[0].Decimals = 80 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			require.NoError(t, cfg.Validate())
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestClippersKeepZeroDecimalFallback(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Scaling.Rules = nil
	cfg.Scaling.DefaultDecimals = 0
	require.NoError(t, cfg.Validate())

	for _, src := range cfg.Clippers() {
		assert.Equal(t, int32(0), src.Decimals, src.Label)
	}
}
