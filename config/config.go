package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/truthboard/internal/domain"
)

// GatewayEnv overrides the gateway endpoint from the config file.
const GatewayEnv = "TRUTHBOARD_GATEWAY"

const (
	defaultGateway         = "http://127.0.0.1:4943"
	defaultListen          = ":8080"
	defaultWALDir          = "./wal/balance"
	defaultRefreshInterval = time.Minute
	defaultHistorySize     = 100
	defaultDecimals        = 8
	defaultPrecision       = 4
)

// LedgerConfig describes one ledger canister.
type LedgerConfig struct {
	Name       string
	Kind       string
	CanisterID string
	Symbol     string
	Decimals   int32
	Precision  int32
}

// Config is the parsed application configuration.
type Config struct {
	Gateway          string
	Listen           string
	WALDir           string
	RefreshInterval  time.Duration
	RequestTimeout   time.Duration
	HistorySize      int
	RateLimit        decimal.Decimal
	RateBurst        int
	MetricsNamespace string
	TLSDomains       []string
	CertCacheDir     string
	Accounts         []domain.Account
	Primary          LedgerConfig
	Secondary        LedgerConfig
}

// LedgerConfigTmp is the raw YAML form of LedgerConfig.
type LedgerConfigTmp struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	CanisterID   string `yaml:"canister_id"`
	Symbol       string `yaml:"symbol"`
	DecimalsStr  string `yaml:"decimals,omitempty"`
	PrecisionStr string `yaml:"precision,omitempty"`
}

// ConfigTmp is the raw YAML form of Config.
type ConfigTmp struct {
	Gateway          string          `yaml:"gateway,omitempty"`
	Listen           string          `yaml:"listen,omitempty"`
	WALDir           string          `yaml:"wal_dir,omitempty"`
	RefreshInterval  time.Duration   `yaml:"refresh_interval,omitempty"`
	RequestTimeout   time.Duration   `yaml:"request_timeout,omitempty"`
	HistorySizeStr   string          `yaml:"history_size,omitempty"`
	RateLimitStr     string          `yaml:"rate_limit,omitempty"`
	RateBurstStr     string          `yaml:"rate_burst,omitempty"`
	MetricsNamespace string          `yaml:"metrics_namespace,omitempty"`
	TLSDomains       []string        `yaml:"tls_domains,omitempty"`
	CertCacheDir     string          `yaml:"cert_cache_dir,omitempty"`
	Accounts         []string        `yaml:"accounts,omitempty"`
	Primary          LedgerConfigTmp `yaml:"primary"`
	Secondary        LedgerConfigTmp `yaml:"secondary"`
}

// Load reads the YAML config at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	var tmp ConfigTmp
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, fmt.Errorf("incorrect yaml config %s: %w", path, err)
		}
	} else {
		tmp = Default()
	}

	cfg, err := Parse(tmp)
	if err != nil {
		return Config{}, err
	}
	if gw := os.Getenv(GatewayEnv); gw != "" {
		cfg.Gateway = gw
	}
	return cfg, nil
}

// Default returns the raw config for the public ICP ledger plus a token ledger.
func Default() ConfigTmp {
	return ConfigTmp{
		Primary: LedgerConfigTmp{
			Name:       "icp",
			Kind:       "icp",
			CanisterID: "ryjl3-tyaaa-aaaaa-aaaba-cai",
			Symbol:     "ICP",
		},
		Secondary: LedgerConfigTmp{
			Name:       "truth",
			Kind:       "icrc1",
			CanisterID: "mxzaz-hqaaa-aaaar-qaada-cai",
			Symbol:     "TRUTH",
		},
	}
}

// Parse validates the raw config and applies defaults.
func Parse(c ConfigTmp) (Config, error) {
	cfg := Config{
		Gateway:          orDefault(c.Gateway, defaultGateway),
		Listen:           orDefault(c.Listen, defaultListen),
		WALDir:           orDefault(c.WALDir, defaultWALDir),
		RefreshInterval:  c.RefreshInterval,
		RequestTimeout:   c.RequestTimeout,
		MetricsNamespace: c.MetricsNamespace,
		TLSDomains:       c.TLSDomains,
		CertCacheDir:     c.CertCacheDir,
	}

	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.RefreshInterval < 0 {
		return Config{}, fmt.Errorf("incorrect 'refresh_interval' param in yaml config (must be positive): %s", c.RefreshInterval)
	}
	if cfg.RequestTimeout < 0 {
		return Config{}, fmt.Errorf("incorrect 'request_timeout' param in yaml config (must not be negative): %s", c.RequestTimeout)
	}

	historySize, err := parseInt(c.HistorySizeStr, defaultHistorySize, "history_size")
	if err != nil {
		return Config{}, err
	}
	if historySize < 0 {
		return Config{}, fmt.Errorf("incorrect 'history_size' param in yaml config (must not be negative): %d", historySize)
	}
	cfg.HistorySize = historySize

	if c.RateLimitStr == "" {
		cfg.RateLimit = decimal.Zero
	} else {
		rl, err := decimal.NewFromString(c.RateLimitStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'rate_limit' param in yaml config (must be a decimal), error: %w", err)
		}
		if rl.IsNegative() {
			return Config{}, fmt.Errorf("incorrect 'rate_limit' param in yaml config (must not be negative): %s", rl)
		}
		cfg.RateLimit = rl
	}

	burst, err := parseInt(c.RateBurstStr, 1, "rate_burst")
	if err != nil {
		return Config{}, err
	}
	cfg.RateBurst = burst

	for _, text := range c.Accounts {
		principal, sub, _ := strings.Cut(text, ".")
		acc, err := domain.ParseAccount(principal, sub)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect account %q in yaml config, error: %w", text, err)
		}
		cfg.Accounts = append(cfg.Accounts, acc)
	}

	if cfg.Primary, err = parseLedger(c.Primary, "primary"); err != nil {
		return Config{}, err
	}
	if cfg.Secondary, err = parseLedger(c.Secondary, "secondary"); err != nil {
		return Config{}, err
	}
	if cfg.Primary.Name == cfg.Secondary.Name {
		return Config{}, fmt.Errorf("primary and secondary ledgers must have different names, got %q", cfg.Primary.Name)
	}

	return cfg, nil
}

func parseLedger(l LedgerConfigTmp, section string) (LedgerConfig, error) {
	if l.Name == "" {
		return LedgerConfig{}, fmt.Errorf("'%s.name' param is required in yaml config", section)
	}
	if l.CanisterID == "" {
		return LedgerConfig{}, fmt.Errorf("'%s.canister_id' param is required in yaml config", section)
	}
	if _, err := domain.ParsePrincipal(l.CanisterID); err != nil {
		return LedgerConfig{}, fmt.Errorf("incorrect '%s.canister_id' param in yaml config, error: %w", section, err)
	}

	kind := strings.ToLower(orDefault(l.Kind, "icrc1"))
	if kind != "icp" && kind != "icrc1" {
		return LedgerConfig{}, fmt.Errorf("incorrect '%s.kind' param in yaml config (icp or icrc1): %s", section, l.Kind)
	}

	decimals, err := parseInt(l.DecimalsStr, defaultDecimals, section+".decimals")
	if err != nil {
		return LedgerConfig{}, err
	}
	precision, err := parseInt(l.PrecisionStr, defaultPrecision, section+".precision")
	if err != nil {
		return LedgerConfig{}, err
	}
	if decimals < 0 || precision < 0 {
		return LedgerConfig{}, fmt.Errorf("'%s' decimals and precision must not be negative", section)
	}

	return LedgerConfig{
		Name:       l.Name,
		Kind:       kind,
		CanisterID: l.CanisterID,
		Symbol:     orDefault(l.Symbol, strings.ToUpper(l.Name)),
		Decimals:   int32(decimals),
		Precision:  int32(precision),
	}, nil
}

func parseInt(s string, def int, name string) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be an integer), error: %w", name, err)
	}
	return v, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
