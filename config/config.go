package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the loand service configuration.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	ContractName   string `toml:"ContractName"`
	CustodyAddress string `toml:"CustodyAddress"`
	OwnerAddress   string `toml:"OwnerAddress"`
	FeeDistributor string `toml:"FeeDistributor"`
	FeeRateBps     uint32 `toml:"FeeRateBps"`
	OwnerOracleURL string `toml:"OwnerOracleURL"`
	// AdminJWTSecret, when set, requires an HS256 bearer token on the admin
	// endpoints. Empty leaves them open for trusted deployments.
	AdminJWTSecret string `toml:"AdminJWTSecret"`
	// GenesisTime and BlockIntervalSeconds define the block clock: the
	// current height is derived from wall-clock time, matching the
	// block-height timeout semantics of the engine.
	GenesisTime          string `toml:"GenesisTime"`
	BlockIntervalSeconds uint64 `toml:"BlockIntervalSeconds"`
}

// Load reads the configuration at path, creating a commented default file on
// first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./loand-data"
	}
	if strings.TrimSpace(cfg.ContractName) == "" {
		cfg.ContractName = "nftlend"
	}
	if strings.TrimSpace(cfg.GenesisTime) == "" {
		cfg.GenesisTime = "2024-01-01T00:00:00Z"
	}
	if cfg.BlockIntervalSeconds == 0 {
		cfg.BlockIntervalSeconds = 5
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CustodyAddress) == "" {
		return fmt.Errorf("config: CustodyAddress is required")
	}
	if strings.TrimSpace(c.OwnerAddress) == "" {
		return fmt.Errorf("config: OwnerAddress is required")
	}
	if strings.TrimSpace(c.FeeDistributor) == "" {
		return fmt.Errorf("config: FeeDistributor is required")
	}
	if c.FeeRateBps >= 10_000 {
		return fmt.Errorf("config: FeeRateBps must stay below 10000")
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	return nil
}

// Genesis parses the configured genesis timestamp.
func (c *Config) Genesis() (time.Time, error) {
	genesis, err := time.Parse(time.RFC3339, strings.TrimSpace(c.GenesisTime))
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid GenesisTime: %w", err)
	}
	return genesis, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		CustodyAddress: "loan-custody",
		OwnerAddress:   "loan-admin",
		FeeDistributor: "fee-distributor",
		FeeRateBps:     500,
	}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
