package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"

	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/pipeline"
	"github.com/AlexZinkM/wallet-core/internal/retry"
	"github.com/AlexZinkM/wallet-core/internal/vault"
)

// Config contains all configuration parameters for the application.
// The vault password is not part of it, see PromptForPassword.
type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	Network string `envconfig:"SOLANA_NETWORK" default:"mainnet-beta"`

	VaultBackend string `envconfig:"VAULT_BACKEND" default:"file"`
	VaultPath    string `envconfig:"VAULT_PATH" default:"wallets.cwt"`

	RPCURLs          []string      `envconfig:"SOLANA_RPC_URLS" default:"https://api.mainnet-beta.solana.com"`
	WSURL            string        `envconfig:"SOLANA_WS_URL"`
	RPCRace          bool          `envconfig:"RPC_RACE" default:"false"`
	RPCMaxAttempts   int           `envconfig:"RPC_MAX_ATTEMPTS" default:"3"`
	RPCRetryDelay    time.Duration `envconfig:"RPC_RETRY_DELAY" default:"500ms"`
	RPCRatePerSecond float64       `envconfig:"RPC_RATE_PER_SECOND" default:"0"`
	RPCTimeout       time.Duration `envconfig:"RPC_TIMEOUT" default:"15s"`

	FeeCollector     string `envconfig:"FEE_COLLECTOR_ADDRESS"`
	FeeBasisPoints   uint64 `envconfig:"FEE_BASIS_POINTS" default:"0"`
	FeeFixedLamports uint64 `envconfig:"FEE_FIXED_LAMPORTS" default:"0"`

	RefreshConcurrency int `envconfig:"REFRESH_CONCURRENCY" default:"4"`
	HistoryConcurrency int `envconfig:"HISTORY_CONCURRENCY" default:"8"`

	PayCooldown    time.Duration `envconfig:"PAY_COOLDOWN" default:"0s"`
	FeeCacheTTL    time.Duration `envconfig:"FEE_CACHE_TTL" default:"10s"`
	ConfirmTimeout time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"60s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`
	LogFile  string `envconfig:"LOG_FILE"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.VaultBackend {
	case vault.BackendFile, vault.BackendBadger, vault.BackendMemory:
	default:
		return fmt.Errorf("unknown VAULT_BACKEND %q: use file, badger or memory", c.VaultBackend)
	}
	if c.VaultBackend != vault.BackendMemory && c.VaultPath == "" {
		return errors.New("VAULT_PATH is required")
	}
	if len(c.RPCURLs) == 0 {
		return errors.New("SOLANA_RPC_URLS must list at least one endpoint")
	}
	if c.RPCMaxAttempts < 1 {
		return errors.New("RPC_MAX_ATTEMPTS must be at least 1")
	}
	if c.PayCooldown < 0 {
		return errors.New("PAY_COOLDOWN must not be negative")
	}
	if _, err := c.PlatformFee(); err != nil {
		return err
	}
	return nil
}

// ResolverOptions returns the endpoint resolver settings.
func (c *Config) ResolverOptions() client.Options {
	return client.Options{
		URLs:          c.RPCURLs,
		Race:          c.RPCRace,
		Retry:         retry.Policy{MaxAttempts: c.RPCMaxAttempts, Backoff: retry.Constant(c.RPCRetryDelay)},
		RatePerSecond: c.RPCRatePerSecond,
		Burst:         1,
		Timeout:       c.RPCTimeout,
	}
}

// PlatformFee returns the fee collection settings. Collection is disabled
// when no collector address is configured.
func (c *Config) PlatformFee() (pipeline.FeeCollection, error) {
	if c.FeeCollector == "" {
		return pipeline.FeeCollectionDisabled(), nil
	}
	collector, err := solana.PublicKeyFromBase58(c.FeeCollector)
	if err != nil {
		return pipeline.FeeCollection{}, fmt.Errorf("invalid FEE_COLLECTOR_ADDRESS: %w", err)
	}
	fc, err := pipeline.FeeCollectionTo(collector, c.FeeBasisPoints, c.FeeFixedLamports)
	if err != nil {
		return pipeline.FeeCollection{}, fmt.Errorf("invalid platform fee: %w", err)
	}
	return fc, nil
}

// PromptForPassword prompts the user for the vault password in the terminal.
// The password is read without echoing (hidden input).
// Caller must zero the returned slice after use.
func PromptForPassword() ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, "Enter wallet password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}
