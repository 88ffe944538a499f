package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultRPCURL = "http://127.0.0.1:8899"

type Config struct {
	Solana struct {
		RPCURL string `mapstructure:"rpc_url"`
		// WSURL enables the websocket balance watcher when set.
		WSURL         string `mapstructure:"ws_url"`
		SkipPreflight bool   `mapstructure:"skip_preflight"`
	} `mapstructure:"solana"`
	Confirm struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		MaxPolls     int           `mapstructure:"max_polls"`
		Commitment   string        `mapstructure:"commitment"`
	} `mapstructure:"confirm"`
	Storage struct {
		WalletFile string `mapstructure:"wallet_file"`
		DataDir    string `mapstructure:"data_dir"`
		// Driver selects the recorder backend: file, mysql, postgres or sqlite.
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"storage"`
	App struct {
		Port     int    `mapstructure:"port"`
		Mode     string `mapstructure:"mode"`
		LogLevel string `mapstructure:"log_level"`
		LogJSON  bool   `mapstructure:"log_json"`
	} `mapstructure:"app"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solana.rpc_url", DefaultRPCURL)
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.skip_preflight", false)
	v.SetDefault("confirm.poll_interval", time.Second)
	v.SetDefault("confirm.max_polls", 30)
	v.SetDefault("confirm.commitment", "finalized")
	v.SetDefault("storage.wallet_file", "solana_wallets.json")
	v.SetDefault("storage.data_dir", "blockchain_data")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_json", true)
}

// Load reads config.yaml from the given directories (the working directory
// when none are given). A missing file is not an error; defaults and
// environment variables still apply. SOLANA_RPC_URL overrides the endpoint.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("solana.rpc_url", "SOLANA_RPC_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return errors.New("solana.rpc_url is empty")
	}
	if c.Confirm.PollInterval <= 0 {
		return errors.New("confirm.poll_interval must be positive")
	}
	if c.Confirm.MaxPolls <= 0 {
		return errors.New("confirm.max_polls must be positive")
	}
	switch c.Confirm.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("confirm.commitment %q is not a commitment level", c.Confirm.Commitment)
	}
	switch c.App.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("app.mode %q must be debug, release or test", c.App.Mode)
	}
	switch c.Storage.Driver {
	case "file":
	case "mysql", "postgres", "sqlite":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}
