package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
)

const (
	badgerDb = "badger"

	chainModeLive      = "live"
	chainModeSimulator = "simulator"
)

type Config struct {
	Datadir  string `mapstructure:"DATADIR" envDefault:"swapd" envInfo:"Data directory for swapd state"`
	DbType   string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	HTTPPort uint32 `mapstructure:"HTTP_PORT" envDefault:"7100" envInfo:"HTTP server port"`
	LogLevel uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`

	ChainMode string `mapstructure:"CHAIN_MODE" envDefault:"live" envInfo:"Chain adapters: live | simulator"`

	EvmRPCURL       string `mapstructure:"EVM_RPC_URL" envDefault:"" envInfo:"EVM json-rpc endpoint (e.g., http://geth:8545)"`
	EvmHTLCContract string `mapstructure:"EVM_HTLC_CONTRACT" envDefault:"" envInfo:"Deployed HTLC contract address"`
	EvmChainID      int64  `mapstructure:"EVM_CHAIN_ID" envDefault:"1" envInfo:"EVM chain id used for transaction signing"`

	UtxoAPIURL  string `mapstructure:"UTXO_API_URL" envDefault:"" envInfo:"Esplora-style explorer base URL for the UTXO chain"`
	UtxoNetwork string `mapstructure:"UTXO_NETWORK" envDefault:"mainnet" envInfo:"UTXO network: mainnet | testnet | regtest"`
	UtxoFee     uint64 `mapstructure:"UTXO_FEE" envDefault:"100000" envInfo:"Flat fee in smallest units for UTXO transactions"`

	SafetyMargin     uint32 `mapstructure:"SAFETY_MARGIN" envDefault:"3600" envInfo:"Seconds between the two legs' timelocks"`
	MinTimelock      uint32 `mapstructure:"MIN_TIMELOCK" envDefault:"7200" envInfo:"Minimum swap timelock in seconds"`
	MaxTimelock      uint32 `mapstructure:"MAX_TIMELOCK" envDefault:"172800" envInfo:"Maximum swap timelock in seconds"`
	MinSwapAmount    uint64 `mapstructure:"MIN_SWAP_AMOUNT" envDefault:"1000" envInfo:"Minimum swap amount in native units"`
	MaxSwapAmount    uint64 `mapstructure:"MAX_SWAP_AMOUNT" envDefault:"0" envInfo:"Maximum swap amount, 0 for unlimited"`
	MinConfirmations uint64 `mapstructure:"MIN_CONFIRMATIONS" envDefault:"1" envInfo:"Confirmations required on funding outputs"`

	PollInterval      uint32 `mapstructure:"POLL_INTERVAL" envDefault:"10" envInfo:"Resolver poll interval in seconds"`
	HealthInterval    uint32 `mapstructure:"HEALTH_INTERVAL" envDefault:"60" envInfo:"Chain health check interval in seconds"`
	RPCTimeout        uint32 `mapstructure:"RPC_TIMEOUT" envDefault:"30" envInfo:"Per-call chain rpc timeout in seconds"`
	Retention         uint32 `mapstructure:"RETENTION" envDefault:"604800" envInfo:"Seconds to keep terminal swaps, 0 to keep forever"`
	RetentionInterval uint32 `mapstructure:"RETENTION_INTERVAL" envDefault:"3600" envInfo:"Retention sweep interval in seconds"`

	ResolverEvmKey  string `mapstructure:"RESOLVER_EVM_KEY" envDefault:"" envInfo:"Hex key signing resolver claims and refunds on the EVM chain"`
	ResolverUtxoKey string `mapstructure:"RESOLVER_UTXO_KEY" envDefault:"" envInfo:"WIF key signing resolver claims and refunds on the UTXO chain"`
	LowBalance      uint64 `mapstructure:"LOW_BALANCE" envDefault:"0" envInfo:"Warn when a resolver balance drops below this, 0 to disable"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SWAPD")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	if err := config.initDatadir(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.DbType != badgerDb {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}
	if c.ChainMode != chainModeLive && c.ChainMode != chainModeSimulator {
		return fmt.Errorf("chain mode must be %s or %s", chainModeLive, chainModeSimulator)
	}
	if c.SafetyMargin == 0 {
		return fmt.Errorf("safety margin must be greater than 0")
	}
	if c.MinTimelock <= c.SafetyMargin {
		return fmt.Errorf(
			"min timelock %d must exceed safety margin %d", c.MinTimelock, c.SafetyMargin,
		)
	}
	if c.MaxTimelock < c.MinTimelock {
		return fmt.Errorf("max timelock %d below min timelock %d", c.MaxTimelock, c.MinTimelock)
	}
	if c.ChainMode == chainModeLive {
		if c.EvmRPCURL == "" {
			return fmt.Errorf("missing EVM_RPC_URL")
		}
		if c.UtxoAPIURL == "" {
			return fmt.Errorf("missing UTXO_API_URL")
		}
	}
	return nil
}

func (c *Config) IsSimulator() bool {
	return c.ChainMode == chainModeSimulator
}

func (c *Config) SafetyMarginDuration() time.Duration {
	return time.Duration(c.SafetyMargin) * time.Second
}

func (c *Config) initDatadir() error {
	if c.Datadir == "swapd" {
		c.Datadir = appDatadir("swapd", false)
	} else {
		c.Datadir = cleanAndExpandPath(c.Datadir)
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	goos := runtime.GOOS
	switch goos {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

//go:generate go run ../../tools/gen-env-doc/main.go
