package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Data sources for pool state and initialized ticks.
const (
	SourceChain    = "chain"
	SourceSubgraph = "subgraph"
	SourcePostgres = "postgres"
)

const (
	DefaultRPC      = "https://polygon-rpc.com"
	DefaultChainID  = 137
	DefaultSubgraph = "https://api.thegraph.com/subgraphs/name/ianlapham/uniswap-v3-polygon"
	// DefaultTickLens is the TickLens periphery deployment shared by the
	// Uniswap V3 chains.
	DefaultTickLens = "0xbfd8137f7d1516D3ea5cA83523914859ec47F573"
	DefaultVault    = "0x6f033211B6d7DDB533B9A83fFDDE50Ac0B6bDeA7"
)

// Network selects the chain and the endpoints that serve it.
type Network struct {
	RPCEndpoint      string
	ChainID          uint64
	SubgraphEndpoint string
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Network      Network
	PoolSource   string
	TickSource   string
	TickLens     string
	Vault        string
	Pools        []string
	PGDSN        string
	Listen       string
	Ticks        int
	ZoomInterval int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
	PollInterval time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SSLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", DefaultRPC)
	v.SetDefault("chain-id", uint64(DefaultChainID))
	v.SetDefault("subgraph", DefaultSubgraph)
	v.SetDefault("pool-source", SourceChain)
	v.SetDefault("tick-source", SourceChain)
	v.SetDefault("tick-lens", DefaultTickLens)
	v.SetDefault("vault", DefaultVault)
	v.SetDefault("listen", ":8080")
	v.SetDefault("ticks", 100)
	v.SetDefault("zoom-interval", 20)
	v.SetDefault("workers", 8)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("poll-interval", 30*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Network: Network{
			RPCEndpoint:      v.GetString("rpc"),
			ChainID:          v.GetUint64("chain-id"),
			SubgraphEndpoint: v.GetString("subgraph"),
		},
		PoolSource:   strings.ToLower(strings.TrimSpace(v.GetString("pool-source"))),
		TickSource:   strings.ToLower(strings.TrimSpace(v.GetString("tick-source"))),
		TickLens:     v.GetString("tick-lens"),
		Vault:        v.GetString("vault"),
		Pools:        getStringSlice(v, "pools"),
		PGDSN:        v.GetString("pg-dsn"),
		Listen:       v.GetString("listen"),
		Ticks:        v.GetInt("ticks"),
		ZoomInterval: v.GetInt("zoom-interval"),
		Workers:      v.GetInt("workers"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		CallTimeout:  v.GetDuration("call-timeout"),
		PollInterval: v.GetDuration("poll-interval"),
		LogLevel:     v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks source selections and the numeric knobs.
func (c Config) Validate() error {
	switch c.PoolSource {
	case SourceChain, SourceSubgraph:
	default:
		return fmt.Errorf("invalid pool-source %q (want chain or subgraph)", c.PoolSource)
	}
	switch c.TickSource {
	case SourceChain, SourceSubgraph:
	case SourcePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("tick-source postgres requires pg-dsn")
		}
	default:
		return fmt.Errorf("invalid tick-source %q (want chain, subgraph or postgres)", c.TickSource)
	}
	if c.Ticks <= 0 {
		return fmt.Errorf("ticks must be greater than zero")
	}
	if c.ZoomInterval <= 0 {
		return fmt.Errorf("zoom-interval must be greater than zero")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	return nil
}

// NeedsChain reports whether any configured source reads over RPC.
func (c Config) NeedsChain() bool {
	return c.PoolSource == SourceChain || c.TickSource == SourceChain
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
