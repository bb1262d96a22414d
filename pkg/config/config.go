package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lumera-labs/near-lockup/pkg/policy"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const DefaultRPCURL = "https://rpc.mainnet.near.org"

type Config struct {
	RPCURL        string        `toml:"rpc_url"`
	RPCTimeout    time.Duration `toml:"rpc_timeout"`
	RPCRetries    int           `toml:"rpc_retries"`
	RPCRetryDelay time.Duration `toml:"rpc_retry_delay"`

	HTTPAddr   string `toml:"http_addr"`
	RatePerMin int    `toml:"rate_per_min"`
	Burst      int    `toml:"burst"`
	// TrustProxy must only be set behind a reverse proxy that overwrites X-Forwarded-For.
	TrustProxy bool `toml:"trust_proxy"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`

	TransfersOverride policy.TransfersOverride `toml:"transfers_override"`
}

func Default() Config {
	return Config{
		RPCURL:            DefaultRPCURL,
		RPCTimeout:        10 * time.Second,
		RPCRetries:        3,
		RPCRetryDelay:     time.Second,
		HTTPAddr:          ":8080",
		RatePerMin:        60,
		Burst:             120,
		LogLevel:          "info",
		LogFormat:         "json",
		TransfersOverride: policy.Default(),
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected so typos don't silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("load config %s: %w: unknown keys %s", path, ErrInvalid, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NEAR_LOCKUP_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("NEAR_LOCKUP_RPC_URL", &c.RPCURL)
	duration("NEAR_LOCKUP_RPC_TIMEOUT", &c.RPCTimeout)
	integer("NEAR_LOCKUP_RPC_RETRIES", &c.RPCRetries)
	duration("NEAR_LOCKUP_RPC_RETRY_DELAY", &c.RPCRetryDelay)
	str("NEAR_LOCKUP_HTTP_ADDR", &c.HTTPAddr)
	integer("NEAR_LOCKUP_RATE_PER_MIN", &c.RatePerMin)
	integer("NEAR_LOCKUP_BURST", &c.Burst)
	if v := getenv("NEAR_LOCKUP_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NEAR_LOCKUP_TRUST_PROXY: %w", err))
		} else {
			c.TrustProxy = b
		}
	}
	str("NEAR_LOCKUP_LOG_LEVEL", &c.LogLevel)
	str("NEAR_LOCKUP_LOG_FORMAT", &c.LogFormat)
	str("NEAR_LOCKUP_LOG_FILE", &c.LogFile)
	if v := getenv("NEAR_LOCKUP_TRANSFERS_OVERRIDE_MODE"); v != "" {
		c.TransfersOverride.Mode = policy.Mode(v)
	}
	if v := getenv("NEAR_LOCKUP_TRANSFERS_OVERRIDE_TIMESTAMP"); v != "" {
		ts, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("NEAR_LOCKUP_TRANSFERS_OVERRIDE_TIMESTAMP: %w", err))
		} else {
			c.TransfersOverride.Timestamp = ts
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.RPCURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("rpc_url %q must be an absolute http(s) URL", c.RPCURL))
	}
	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("rpc_timeout must be positive"))
	}
	if c.RPCRetries < 0 {
		errs = append(errs, fmt.Errorf("rpc_retries must not be negative"))
	}
	if c.RPCRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("rpc_retry_delay must not be negative"))
	}
	if c.RatePerMin <= 0 || c.Burst <= 0 {
		errs = append(errs, fmt.Errorf("rate_per_min and burst must be positive"))
	}
	if err := c.TransfersOverride.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
