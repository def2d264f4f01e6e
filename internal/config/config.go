// Package config loads server and plan settings from defaults, an
// optional config file, CAPTUREHUB_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"capturehub/internal/actions"
	"capturehub/internal/gateway"
)

const EnvPrefix = "CAPTUREHUB"

const (
	KeyPort               = "port"
	KeySSLPort            = "ssl_port"
	KeyBindHost           = "bind_host"
	KeyBrowserTimeout     = "browser_timeout"
	KeyReaperPeriodFactor = "reaper_period_factor"
	KeyHandlerPrefix      = "handler_prefix"
	KeyJournalPath        = "journal_path"
	KeyRateLimit          = "rate_limit_per_minute"
	KeyGatewayRoutes      = "gateway.routes"
	KeyTests              = "tests"
	KeyArguments          = "arguments"
	KeyReset              = "reset"
	KeyDryRunFor          = "dry_run_for"
	KeyTestOutput         = "test_output"
	KeyRaiseOnFailure     = "raise_on_failure"
)

const (
	DefaultPort           = 4224
	DefaultBindHost       = "127.0.0.1"
	DefaultBrowserTimeout = 30 * time.Second
	DefaultPeriodFactor   = 2
	DefaultRateLimit      = 600
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved, validated settings snapshot.
type Config struct {
	Port               int
	SSLPort            int
	BindHost           string
	BrowserTimeout     time.Duration
	ReaperPeriodFactor int
	HandlerPrefix      string
	JournalPath        string
	RateLimitPerMinute int
	Routes             []gateway.Route
	Plan               actions.Options
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeySSLPort, 0)
	v.SetDefault(KeyBindHost, DefaultBindHost)
	v.SetDefault(KeyBrowserTimeout, DefaultBrowserTimeout)
	v.SetDefault(KeyReaperPeriodFactor, DefaultPeriodFactor)
	v.SetDefault(KeyHandlerPrefix, "")
	v.SetDefault(KeyJournalPath, "")
	v.SetDefault(KeyRateLimit, DefaultRateLimit)
	v.SetDefault(KeyTests, []string{})
	v.SetDefault(KeyArguments, []string{})
	v.SetDefault(KeyReset, false)
	v.SetDefault(KeyDryRunFor, []string{})
	v.SetDefault(KeyTestOutput, "")
	v.SetDefault(KeyRaiseOnFailure, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// BindServerFlags registers the serve flags on fs and binds them to v.
func BindServerFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.Int("port", DefaultPort, "HTTP listen port")
	fs.String("bind-host", DefaultBindHost, "listen address")
	fs.Duration("browser-timeout", DefaultBrowserTimeout, "heartbeat age after which a browser is evicted")
	fs.Int("reaper-period-factor", DefaultPeriodFactor, "reaper period as a multiple of the browser timeout")
	fs.String("handler-prefix", "", "path prefix for every internal route")
	fs.String("journal", "", "sqlite path for the lifecycle journal (empty disables)")
	fs.Int("rate-limit", DefaultRateLimit, "requests per minute per client")
	return bind(v, fs, map[string]string{
		KeyPort:               "port",
		KeyBindHost:           "bind-host",
		KeyBrowserTimeout:     "browser-timeout",
		KeyReaperPeriodFactor: "reaper-period-factor",
		KeyHandlerPrefix:      "handler-prefix",
		KeyJournalPath:        "journal",
		KeyRateLimit:          "rate-limit",
	})
}

// BindPlanFlags registers the action plan flags on fs and binds them to v.
func BindPlanFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.StringSlice("tests", nil, "tests to run")
	fs.Bool("reset", false, "reset browsers before running")
	fs.StringSlice("dry-run-for", nil, "list tests without running them")
	fs.Int("port", 0, "local server port to bind")
	fs.Int("ssl-port", 0, "local server TLS port to bind")
	fs.String("test-output", "", "directory for result files")
	fs.Bool("raise-on-failure", false, "exit non-zero when a test fails")
	return bind(v, fs, map[string]string{
		KeyTests:          "tests",
		KeyReset:          "reset",
		KeyDryRunFor:      "dry-run-for",
		KeyPort:           "port",
		KeySSLPort:        "ssl-port",
		KeyTestOutput:     "test-output",
		KeyRaiseOnFailure: "raise-on-failure",
	})
}

func bind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	var routes []gateway.Route
	if err := v.UnmarshalKey(KeyGatewayRoutes, &routes); err != nil {
		return Config{}, fmt.Errorf("%w: gateway.routes: %v", ErrInvalid, err)
	}
	cfg := Config{
		Port:               v.GetInt(KeyPort),
		SSLPort:            v.GetInt(KeySSLPort),
		BindHost:           strings.TrimSpace(v.GetString(KeyBindHost)),
		BrowserTimeout:     v.GetDuration(KeyBrowserTimeout),
		ReaperPeriodFactor: v.GetInt(KeyReaperPeriodFactor),
		HandlerPrefix:      strings.TrimSpace(v.GetString(KeyHandlerPrefix)),
		JournalPath:        strings.TrimSpace(v.GetString(KeyJournalPath)),
		RateLimitPerMinute: v.GetInt(KeyRateLimit),
		Routes:             routes,
	}
	cfg.Plan = actions.Options{
		Tests:          v.GetStringSlice(KeyTests),
		Arguments:      v.GetStringSlice(KeyArguments),
		Reset:          v.GetBool(KeyReset),
		DryRunFor:      v.GetStringSlice(KeyDryRunFor),
		Port:           cfg.Port,
		SSLPort:        cfg.SSLPort,
		TestOutput:     strings.TrimSpace(v.GetString(KeyTestOutput)),
		RaiseOnFailure: v.GetBool(KeyRaiseOnFailure),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.SSLPort < 0 || c.SSLPort > 65535 {
		return fmt.Errorf("%w: ssl_port %d out of range", ErrInvalid, c.SSLPort)
	}
	if c.BrowserTimeout <= 0 {
		return fmt.Errorf("%w: browser_timeout must be positive", ErrInvalid)
	}
	if c.ReaperPeriodFactor < 1 {
		return fmt.Errorf("%w: reaper_period_factor must be at least 1", ErrInvalid)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: rate_limit_per_minute must be positive", ErrInvalid)
	}
	if c.HandlerPrefix != "" && (!strings.HasPrefix(c.HandlerPrefix, "/") || strings.HasSuffix(c.HandlerPrefix, "/")) {
		return fmt.Errorf("%w: handler_prefix %q must start with / and not end with /", ErrInvalid, c.HandlerPrefix)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// Watch re-resolves the config whenever the config file changes and hands
// the result to onChange. Invalid edits are logged and skipped.
func Watch(v *viper.Viper, logger *slog.Logger, onChange func(Config)) {
	v.OnConfigChange(changeHandler(v, logger, onChange))
	v.WatchConfig()
}

func changeHandler(v *viper.Viper, logger *slog.Logger, onChange func(Config)) func(fsnotify.Event) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	}
}
