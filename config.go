package authsession

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration of a session client.
//
// Values are resolved (highest priority first) from the environment, then
// the YAML file given to Load, then the env-default tags.
type Config struct {
	// BaseURL is prefixed to every backend path, e.g. "https://host/api/v1".
	BaseURL string `yaml:"base_url" env:"AUTHSESSION_BASE_URL" env-default:"http://localhost:3000/api/v1"`

	// LoginPath is the client-side login entry point forced logouts navigate to.
	LoginPath string `yaml:"login_path" env:"AUTHSESSION_LOGIN_PATH" env-default:"/login"`

	// MetricsAddr, when set, is where the CLI serves Prometheus metrics.
	MetricsAddr string `yaml:"metrics_addr" env:"AUTHSESSION_METRICS_ADDR"`

	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
}

// SessionConfig tunes the token lifecycle.
type SessionConfig struct {
	// WarningWindow: below this remaining lifetime the user is warned.
	WarningWindow time.Duration `yaml:"warning_window" env:"AUTHSESSION_WARNING_WINDOW" env-default:"5m"`

	// TickInterval is how often the monitor checks the token.
	TickInterval time.Duration `yaml:"tick_interval" env:"AUTHSESSION_TICK_INTERVAL" env-default:"5s"`

	// ActivityRenewalWindow: below this remaining lifetime activity may
	// trigger a silent refresh.
	ActivityRenewalWindow time.Duration `yaml:"activity_renewal_window" env:"AUTHSESSION_ACTIVITY_WINDOW" env-default:"5m"`

	// MinRefreshInterval is the cooldown between activity-triggered refreshes.
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval" env:"AUTHSESSION_MIN_REFRESH_INTERVAL" env-default:"60s"`

	// ActivityDebounce coalesces bursts of activity signals.
	ActivityDebounce time.Duration `yaml:"activity_debounce" env:"AUTHSESSION_ACTIVITY_DEBOUNCE" env-default:"250ms"`

	// RedirectDelay is a cosmetic pause hosts may apply before navigating
	// after a successful login.
	RedirectDelay time.Duration `yaml:"redirect_delay" env:"AUTHSESSION_REDIRECT_DELAY" env-default:"1200ms"`

	// RefreshTimeout bounds a single refresh exchange.
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"AUTHSESSION_REFRESH_TIMEOUT" env-default:"30s"`

	NoticeDuration         time.Duration `yaml:"notice_duration" env:"AUTHSESSION_NOTICE_DURATION" env-default:"10s"`
	ExpiringNoticeDuration time.Duration `yaml:"expiring_notice_duration" env:"AUTHSESSION_EXPIRING_NOTICE_DURATION" env-default:"70s"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level string `yaml:"level" env:"AUTHSESSION_LOG_LEVEL" env-default:"info"`
	Env   string `yaml:"env" env:"AUTHSESSION_ENV" env-default:"local"`
}

// StoreConfig locates the file token store used by the CLI.
type StoreConfig struct {
	Path    string `yaml:"path" env:"AUTHSESSION_STORE_PATH"`
	AppName string `yaml:"app_name" env:"AUTHSESSION_APP_NAME" env-default:"authsession"`
}

// Default values, mirrored by the env-default tags above.
const (
	DefaultBaseURL                = "http://localhost:3000/api/v1"
	DefaultLoginPath              = "/login"
	DefaultWarningWindow          = 5 * time.Minute
	DefaultTickInterval           = 5 * time.Second
	DefaultActivityRenewalWindow  = 5 * time.Minute
	DefaultMinRefreshInterval     = 60 * time.Second
	DefaultActivityDebounce       = 250 * time.Millisecond
	DefaultRedirectDelay          = 1200 * time.Millisecond
	DefaultRefreshTimeout         = 30 * time.Second
	DefaultNoticeDuration         = 10 * time.Second
	DefaultExpiringNoticeDuration = 70 * time.Second
)

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	var c Config
	c.EnsureDefaults()
	return c
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	c.Session.EnsureDefaults()
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Env == "" {
		c.Log.Env = "local"
	}
	if c.Store.AppName == "" {
		c.Store.AppName = "authsession"
	}
}

// EnsureDefaults fills in default values for any unset (zero or negative) durations.
func (s *SessionConfig) EnsureDefaults() {
	setDefault(&s.WarningWindow, DefaultWarningWindow)
	setDefault(&s.TickInterval, DefaultTickInterval)
	setDefault(&s.ActivityRenewalWindow, DefaultActivityRenewalWindow)
	setDefault(&s.MinRefreshInterval, DefaultMinRefreshInterval)
	setDefault(&s.ActivityDebounce, DefaultActivityDebounce)
	setDefault(&s.RedirectDelay, DefaultRedirectDelay)
	setDefault(&s.RefreshTimeout, DefaultRefreshTimeout)
	setDefault(&s.NoticeDuration, DefaultNoticeDuration)
	setDefault(&s.ExpiringNoticeDuration, DefaultExpiringNoticeDuration)
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// MustLoad is Load that panics on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration. Priority of the file source:
// 1) explicit path; 2) AUTHSESSION_CONFIG; 3) env only.
// Environment variables are always overlaid on top of the file.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("AUTHSESSION_CONFIG")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read env: %w", err)
	}

	cfg.EnsureDefaults()
	return cfg, nil
}
