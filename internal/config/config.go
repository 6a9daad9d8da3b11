package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (E2E_APP_BASE_URL, ...).
const EnvPrefix = "E2E"

// Modes a run can be executed in.
const (
	ModeVerify      = "verify"
	ModeInvestigate = "investigate"
)

// Evidence stores.
const (
	StoreLocal = "local"
	StoreS3    = "s3"
)

// KnownRoles are the roles whose credentials can be supplied through the environment
// without a config file.
var KnownRoles = []string{"admin", "member", "vetted", "teacher", "guest"}

// Config represents the harness configuration
type Config struct {
	App         AppConfig                   `mapstructure:"app"`
	Browser     BrowserConfig               `mapstructure:"browser"`
	Timeouts    TimeoutsConfig              `mapstructure:"timeouts"`
	Auth        AuthConfig                  `mapstructure:"auth"`
	Affordances map[string][]string         `mapstructure:"affordances"`
	Evidence    EvidenceConfig              `mapstructure:"evidence"`
	Credentials map[string]CredentialConfig `mapstructure:"credentials"`
	Mode        string                      `mapstructure:"mode"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Metrics     MetricsConfig               `mapstructure:"metrics"`
	Scenarios   ScenariosConfig             `mapstructure:"scenarios"`
}

type AppConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIBaseURL   string `mapstructure:"api_base_url"`
	LoginRoute   string `mapstructure:"login_route"`
	LandingRoute string `mapstructure:"landing_route"`
	LogoutRoute  string `mapstructure:"logout_route"`
	APILoginPath string `mapstructure:"api_login_path"`
	APIUserPath  string `mapstructure:"api_user_path"`
	HealthPath   string `mapstructure:"health_path"`
	Autodetect   bool   `mapstructure:"autodetect"`
}

type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"`
	SlowMo      time.Duration `mapstructure:"slow_mo"`
	Install     bool          `mapstructure:"install"`
	RecordVideo bool          `mapstructure:"record_video"`
	Viewport    struct {
		Width  int `mapstructure:"width"`
		Height int `mapstructure:"height"`
	} `mapstructure:"viewport"`
}

type TimeoutsConfig struct {
	Default      time.Duration `mapstructure:"default"`
	Login        time.Duration `mapstructure:"login"`
	Navigation   time.Duration `mapstructure:"navigation"`
	LinkSearch   time.Duration `mapstructure:"link_search"`
	Settle       time.Duration `mapstructure:"settle"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Test         time.Duration `mapstructure:"test"`
}

type AuthConfig struct {
	LoginAttempts int `mapstructure:"login_attempts"`
}

type EvidenceConfig struct {
	OutputDir string   `mapstructure:"output_dir"`
	Persist   bool     `mapstructure:"persist"`
	Store     string   `mapstructure:"store"`
	S3        S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Prefix       string `mapstructure:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type CredentialConfig struct {
	Email      string `mapstructure:"email"`
	Password   string `mapstructure:"password"`
	TOTPSecret string `mapstructure:"totp_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ScenariosConfig struct {
	File     string `mapstructure:"file"`
	Schedule string `mapstructure:"schedule"`
}

// Loader reads configuration from an optional YAML file, the .env file and the
// environment. A Loader can watch its file and hand out fresh configs on change.
type Loader struct {
	v          *viper.Viper
	configFile string

	mu  sync.RWMutex
	cfg *Config
}

// NewLoader creates a loader. An empty configFile searches for e2eprobe.yaml in the
// working directory and ./config; a missing file is not an error.
func NewLoader(configFile string) *Loader {
	return &Loader{v: viper.New(), configFile: configFile}
}

// Load is a shortcut for NewLoader(configFile).Load().
func Load(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	LoadDotEnv(".env")

	v := l.v
	v.SetConfigType("yaml")
	setDefaults(v)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("e2eprobe")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Get returns the most recently loaded configuration (thread-safe)
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch re-reads the config file whenever it changes and calls onChange with the new
// configuration. Invalid edits are reported through onError and the previous
// configuration stays in effect.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newCfg, err := decode(l.v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		// Atomic swap
		l.mu.Lock()
		l.cfg = newCfg
		l.mu.Unlock()
		if onChange != nil {
			onChange(newCfg)
		}
	})
	l.v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.api_base_url", "")
	v.SetDefault("app.login_route", "/login")
	v.SetDefault("app.landing_route", "/dashboard")
	v.SetDefault("app.logout_route", "/logout")
	v.SetDefault("app.api_login_path", "/api/auth/login")
	v.SetDefault("app.api_user_path", "/api/auth/user")
	v.SetDefault("app.health_path", "/healthz")
	v.SetDefault("app.autodetect", false)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 0)
	v.SetDefault("browser.install", true)
	v.SetDefault("browser.record_video", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)

	v.SetDefault("timeouts.default", 10*time.Second)
	v.SetDefault("timeouts.login", 10*time.Second)
	v.SetDefault("timeouts.navigation", 15*time.Second)
	v.SetDefault("timeouts.link_search", time.Second)
	v.SetDefault("timeouts.settle", 3*time.Second)
	v.SetDefault("timeouts.poll_interval", 100*time.Millisecond)
	v.SetDefault("timeouts.test", 2*time.Minute)

	v.SetDefault("auth.login_attempts", 1)

	v.SetDefault("evidence.output_dir", "test-results")
	v.SetDefault("evidence.persist", true)
	v.SetDefault("evidence.store", StoreLocal)
	v.SetDefault("evidence.s3.region", "us-east-1")

	v.SetDefault("mode", ModeVerify)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("scenarios.file", "")
	v.SetDefault("scenarios.schedule", "0 */15 * * * *")

	// Register credential keys so AutomaticEnv can see E2E_CREDENTIALS_<ROLE>_<FIELD>.
	for _, role := range KnownRoles {
		v.SetDefault("credentials."+role+".email", "")
		v.SetDefault("credentials."+role+".password", "")
		v.SetDefault("credentials."+role+".totp_secret", "")
	}
}

// bindLegacyEnv keeps the variable names older e2e setups export working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("app.base_url", EnvPrefix+"_APP_BASE_URL", "BASE_URL")
	_ = v.BindEnv("credentials.admin.email", EnvPrefix+"_CREDENTIALS_ADMIN_EMAIL", "DEMO_ADMIN_EMAIL")
	_ = v.BindEnv("credentials.admin.password", EnvPrefix+"_CREDENTIALS_ADMIN_PASSWORD", "DEMO_ADMIN_PASSWORD")
	_ = v.BindEnv("browser.headless", EnvPrefix+"_BROWSER_HEADLESS", "HEADLESS")
}

func (c *Config) normalize() {
	c.App.BaseURL = strings.TrimSuffix(c.App.BaseURL, "/")
	c.App.APIBaseURL = strings.TrimSuffix(c.App.APIBaseURL, "/")
	if c.App.APIBaseURL == "" {
		c.App.APIBaseURL = c.App.BaseURL
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	for role, cred := range c.Credentials {
		if cred.Email == "" && cred.Password == "" {
			delete(c.Credentials, role)
		}
	}
}

// URL joins a route onto the application base URL.
func (c *AppConfig) URL(route string) string {
	if strings.HasPrefix(route, "http://") || strings.HasPrefix(route, "https://") {
		return route
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return c.BaseURL + route
}

// IsInvestigation returns true when failures are recorded as findings instead of failing.
func (c *Config) IsInvestigation() bool {
	return c.Mode == ModeInvestigate
}
