package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	DefaultBackendName = "edge_app"
	DefaultDemoChannel = "demo_logs"
	DefaultSourceEnv   = "FASTLY_HOSTNAME"
)

// ErrMissingEnvironment is returned when a required environment variable
// is unset or empty.
var ErrMissingEnvironment = errors.New("missing environment variable")

var pathPattern = regexp.MustCompile(`^/`)

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	AdminAddress string `mapstructure:"admin_address"`
	Environment  string `mapstructure:"environment"`
}

type BackendConfig struct {
	Name         string `mapstructure:"name"`
	URL          string `mapstructure:"url"`
	WebsocketURL string `mapstructure:"websocket_url"`
	Timeout      string `mapstructure:"timeout"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	DemoChannel string `mapstructure:"demo_channel"`
	SourceEnv   string `mapstructure:"source_env"`
	// HostnameFallback stamps the machine hostname on demo records when
	// SourceEnv is unset. Off by default, so a missing variable stops startup.
	HostnameFallback bool `mapstructure:"hostname_fallback"`
}

// AssetsConfig selects where the asset table is loaded from. An empty Dir
// means the built-in assets.
type AssetsConfig struct {
	Dir      string `mapstructure:"dir"`
	Manifest string `mapstructure:"manifest"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Assets      AssetsConfig      `mapstructure:"assets"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.admin_address", ":9090")
	v.SetDefault("backend.name", DefaultBackendName)
	v.SetDefault("backend.url", "http://localhost:8081")
	v.SetDefault("backend.websocket_url", "")
	v.SetDefault("backend.timeout", "45s")
	v.SetDefault("health_check.interval", "2s")
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.demo_channel", DefaultDemoChannel)
	v.SetDefault("logging.source_env", DefaultSourceEnv)
	v.SetDefault("logging.hostname_fallback", false)
	v.SetDefault("assets.dir", "")
	v.SetDefault("assets.manifest", "manifest.yaml")
}

// Load reads configuration from configFile, or from config.yaml in ./config
// or the working directory when configFile is empty. Environment variables
// such as BACKEND_URL override file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SourceHost returns the value of envKey. It is read once at startup and
// stamped on every demo log record.
func SourceHost(envKey string) (string, error) {
	host := strings.TrimSpace(os.Getenv(envKey))
	if host == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingEnvironment, envKey)
	}
	return host, nil
}

// BackendURL returns the parsed backend origin.
func (c *Config) BackendURL() (*url.URL, error) {
	return url.Parse(c.Backend.URL)
}

// BackendWebsocketURL returns the websocket origin, or nil when it should be
// derived from the backend URL.
func (c *Config) BackendWebsocketURL() (*url.URL, error) {
	if c.Backend.WebsocketURL == "" {
		return nil, nil
	}
	return url.Parse(c.Backend.WebsocketURL)
}

// BackendTimeout returns the forwarding timeout. Load has already validated
// the value.
func (c *Config) BackendTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Backend.Timeout)
	return d
}

func (c *Config) HealthCheckInterval() time.Duration {
	d, _ := time.ParseDuration(c.HealthCheck.Interval)
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.AdminAddress,
						validation.Required,
						validation.By(validateHostPort),
						validation.NotIn(sc.Address).Error("must differ from the public address"),
					),
				)
			}),
		),
		validation.Field(&c.Backend,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BackendConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BackendConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.Name, validation.Required),
					validation.Field(&bc.URL,
						validation.Required,
						validation.By(validateURL("http", "https")),
					),
					validation.Field(&bc.WebsocketURL,
						validation.By(validateURL("ws", "wss")),
					),
					validation.Field(&bc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Path,
						validation.Required,
						validation.Match(pathPattern).Error("must start with /"),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
					validation.Field(&lc.DemoChannel, validation.Required),
					validation.Field(&lc.SourceEnv, validation.Required),
				)
			}),
		),
		validation.Field(&c.Assets,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AssetsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AssetsConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Manifest, validation.Required),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

// validateURL accepts an empty string; pair it with validation.Required
// where the URL is mandatory.
func validateURL(schemes ...string) validation.RuleFunc {
	return func(value interface{}) error {
		rawURL, ok := value.(string)
		if !ok {
			return validation.NewError("validation_invalid_type", "must be a string")
		}

		if rawURL == "" {
			return nil
		}

		parsedURL, err := url.Parse(rawURL)
		if err != nil {
			return validation.NewError("validation_invalid_url", "must be a valid URL")
		}

		schemeOK := false
		for _, s := range schemes {
			if parsedURL.Scheme == s {
				schemeOK = true
				break
			}
		}
		if !schemeOK {
			return validation.NewError("validation_invalid_scheme",
				fmt.Sprintf("URL must use %s scheme", strings.Join(schemes, " or ")))
		}

		if parsedURL.Host == "" {
			return validation.NewError("validation_missing_host", "URL must have a host")
		}

		return nil
	}
}
