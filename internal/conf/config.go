package conf

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. RIDECHECK_SHELL_CACHE_NAME.
const EnvPrefix = "RIDECHECK"

// DefaultConfigName is looked up in the search paths when no file is given.
const DefaultConfigName = "ridecheck"

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("shell.cache_name", "ridecheck-v1")
	v.SetDefault("shell.upstream", "")
	v.SetDefault("shell.root", "/")
	v.SetDefault("shell.cache_unsafe_methods", false)
	v.SetDefault("shell.cache_authorized", false)
	v.SetDefault("shell.install_concurrency", 4)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.push_rate_limit", 5.0)
	v.SetDefault("server.push_burst", 10)
	v.SetDefault("server.shutdown_grace", "10s")

	v.SetDefault("storage.type", StorageSQLite)
	v.SetDefault("storage.path", "ridecheck-cache.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.debug", false)

	v.SetDefault("fetch.timeout", "0s")
	v.SetDefault("fetch.max_body_bytes", int64(32<<20))
	v.SetDefault("fetch.user_agent", "ridecheck-shell")

	v.SetDefault("push.mqtt.enabled", false)
	v.SetDefault("push.mqtt.broker", "")
	v.SetDefault("push.mqtt.topic", "ridecheck/push")
	v.SetDefault("push.mqtt.client_id", "")
	v.SetDefault("push.mqtt.username", "")
	v.SetDefault("push.mqtt.password", "")
	v.SetDefault("push.mqtt.qos", 1)
	v.SetDefault("push.mqtt.timeout", "10s")
	v.SetDefault("push.notification_ttl", "24h")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "15m")
	v.SetDefault("alerting.store_failure_threshold", 5)
	v.SetDefault("alerting.store_failure_window", "5m")

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("logging.level", string(logger.LogLevelInfo))
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.timezone", "Local")
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile may be empty, in which case ridecheck.yaml is searched for in
// the working directory and /etc/ridecheck.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ridecheck")
	}
	return v
}

// Load reads configFile (optional) and returns validated settings.
func Load(configFile string) (*Settings, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, errors.Categorize(fmt.Errorf("config file: %w", err), errors.CategoryConfig, "conf")
		}
	}
	return LoadFrom(NewViper(configFile))
}

// LoadFrom decodes and validates settings from an already configured viper.
// A missing config file is not an error when none was named explicitly.
func LoadFrom(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Categorize(fmt.Errorf("read config: %w", err), errors.CategoryConfig, "conf")
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.Categorize(fmt.Errorf("decode config: %w", err), errors.CategoryConfig, "conf")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error

	if strings.TrimSpace(s.Shell.CacheName) == "" {
		errs = append(errs, errors.New("shell.cache_name is required"))
	}
	if err := validateUpstream(s.Shell.Upstream); err != nil {
		errs = append(errs, err)
	}
	if !strings.HasPrefix(s.Shell.Root, "/") {
		errs = append(errs, fmt.Errorf("shell.root must be an absolute path, got %q", s.Shell.Root))
	}

	switch s.Storage.Type {
	case StorageSQLite:
		if s.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case StorageMySQL:
		if s.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for mysql"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of sqlite, mysql, memory; got %q", s.Storage.Type))
	}

	if s.Fetch.Timeout < 0 {
		errs = append(errs, errors.New("fetch.timeout must not be negative"))
	}
	if s.Fetch.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_body_bytes must be positive"))
	}

	if s.Push.MQTT.Enabled {
		if s.Push.MQTT.Broker == "" {
			errs = append(errs, errors.New("push.mqtt.broker is required when mqtt is enabled"))
		}
		if s.Push.MQTT.Topic == "" {
			errs = append(errs, errors.New("push.mqtt.topic is required when mqtt is enabled"))
		}
	}
	if s.Push.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("push.mqtt.qos must be 0, 1 or 2; got %d", s.Push.MQTT.QoS))
	}

	if s.Alerting.Enabled {
		if len(s.Alerting.ShoutrrrURLs) == 0 {
			errs = append(errs, errors.New("alerting.shoutrrr_urls is required when alerting is enabled"))
		}
		if s.Alerting.StoreFailureThreshold < 1 {
			errs = append(errs, errors.New("alerting.store_failure_threshold must be at least 1"))
		}
		if s.Alerting.StoreFailureWindow <= 0 {
			errs = append(errs, errors.New("alerting.store_failure_window must be positive"))
		}
	}

	if _, err := logger.ParseLevel(s.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := s.Logging.Location(); err != nil {
		errs = append(errs, fmt.Errorf("logging.timezone: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Categorize(errors.Join(errs...), errors.CategoryConfig, "conf")
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("shell.upstream is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("shell.upstream: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("shell.upstream must be an http or https URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("shell.upstream has no host: %q", raw)
	}
	return nil
}

// Location resolves the configured log timezone.
func (l LoggingSettings) Location() (*time.Location, error) {
	if l.Timezone == "" || l.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(l.Timezone)
}
