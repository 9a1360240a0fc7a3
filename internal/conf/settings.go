// Package conf loads the shell host configuration from a YAML file,
// RIDECHECK_* environment variables and built-in defaults.
package conf

// Settings is the complete host configuration.
type Settings struct {
	Shell     ShellSettings     `mapstructure:"shell" yaml:"shell" json:"shell"`
	Server    ServerSettings    `mapstructure:"server" yaml:"server" json:"server"`
	Storage   StorageSettings   `mapstructure:"storage" yaml:"storage" json:"storage"`
	Fetch     FetchSettings     `mapstructure:"fetch" yaml:"fetch" json:"fetch"`
	Push      PushSettings      `mapstructure:"push" yaml:"push" json:"push"`
	Alerting  AlertingSettings  `mapstructure:"alerting" yaml:"alerting" json:"alerting"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
	Logging   LoggingSettings   `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// ShellSettings describes the deployed controller version.
type ShellSettings struct {
	// CacheName is the generation name for this deployment, e.g. ridecheck-v3.
	// Changing it is what triggers an update.
	CacheName          string               `mapstructure:"cache_name" yaml:"cache_name" json:"cache_name"`
	Upstream           string               `mapstructure:"upstream" yaml:"upstream" json:"upstream"` // application origin
	Manifest           []string             `mapstructure:"manifest" yaml:"manifest" json:"manifest"`
	Root               string               `mapstructure:"root" yaml:"root" json:"root"`
	CacheUnsafeMethods bool                 `mapstructure:"cache_unsafe_methods" yaml:"cache_unsafe_methods" json:"cache_unsafe_methods"`
	CacheAuthorized    bool                 `mapstructure:"cache_authorized" yaml:"cache_authorized" json:"cache_authorized"`
	InstallConcurrency int                  `mapstructure:"install_concurrency" yaml:"install_concurrency" json:"install_concurrency"`
	Notification       NotificationSettings `mapstructure:"notification" yaml:"notification" json:"notification"`
}

// NotificationSettings overrides the push notification template. Empty
// fields keep the built-in RideCheck values.
type NotificationSettings struct {
	Title       string           `mapstructure:"title" yaml:"title" json:"title"`
	DefaultBody string           `mapstructure:"default_body" yaml:"default_body" json:"default_body"`
	Icon        string           `mapstructure:"icon" yaml:"icon" json:"icon"`
	Badge       string           `mapstructure:"badge" yaml:"badge" json:"badge"`
	Vibrate     []int            `mapstructure:"vibrate" yaml:"vibrate" json:"vibrate"`
	Actions     []ActionSettings `mapstructure:"actions" yaml:"actions" json:"actions"`
}

type ActionSettings struct {
	Action string `mapstructure:"action" yaml:"action" json:"action"`
	Title  string `mapstructure:"title" yaml:"title" json:"title"`
	Icon   string `mapstructure:"icon" yaml:"icon" json:"icon"`
}

type ServerSettings struct {
	Listen string `mapstructure:"listen" yaml:"listen" json:"listen"`
	// AdminToken protects the /_shell admin endpoints when set.
	AdminToken    string   `mapstructure:"admin_token" yaml:"admin_token" json:"-"`
	PushRateLimit float64  `mapstructure:"push_rate_limit" yaml:"push_rate_limit" json:"push_rate_limit"` // requests per second
	PushBurst     int      `mapstructure:"push_burst" yaml:"push_burst" json:"push_burst"`
	ShutdownGrace Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace" json:"shutdown_grace"`
}

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type StorageSettings struct {
	Type string `mapstructure:"type" yaml:"type" json:"type"`
	Path string `mapstructure:"path" yaml:"path" json:"path"` // sqlite file
	DSN  string `mapstructure:"dsn" yaml:"dsn" json:"-"`      // mysql
	// Debug logs every SQL statement.
	Debug bool `mapstructure:"debug" yaml:"debug" json:"debug"`
}

type FetchSettings struct {
	// Timeout bounds a whole upstream exchange. Zero means no timeout.
	Timeout      Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	UserAgent    string   `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
}

type PushSettings struct {
	MQTT MQTTSettings `mapstructure:"mqtt" yaml:"mqtt" json:"mqtt"`
	// ShoutrrrURLs receive a copy of every displayed notification.
	ShoutrrrURLs    []string `mapstructure:"shoutrrr_urls" yaml:"shoutrrr_urls" json:"-"`
	NotificationTTL Duration `mapstructure:"notification_ttl" yaml:"notification_ttl" json:"notification_ttl"`
}

type MQTTSettings struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Broker   string   `mapstructure:"broker" yaml:"broker" json:"broker"`
	Topic    string   `mapstructure:"topic" yaml:"topic" json:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
	Username string   `mapstructure:"username" yaml:"username" json:"username"`
	Password string   `mapstructure:"password" yaml:"password" json:"-"`
	QoS      byte     `mapstructure:"qos" yaml:"qos" json:"qos"`
	Timeout  Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// AlertingSettings controls operator alerts raised from controller events.
type AlertingSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// ShoutrrrURLs receive operator alerts. They are separate from the
	// push copies so rider notifications and ops alerts can go apart.
	ShoutrrrURLs []string `mapstructure:"shoutrrr_urls" yaml:"shoutrrr_urls" json:"-"`
	Cooldown     Duration `mapstructure:"cooldown" yaml:"cooldown" json:"cooldown"`
	// StoreFailureThreshold store failures within StoreFailureWindow raise an alert.
	StoreFailureThreshold int      `mapstructure:"store_failure_threshold" yaml:"store_failure_threshold" json:"store_failure_threshold"`
	StoreFailureWindow    Duration `mapstructure:"store_failure_window" yaml:"store_failure_window" json:"store_failure_window"`
}

type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn" json:"-"`
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`
}

type LoggingSettings struct {
	Level    string `mapstructure:"level" yaml:"level" json:"level"`
	JSON     bool   `mapstructure:"json" yaml:"json" json:"json"`
	Timezone string `mapstructure:"timezone" yaml:"timezone" json:"timezone"`
}
