package shell

import (
	"fmt"
	"strings"

	"github.com/ridecheck/ridecheck/internal/errors"
)

// defaultInstallConcurrency bounds parallel seed fetches during install.
const defaultInstallConcurrency = 4

// Config is fixed when a controller is constructed and read-only afterwards.
type Config struct {
	// CacheName is the generation name for this deployed version. Changing
	// it is the only way to invalidate previously cached entries.
	CacheName string
	// Manifest lists the shell resources fetched and stored at install.
	Manifest []string
	// Root is the application root opened by the explore action.
	Root string

	Notification NotificationTemplate

	// CacheUnsafeMethods applies the routing policy to non GET/HEAD requests.
	CacheUnsafeMethods bool
	// CacheAuthorized applies the routing policy to requests carrying an
	// Authorization header.
	CacheAuthorized bool

	InstallConcurrency int
}

// NotificationTemplate holds the fixed parts of push notifications.
type NotificationTemplate struct {
	Title       string               `mapstructure:"title"`
	DefaultBody string               `mapstructure:"defaultbody"`
	Icon        string               `mapstructure:"icon"`
	Badge       string               `mapstructure:"badge"`
	Vibrate     []int                `mapstructure:"vibrate"`
	Actions     []NotificationAction `mapstructure:"actions"`
}

// DefaultManifest is the application shell: root document, web app
// manifest, icons and the client-rendered top-level routes.
func DefaultManifest() []string {
	manifest := []string{"/", "/manifest.json"}
	for _, size := range []int{72, 96, 128, 144, 152, 192, 384, 512} {
		manifest = append(manifest, fmt.Sprintf("/icons/icon-%dx%d.png", size, size))
	}
	return append(manifest,
		"/login",
		"/dashboard",
		"/inspections/new",
		"/vehicles",
		"/admin",
	)
}

// DefaultNotificationTemplate returns the stock push notification template.
func DefaultNotificationTemplate() NotificationTemplate {
	return NotificationTemplate{
		Title:       "RideCheck",
		DefaultBody: "New update from RideCheck",
		Icon:        "/icons/icon-192x192.png",
		Badge:       "/icons/icon-72x72.png",
		Vibrate:     []int{100, 50, 100},
		Actions: []NotificationAction{
			{Action: ActionExplore, Title: "Open RideCheck", Icon: "/icons/icon-96x96.png"},
			{Action: ActionClose, Title: "Close", Icon: "/icons/icon-72x72.png"},
		},
	}
}

// Validate checks the fields that have no usable default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheName) == "" {
		return errors.Categorize(errors.New("cache name is required"), errors.CategoryConfig, "shell")
	}
	for _, path := range c.Manifest {
		if path == "" {
			return errors.Categorize(errors.New("manifest contains an empty path"), errors.CategoryConfig, "shell")
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Manifest == nil {
		c.Manifest = DefaultManifest()
	}
	if c.Root == "" {
		c.Root = "/"
	}
	if c.InstallConcurrency <= 0 {
		c.InstallConcurrency = defaultInstallConcurrency
	}
	def := DefaultNotificationTemplate()
	n := &c.Notification
	if n.Title == "" {
		n.Title = def.Title
	}
	if n.DefaultBody == "" {
		n.DefaultBody = def.DefaultBody
	}
	if n.Icon == "" {
		n.Icon = def.Icon
	}
	if n.Badge == "" {
		n.Badge = def.Badge
	}
	if n.Vibrate == nil {
		n.Vibrate = def.Vibrate
	}
	if n.Actions == nil {
		n.Actions = def.Actions
	}
	return c
}
