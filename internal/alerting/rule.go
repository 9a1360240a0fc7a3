// Package alerting raises operator alerts from controller lifecycle events.
package alerting

import (
	"time"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// Rule fires when Threshold events of kind Event arrive within Window.
type Rule struct {
	Name  string
	Event shell.EventKind
	// Threshold of 1 or less fires on every matching event.
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration

	// Title and Message are templates, see renderTemplate.
	Title   string
	Message string
}

// Rule names.
const (
	RuleInstallFailed = "install-failed"
	RuleStoreFailures = "store-failures"
)

// DefaultRules returns the built-in operator alerts.
func DefaultRules(settings conf.AlertingSettings) []Rule {
	cooldown := settings.Cooldown.Std()
	return []Rule{
		{
			Name:      RuleInstallFailed,
			Event:     shell.EventInstallFailed,
			Threshold: 1,
			Cooldown:  cooldown,
			Title:     "RideCheck install failed",
			Message:   "Generation {{generation}} could not be installed: {{error}}",
		},
		{
			Name:      RuleStoreFailures,
			Event:     shell.EventStoreFailed,
			Threshold: settings.StoreFailureThreshold,
			Window:    settings.StoreFailureWindow.Std(),
			Cooldown:  cooldown,
			Title:     "RideCheck cache writes failing",
			Message:   "{{count}} cache writes to {{generation}} failed, last {{key}}: {{error}}",
		},
	}
}
