package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridecheck/ridecheck/internal/shell"
)

func TestDefaultRules(t *testing.T) {
	t.Parallel()
	rules := DefaultRules(testSettings())
	require.Len(t, rules, 2)

	install := rules[0]
	assert.Equal(t, shell.EventInstallFailed, install.Event)
	assert.Equal(t, 1, install.Threshold)
	assert.Equal(t, 15*time.Minute, install.Cooldown)

	store := rules[1]
	assert.Equal(t, shell.EventStoreFailed, store.Event)
	assert.Equal(t, 3, store.Threshold)
	assert.Equal(t, 5*time.Minute, store.Window)
	assert.Contains(t, store.Message, "{{count}}")
}
