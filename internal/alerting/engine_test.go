package alerting

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/shell"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []*Alert
}

func (r *alertRecorder) record(a *Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *alertRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) event(kind shell.EventKind) *shell.LifecycleEvent {
	return &shell.LifecycleEvent{Kind: kind, Generation: "ridecheck-v2", Timestamp: c.t}
}

func testSettings() conf.AlertingSettings {
	return conf.AlertingSettings{
		Enabled:               true,
		Cooldown:              conf.Duration(15 * time.Minute),
		StoreFailureThreshold: 3,
		StoreFailureWindow:    conf.Duration(5 * time.Minute),
	}
}

func newTestEngine(t *testing.T) (*Engine, *alertRecorder, *fakeClock) {
	t.Helper()
	rec := &alertRecorder{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e := NewEngine(DefaultRules(testSettings()), rec.record, nil)
	e.now = clock.now
	return e, rec, clock
}

func TestEngine_InstallFailureFiresImmediately(t *testing.T) {
	t.Parallel()
	e, rec, clock := newTestEngine(t)

	ev := clock.event(shell.EventInstallFailed)
	ev.Err = errors.New("manifest entry /app.js: status 404")
	e.HandleEvent(ev)

	require.Equal(t, 1, rec.count())
	alert := rec.alerts[0]
	assert.Equal(t, RuleInstallFailed, alert.Rule.Name)
	assert.Equal(t, 1, alert.Count)
	assert.Same(t, ev, alert.Event)
	assert.Equal(t, clock.t, alert.FiredAt)
}

func TestEngine_IgnoresOtherKinds(t *testing.T) {
	t.Parallel()
	e, rec, clock := newTestEngine(t)

	for _, kind := range []shell.EventKind{shell.EventInstalled, shell.EventActivated, shell.EventClaimed, shell.EventGenerationDeleted} {
		e.HandleEvent(clock.event(kind))
	}
	e.HandleEvent(nil)

	assert.Zero(t, rec.count())
}

func TestEngine_Cooldown(t *testing.T) {
	t.Parallel()
	e, rec, clock := newTestEngine(t)

	e.HandleEvent(clock.event(shell.EventInstallFailed))
	clock.advance(10 * time.Minute)
	e.HandleEvent(clock.event(shell.EventInstallFailed))
	assert.Equal(t, 1, rec.count(), "second failure is inside the cooldown")

	clock.advance(6 * time.Minute)
	e.HandleEvent(clock.event(shell.EventInstallFailed))
	assert.Equal(t, 2, rec.count())
}

func TestEngine_StoreFailureThreshold(t *testing.T) {
	t.Parallel()
	e, rec, clock := newTestEngine(t)

	e.HandleEvent(clock.event(shell.EventStoreFailed))
	clock.advance(time.Minute)
	e.HandleEvent(clock.event(shell.EventStoreFailed))
	assert.Zero(t, rec.count())

	clock.advance(time.Minute)
	e.HandleEvent(clock.event(shell.EventStoreFailed))
	require.Equal(t, 1, rec.count())
	assert.Equal(t, RuleStoreFailures, rec.alerts[0].Rule.Name)
	assert.Equal(t, 3, rec.alerts[0].Count)
}

func TestEngine_StoreFailuresOutsideWindow(t *testing.T) {
	t.Parallel()
	e, rec, clock := newTestEngine(t)

	for range 3 {
		e.HandleEvent(clock.event(shell.EventStoreFailed))
		clock.advance(3 * time.Minute)
	}

	assert.Zero(t, rec.count(), "failures spread over more than the window never reach the threshold")
}

func TestEngine_Recent(t *testing.T) {
	t.Parallel()
	rec := &alertRecorder{}
	rules := []Rule{{Name: "every-install", Event: shell.EventInstalled, Threshold: 1}}
	e := NewEngine(rules, rec.record, nil)

	for range maxHistory + 5 {
		e.HandleEvent(&shell.LifecycleEvent{Kind: shell.EventInstalled})
	}

	recent := e.Recent()
	assert.Len(t, recent, maxHistory)
	assert.Equal(t, maxHistory+5, rec.count())
}

func TestEngine_AttachReceivesBusEvents(t *testing.T) {
	t.Parallel()
	rec := &alertRecorder{}
	e := NewEngine(DefaultRules(testSettings()), rec.record, nil)
	bus := shell.NewEventBus()
	e.Attach(bus)

	bus.Publish(&shell.LifecycleEvent{Kind: shell.EventInstallFailed, Generation: "ridecheck-v3"})
	bus.Stop()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "ridecheck-v3", rec.alerts[0].Event.Generation)
}

func TestEventTracker(t *testing.T) {
	t.Parallel()
	tr := newEventTracker()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, tr.Record("r", base, time.Minute))
	assert.Equal(t, 2, tr.Record("r", base.Add(30*time.Second), time.Minute))
	assert.Equal(t, 2, tr.Record("r", base.Add(61*time.Second), time.Minute))
	assert.Equal(t, 1, tr.Record("other", base, time.Minute))

	tr.Reset("r")
	assert.Equal(t, 1, tr.Record("r", base.Add(62*time.Second), time.Minute))

	assert.Equal(t, 1, tr.Record("unwindowed", base, 0))
	assert.Equal(t, 1, tr.Record("unwindowed", base, 0))
}
