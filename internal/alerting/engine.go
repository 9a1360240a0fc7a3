package alerting

import (
	"sync"
	"time"

	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// maxHistory is how many fired alerts Recent keeps.
const maxHistory = 50

// Alert is a fired rule.
type Alert struct {
	Rule    *Rule
	Event   *shell.LifecycleEvent
	Count   int
	FiredAt time.Time
}

// ActionFunc is called when a rule fires.
type ActionFunc func(alert *Alert)

// Engine matches lifecycle events against rules.
type Engine struct {
	rules   []Rule
	tracker *eventTracker
	action  ActionFunc
	log     logger.Logger
	now     func() time.Time

	// Cooldowns are in-memory and reset on restart.
	mu        sync.Mutex
	cooldowns map[string]time.Time
	history   []Alert
}

// NewEngine creates an engine for rules.
func NewEngine(rules []Rule, action ActionFunc, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		rules:     append([]Rule(nil), rules...),
		tracker:   newEventTracker(),
		action:    action,
		log:       log.Module("alerting"),
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
}

// Attach subscribes the engine to bus.
func (e *Engine) Attach(bus *shell.EventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(e.HandleEvent)
}

// HandleEvent evaluates event against every rule for its kind.
func (e *Engine) HandleEvent(event *shell.LifecycleEvent) {
	if event == nil {
		return
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	for i := range e.rules {
		rule := &e.rules[i]
		if rule.Event != event.Kind {
			continue
		}
		count := e.tracker.Record(rule.Name, ts, rule.Window)
		if count < rule.Threshold {
			continue
		}
		if e.inCooldown(rule) {
			e.log.Debug("alert suppressed by cooldown", logger.String("rule", rule.Name))
			continue
		}
		e.fire(rule, event, count)
	}
}

func (e *Engine) inCooldown(rule *Rule) bool {
	if rule.Cooldown <= 0 {
		return false
	}
	e.mu.Lock()
	last, ok := e.cooldowns[rule.Name]
	e.mu.Unlock()
	return ok && e.now().Sub(last) < rule.Cooldown
}

func (e *Engine) fire(rule *Rule, event *shell.LifecycleEvent, count int) {
	alert := Alert{Rule: rule, Event: event, Count: count, FiredAt: e.now()}

	e.mu.Lock()
	e.cooldowns[rule.Name] = alert.FiredAt
	e.history = append(e.history, alert)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
	e.mu.Unlock()
	e.tracker.Reset(rule.Name)

	e.log.Warn("alert fired",
		logger.String("rule", rule.Name),
		logger.String("generation", event.Generation),
		logger.Int("count", count))
	if e.action != nil {
		e.action(&alert)
	}
}

// Recent returns fired alerts, oldest first.
func (e *Engine) Recent() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Alert(nil), e.history...)
}
