// Package pushsub feeds push payloads published on an MQTT topic to the
// shell's active controller.
package pushsub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
)

const (
	defaultTimeout      = 10 * time.Second
	disconnectQuiesceMs = 250
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Handler receives push payloads. shell.Registration satisfies it.
type Handler interface {
	OnPush(ctx context.Context, payload []byte) error
}

// Config describes the broker connection.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	// Timeout bounds connect, subscribe and each OnPush call.
	Timeout time.Duration
}

// ConfigFromSettings maps the MQTT section of the settings file.
func ConfigFromSettings(s conf.MQTTSettings) Config {
	return Config{
		Broker:   s.Broker,
		Topic:    s.Topic,
		ClientID: s.ClientID,
		Username: s.Username,
		Password: s.Password,
		QoS:      s.QoS,
		Timeout:  s.Timeout.Std(),
	}
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Broker) == "" {
		errs = append(errs, errors.New("mqtt broker is required"))
	}
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("mqtt topic is required"))
	}
	if strings.ContainsAny(c.Topic, "+#") {
		errs = append(errs, fmt.Errorf("mqtt topic %q must not contain wildcards", c.Topic))
	}
	if c.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos %d out of range", c.QoS))
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Categorize(err, errors.CategoryConfig, "pushsub")
	}
	return nil
}

// Stats counts handled messages.
type Stats struct {
	Received uint64
	Failed   uint64
}

// Subscriber maintains the broker connection and subscription.
type Subscriber struct {
	cfg     Config
	handler Handler
	log     logger.Logger

	mu     sync.Mutex
	client mqtt.Client

	received atomic.Uint64
	failed   atomic.Uint64
	// connected is set after the first successful subscribe; later
	// OnConnect callbacks are reconnects.
	connected atomic.Bool
}

// New validates cfg. It does not connect.
func New(cfg Config, handler Handler, log logger.Logger) (*Subscriber, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.Categorize(errors.New("push handler is required"), errors.CategoryConfig, "pushsub")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "ridecheck-" + uuid.NewString()[:8]
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Subscriber{cfg: cfg, handler: handler, log: log.Module("pushsub")}, nil
}

func (s *Subscriber) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetConnectTimeout(s.cfg.Timeout)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("mqtt connection lost", logger.String("broker", s.cfg.Broker), logger.Error(err))
	})
	return opts
}

// Connect connects to the broker and subscribes to the push topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.client.IsConnected() {
		return nil
	}

	client := mqtt.NewClient(s.clientOptions())
	if err := waitToken(ctx, client.Connect(), s.cfg.Timeout); err != nil {
		client.Disconnect(0)
		return errors.Categorize(fmt.Errorf("connect to %s: %w", s.cfg.Broker, err), errors.CategoryNetwork, "pushsub")
	}
	if err := waitToken(ctx, client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage), s.cfg.Timeout); err != nil {
		client.Disconnect(disconnectQuiesceMs)
		return errors.Categorize(fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err), errors.CategoryNetwork, "pushsub")
	}
	s.client = client
	s.connected.Store(true)

	s.log.Info("subscribed to push topic",
		logger.String("broker", s.cfg.Broker),
		logger.String("topic", s.cfg.Topic),
		logger.Int("qos", int(s.cfg.QoS)))
	return nil
}

// onConnect restores the subscription after an automatic reconnect.
func (s *Subscriber) onConnect(client mqtt.Client) {
	if !s.connected.Load() {
		return
	}
	token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	go func() {
		if err := waitToken(context.Background(), token, s.cfg.Timeout); err != nil {
			s.log.Error("resubscribe failed", logger.String("topic", s.cfg.Topic), logger.Error(err))
			return
		}
		s.log.Info("resubscribed after reconnect", logger.String("topic", s.cfg.Topic))
	}()
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.received.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if err := s.handler.OnPush(ctx, msg.Payload()); err != nil {
		s.failed.Add(1)
		s.log.Warn("push handling failed",
			logger.String("topic", msg.Topic()),
			logger.Int("bytes", len(msg.Payload())),
			logger.Error(err))
		return
	}
	s.log.Debug("push handled", logger.String("topic", msg.Topic()), logger.Int("bytes", len(msg.Payload())))
}

// IsConnected reports whether the client currently holds a connection.
func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}

// Stats returns message counters.
func (s *Subscriber) Stats() Stats {
	return Stats{Received: s.received.Load(), Failed: s.failed.Load()}
}

// Disconnect unsubscribes and closes the connection.
func (s *Subscriber) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}
	s.connected.Store(false)
	if client.IsConnected() {
		if err := waitToken(context.Background(), client.Unsubscribe(s.cfg.Topic), s.cfg.Timeout); err != nil {
			s.log.Debug("unsubscribe failed", logger.Error(err))
		}
	}
	client.Disconnect(disconnectQuiesceMs)
	s.log.Info("disconnected from broker", logger.String("broker", s.cfg.Broker))
}

// Run connects, then blocks until ctx ends and disconnects.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Disconnect()
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
