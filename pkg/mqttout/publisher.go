// Package mqttout publishes gaze decisions to an MQTT broker so other
// programs can be driven by where the user is looking. It also accepts
// confirm/cancel events on a command topic.
package mqttout

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("mqttout: not connected")

// Config holds MQTT settings.
type Config struct {
	Broker      string        `yaml:"broker"`       // e.g. tcp://localhost:1883; empty disables MQTT
	TopicPrefix string        `yaml:"topic_prefix"` // topics are {prefix}/gaze and {prefix}/events
	ClientID    string        `yaml:"client_id"`    // random when empty
	QoS         byte          `yaml:"qos"`
	Retained    bool          `yaml:"retained"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig returns defaults with MQTT disabled.
func DefaultConfig() Config {
	return Config{
		TopicPrefix: "eyecommander",
		Timeout:     5 * time.Second,
	}
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// GazeTopic is where decisions are published.
func (c Config) GazeTopic() string { return strings.TrimSuffix(c.TopicPrefix, "/") + "/gaze" }

// EventTopic is where confirm/cancel commands are received.
func (c Config) EventTopic() string { return strings.TrimSuffix(c.TopicPrefix, "/") + "/events" }

// Payload is the JSON body of a gaze message.
type Payload struct {
	Label      gaze.Label `json:"label"`
	Confidence float64    `json:"confidence"`
	Time       time.Time  `json:"time"`
	Source     string     `json:"source"`
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Publisher sends decisions to the broker.
type Publisher struct {
	cfg    Config
	log    *slog.Logger
	client client

	mu        sync.Mutex
	connected bool

	// OnEvent receives events from the command topic.
	OnEvent func(trigger.Event) bool
}

// New creates a publisher for cfg. It does not connect.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "eyecommander-" + uuid.New().String()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultConfig().TopicPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{cfg: cfg, log: logger.With("broker", cfg.Broker, "client_id", cfg.ClientID)}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(2 * time.Second)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c mqtt.Client) {
		p.log.Info("connected to MQTT")
		p.subscribe(c)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.log.Warn("MQTT connection lost", "error", err)
	}
	p.client = mqtt.NewClient(opts)
	return p
}

// Config returns the effective configuration.
func (p *Publisher) Config() Config { return p.cfg }

// Connect connects to the broker and waits up to the configured timeout.
func (p *Publisher) Connect() error {
	p.log.Info("connecting to MQTT")
	token := p.client.Connect()
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("mqttout: connect to %s: timeout", p.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttout: connect to %s: %w", p.cfg.Broker, err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Publisher) subscribe(c client) {
	topic := p.cfg.EventTopic()
	token := c.Subscribe(topic, p.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		p.handleEvent(m.Payload())
	})
	if token.WaitTimeout(p.cfg.Timeout) && token.Error() != nil {
		p.log.Warn("MQTT subscribe failed", "topic", topic, "error", token.Error())
		return
	}
	p.log.Info("subscribed", "topic", topic)
}

// handleEvent accepts a bare event name or {"event": name}.
func (p *Publisher) handleEvent(payload []byte) {
	name := strings.TrimSpace(string(payload))
	var body struct {
		Event string `json:"event"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Event != "" {
		name = body.Event
	}
	ev, err := trigger.Parse(name)
	if err != nil {
		p.log.Warn("ignoring MQTT command", "payload", string(payload), "error", err)
		return
	}
	if p.OnEvent == nil || !p.OnEvent(ev) {
		p.log.Warn("MQTT command dropped", "event", ev.String())
	}
}

// Publish sends d to the gaze topic.
func (p *Publisher) Publish(d gaze.Decision) error {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	payload, err := json.Marshal(Payload{
		Label:      d.Label,
		Confidence: d.Confidence,
		Time:       time.Now().UTC(),
		Source:     p.cfg.ClientID,
	})
	if err != nil {
		return err
	}

	token := p.client.Publish(p.cfg.GazeTopic(), p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("mqttout: publish %s: timeout", p.cfg.GazeTopic())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttout: publish %s: %w", p.cfg.GazeTopic(), err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.client.Disconnect(250)
		p.connected = false
	}
	return nil
}
