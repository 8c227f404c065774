// Package transport connects the simulation core to the message bus the
// control loop talks over. Control commands arrive on an MQTT topic;
// measurements and poses go out on two more.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/signalsfoundry/rover-simulator/internal/logging"
	"github.com/signalsfoundry/rover-simulator/model"
)

// Options configures the MQTT bus connection and topic layout.
type Options struct {
	Broker           string
	ClientID         string
	Username         string
	Password         string
	ControlTopic     string
	MeasurementTopic string
	PoseTopic        string
	QoS              byte
	ConnectTimeout   time.Duration
	PublishTimeout   time.Duration
}

func (o *Options) applyDefaults() {
	if o.ClientID == "" {
		o.ClientID = "rover-simulator"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 3 * time.Second
	}
}

// Bus is the MQTT adapter. It implements the core's publisher interfaces and
// feeds subscribed control commands into a handler.
type Bus struct {
	log    logging.Logger
	client paho.Client
	opts   Options
}

// Dial connects to the broker. The returned Bus is ready to publish;
// SubscribeControl wires the inbound side.
func Dial(opts Options, log logging.Logger) (*Bus, error) {
	opts.applyDefaults()
	if log == nil {
		log = logging.Noop()
	}
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is empty")
	}

	cfg := paho.NewClientOptions()
	cfg.AddBroker(opts.Broker)
	cfg.SetClientID(opts.ClientID)
	cfg.SetCleanSession(true)
	cfg.SetAutoReconnect(true)
	cfg.SetMaxReconnectInterval(10 * time.Second)
	cfg.SetKeepAlive(30 * time.Second)
	cfg.SetConnectTimeout(opts.ConnectTimeout)
	if opts.Username != "" {
		cfg.SetUsername(opts.Username)
		cfg.SetPassword(opts.Password)
	}

	b := &Bus{log: log, opts: opts}
	cfg.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log.Warn(context.Background(), "mqtt connection lost", logging.String("error", err.Error()))
	})
	cfg.SetOnConnectHandler(func(_ paho.Client) {
		b.log.Info(context.Background(), "mqtt connected", logging.String("broker", opts.Broker))
	})

	client := paho.NewClient(cfg)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out after %v", opts.Broker, opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", opts.Broker, err)
	}

	b.client = client
	return b, nil
}

// SubscribeControl routes velocity commands from the control topic into the
// handler. Malformed payloads are logged and dropped; a bad message never
// reaches the simulation.
func (b *Bus) SubscribeControl(handler func(model.Twist)) error {
	if b.opts.ControlTopic == "" {
		return fmt.Errorf("mqtt: control topic is empty")
	}
	token := b.client.Subscribe(b.opts.ControlTopic, b.opts.QoS, func(_ paho.Client, msg paho.Message) {
		cmd, err := DecodeTwist(msg.Payload())
		if err != nil {
			b.log.Warn(context.Background(), "dropping malformed control command",
				logging.String("topic", msg.Topic()),
				logging.String("error", err.Error()),
			)
			return
		}
		handler(cmd)
	})
	if !token.WaitTimeout(b.opts.ConnectTimeout) {
		return fmt.Errorf("mqtt: subscribe %s timed out", b.opts.ControlTopic)
	}
	return token.Error()
}

// PublishMeasurement implements core.MeasurementPublisher.
func (b *Bus) PublishMeasurement(ctx context.Context, m model.Measurement) error {
	return b.publishJSON(b.opts.MeasurementTopic, m)
}

// PublishPose implements core.PosePublisher.
func (b *Bus) PublishPose(ctx context.Context, p model.Pose) error {
	return b.publishJSON(b.opts.PoseTopic, p)
}

func (b *Bus) publishJSON(topic string, v any) error {
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: encode payload for %s: %w", topic, err)
	}
	token := b.client.Publish(topic, b.opts.QoS, false, payload)
	if !token.WaitTimeout(b.opts.PublishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out after %v", topic, b.opts.PublishTimeout)
	}
	return token.Error()
}

// Close disconnects from the broker, allowing a short drain for in-flight
// messages.
func (b *Bus) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

// DecodeTwist parses a JSON velocity command.
func DecodeTwist(payload []byte) (model.Twist, error) {
	var cmd model.Twist
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return model.Twist{}, err
	}
	return cmd, nil
}
