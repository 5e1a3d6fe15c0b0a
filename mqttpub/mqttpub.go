// Package mqttpub publishes line camera measurements to an MQTT broker
package mqttpub

import (
	"encoding/json"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.jpl.nasa.gov/bdube/linescan/mightex"
)

// QoS is the quality of service measurements are published with
const QoS = 1

// ErrTimeout is generated when the broker does not acknowledge in time
var ErrTimeout = errors.New("mqttpub: timed out waiting for broker")

// Sink receives measurements
type Sink interface {
	Publish(mightex.Measurement) error
}

// Config holds the broker connection details
type Config struct {
	// Broker is the URL of the broker, e.g. tcp://localhost:1883
	Broker string `yaml:"Broker" koanf:"Broker"`

	// Topic is the topic measurements are published on
	Topic string `yaml:"Topic" koanf:"Topic"`

	// ClientID identifies this client to the broker
	ClientID string `yaml:"ClientID" koanf:"ClientID"`
}

// client is the part of mqtt.Client a Publisher uses
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher is a Sink backed by an MQTT connection.  A nil *Publisher
// discards everything.
type Publisher struct {
	c       client
	topic   string
	timeout time.Duration
}

// Dial connects to the broker described by cfg
func Dial(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetAutoReconnect(true)
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, ErrTimeout
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &Publisher{c: c, topic: cfg.Topic, timeout: 2 * time.Second}, nil
}

// Publish sends m as JSON and waits for the broker to acknowledge it
func (p *Publisher) Publish(m mightex.Measurement) error {
	if p == nil {
		return nil
	}
	msg, err := json.Marshal(m)
	if err != nil {
		return err
	}
	token := p.c.Publish(p.topic, QoS, false, msg)
	if !token.WaitTimeout(p.timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.c.Disconnect(250)
}
