package mqtt

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/pkg/tlsutil"
)

// Config holds the broker connection and topic layout of the bridge.
type Config struct {
	// Broker URL, e.g. tcp://localhost:1883
	Broker string `json:"broker"`
	// Topic prefix; values arrive on <topic>/<node> and <topic>/inc/<node>
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
	QoS      byte   `json:"qos"`

	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	ConnectTimeout time.Duration `json:"connect_timeout"`

	// TLS applies to ssl, tls, wss and mqtts brokers
	TLS *tlsutil.ClientConfig `json:"tls,omitempty"`
}

// DefaultTopic is the prefix used when none is configured
const DefaultTopic = "switchboard/sensors"

// DefaultConfig returns the defaults for broker
func DefaultConfig(broker string) Config {
	return Config{
		Broker:         broker,
		Topic:          DefaultTopic,
		ConnectTimeout: 10 * time.Second,
	}
}

var brokerSchemes = map[string]bool{
	"tcp": true, "ssl": true, "tls": true, "ws": true, "wss": true, "mqtt": true, "mqtts": true,
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "require broker")
	}
	u, err := url.Parse(c.Broker)
	if err != nil || u.Host == "" || !brokerSchemes[u.Scheme] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("parse broker %q", c.Broker))
	}

	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	c.Topic = strings.TrimSuffix(c.Topic, "/")
	if c.Topic == "" || strings.ContainsAny(c.Topic, "+#") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("topic %q must be a plain prefix", c.Topic))
	}

	if c.QoS > 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("qos %d out of range", c.QoS))
	}
	if c.ClientID == "" {
		c.ClientID = "switchboard-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c.TLS.Validate()
}

// Filters returns the subscriptions of the bridge.
func (c Config) Filters() map[string]byte {
	return map[string]byte{
		c.Topic + "/+":     c.QoS,
		c.Topic + "/inc/+": c.QoS,
	}
}
