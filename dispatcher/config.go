package dispatcher

import (
	"net"
	"time"

	"github.com/c360/switchboard/config"
	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	gwhttp "github.com/c360/switchboard/gateway/http"
	"github.com/c360/switchboard/input/mqtt"
	"github.com/c360/switchboard/pkg/tlsutil"
)

// DefaultAddress is where the gateway listens when none is configured
const DefaultAddress = "0.0.0.0:9128"

// NATSConfig enables the change feed when URL is set
type NATSConfig struct {
	URL     string                `json:"url,omitempty"`
	Subject string                `json:"subject,omitempty"`
	TLS     *tlsutil.ClientConfig `json:"tls,omitempty"`
}

// Config wires the whole gateway.
type Config struct {
	// Address is the host:port of the HTTP listener
	Address string `json:"address"`
	// Sensors is where the sensor configuration is loaded and reloaded from
	Sensors config.Source `json:"-"`
	// TickInterval is the TTL tick period
	TickInterval time.Duration `json:"tick_interval"`

	Gateway gateway.Config `json:"gateway"`

	// WebsocketOrigins restricts browser origins of the websocket endpoints;
	// empty keeps the same-host check, "*" allows any origin.
	WebsocketOrigins []string `json:"websocket_origins,omitempty"`
	// RealtimeSendQueue is the outbound frame queue per websocket client; a
	// client whose queue fills up is dropped. Zero keeps the default.
	RealtimeSendQueue int `json:"realtime_send_queue,omitempty"`

	// BroadcastOnChange pushes every change to the events namespace in
	// addition to the broadcast on connect.
	BroadcastOnChange bool `json:"broadcast_on_change"`
	// PushConfigOnReload sends config_response to every joined room after a reload.
	PushConfigOnReload bool `json:"push_config_on_reload"`

	NATS NATSConfig   `json:"nats"`
	MQTT *mqtt.Config `json:"mqtt,omitempty"`

	Build gwhttp.BuildInfo `json:"build"`
}

// DefaultConfig returns defaults for everything but the sensor source.
func DefaultConfig() Config {
	return Config{
		Address:      DefaultAddress,
		TickInterval: time.Second,
		Gateway:      gateway.DefaultConfig(),
	}
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Sensors == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "require sensor source")
	}

	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "parse address "+c.Address)
	}

	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.TickInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "tick interval must be positive")
	}

	if c.RealtimeSendQueue < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "realtime send queue must not be negative")
	}

	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.NATS.TLS.Validate(); err != nil {
		return err
	}
	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	return nil
}
