package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/switchboard/metric"
	"github.com/c360/switchboard/pkg/tlsutil"
)

// ClientOption configures a Client in NewClient. An option returning an
// error aborts construction.
type ClientOption func(*Client) error

// durationOption stores d into the field picked by set after checking it.
// Zero is accepted only when allowZero is set.
func durationOption(name string, d time.Duration, allowZero bool, set func(*Client, time.Duration)) ClientOption {
	return func(c *Client) error {
		if d < 0 || (d == 0 && !allowZero) {
			return fmt.Errorf("%s out of range: %v", name, d)
		}
		set(c, d)
		return nil
	}
}

// WithLogger replaces the default logger; nil is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection state to the feed gauge of registry.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.metrics = registry.CoreMetrics()
		return nil
	}
}

// WithName sets the connection name shown by the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		if name != "" {
			c.clientName = name
		}
		return nil
	}
}

// WithMaxReconnects caps reconnect attempts; -1 retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return durationOption("reconnect wait", d, true, func(c *Client, d time.Duration) { c.reconnectWait = d })
}

// WithPingInterval sets how often the server is pinged.
func WithPingInterval(d time.Duration) ClientOption {
	return durationOption("ping interval", d, false, func(c *Client, d time.Duration) { c.pingInterval = d })
}

// WithTimeout bounds the initial dial.
func WithTimeout(d time.Duration) ClientOption {
	return durationOption("timeout", d, false, func(c *Client, d time.Duration) { c.timeout = d })
}

// WithDrainTimeout bounds how long Close waits for pending publishes.
func WithDrainTimeout(d time.Duration) ClientOption {
	return durationOption("drain timeout", d, true, func(c *Client, d time.Duration) { c.drainTimeout = d })
}

// WithCredentials authenticates with user and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLS secures the connection. A nil or empty cfg leaves it plain.
func WithTLS(cfg *tlsutil.ClientConfig) ClientOption {
	return func(c *Client) (err error) {
		c.tlsConfig, err = tlsutil.LoadClientTLSConfig(cfg)
		return err
	}
}

// WithHealthChangeCallback is called with true on connect and false on disconnect.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}
