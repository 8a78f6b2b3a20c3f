package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/c360/switchboard/pkg/tlsutil"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	Address         string
	Port            int
	SensorConfig    string
	Template        bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	TickInterval    time.Duration
	CORSOrigins     []string

	BroadcastOnChange  bool
	PushConfigOnReload bool
	RealtimeSendQueue  int

	NATSURL     string
	NATSSubject string
	MQTTBroker  string
	MQTTTopic   string

	BrokerCAFile   string
	BrokerCertFile string
	BrokerKeyFile  string

	ShowVersion bool
	Validate    bool
}

// BrokerTLS returns the TLS settings shared by the brokers, nil when none are set.
func (c *CLIConfig) BrokerTLS() *tlsutil.ClientConfig {
	tlsCfg := &tlsutil.ClientConfig{CertFile: c.BrokerCertFile, KeyFile: c.BrokerKeyFile}
	if c.BrokerCAFile != "" {
		tlsCfg.CAFiles = []string{c.BrokerCAFile}
	}
	if !tlsCfg.Enabled() {
		return nil
	}
	return tlsCfg
}

// ListenAddress joins address and port.
func (c *CLIConfig) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// stringVar registers the same string flag under a short and a long name.
func stringVar(fs *flag.FlagSet, p *string, short, long, value, usage string) {
	fs.StringVar(p, long, value, usage)
	if short != "" {
		fs.StringVar(p, short, value, usage)
	}
}

func parseFlags(args []string, output io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	stringVar(fs, &cfg.Address, "a", "address",
		getEnv("SWITCHBOARD_ADDRESS", "0.0.0.0"),
		"Address to listen on (env: SWITCHBOARD_ADDRESS)")

	fs.IntVar(&cfg.Port, "port", getEnvInt("SWITCHBOARD_PORT", 9128),
		"Port to listen on (env: SWITCHBOARD_PORT)")
	fs.IntVar(&cfg.Port, "p", getEnvInt("SWITCHBOARD_PORT", 9128),
		"Port to listen on (env: SWITCHBOARD_PORT)")

	stringVar(fs, &cfg.SensorConfig, "c", "sensor-config",
		getEnv("SWITCHBOARD_SENSOR_CONFIG", "conf/sensors.yml"),
		"Path to the sensor configuration (env: SWITCHBOARD_SENSOR_CONFIG)")

	fs.BoolVar(&cfg.Template, "template", getEnvBool("SWITCHBOARD_TEMPLATE", false),
		"Render the sensor configuration as a template first (env: SWITCHBOARD_TEMPLATE)")
	fs.BoolVar(&cfg.Template, "j", getEnvBool("SWITCHBOARD_TEMPLATE", false),
		"Render the sensor configuration as a template first (env: SWITCHBOARD_TEMPLATE)")

	stringVar(fs, &cfg.LogLevel, "l", "log-level",
		getEnv("SWITCHBOARD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SWITCHBOARD_LOG_LEVEL)")

	stringVar(fs, &cfg.LogFormat, "", "log-format",
		getEnv("SWITCHBOARD_LOG_FORMAT", "json"),
		"Log format: json, text (env: SWITCHBOARD_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("SWITCHBOARD_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: SWITCHBOARD_SHUTDOWN_TIMEOUT)")

	fs.DurationVar(&cfg.TickInterval, "tick-interval",
		getEnvDuration("SWITCHBOARD_TICK_INTERVAL", time.Second),
		"TTL tick period (env: SWITCHBOARD_TICK_INTERVAL)")

	var origins string
	stringVar(fs, &origins, "", "cors-origins",
		getEnv("SWITCHBOARD_CORS_ORIGINS", ""),
		"Comma separated CORS and websocket origins, * for any (env: SWITCHBOARD_CORS_ORIGINS)")

	fs.BoolVar(&cfg.BroadcastOnChange, "broadcast-on-change",
		getEnvBool("SWITCHBOARD_BROADCAST_ON_CHANGE", false),
		"Push every change to the events namespace (env: SWITCHBOARD_BROADCAST_ON_CHANGE)")
	fs.BoolVar(&cfg.PushConfigOnReload, "push-config-on-reload",
		getEnvBool("SWITCHBOARD_PUSH_CONFIG_ON_RELOAD", false),
		"Send the new configuration to joined rooms after a reload (env: SWITCHBOARD_PUSH_CONFIG_ON_RELOAD)")

	fs.IntVar(&cfg.RealtimeSendQueue, "realtime-send-queue",
		getEnvInt("SWITCHBOARD_REALTIME_SEND_QUEUE", 64),
		"Frames queued per websocket client before it is dropped (env: SWITCHBOARD_REALTIME_SEND_QUEUE)")

	stringVar(fs, &cfg.NATSURL, "", "nats-url", getEnv("SWITCHBOARD_NATS_URL", ""),
		"NATS server for the change feed, empty disables it (env: SWITCHBOARD_NATS_URL)")
	stringVar(fs, &cfg.NATSSubject, "", "nats-subject", getEnv("SWITCHBOARD_NATS_SUBJECT", "switchboard.changes"),
		"Subject prefix of the change feed (env: SWITCHBOARD_NATS_SUBJECT)")
	stringVar(fs, &cfg.MQTTBroker, "", "mqtt-broker", getEnv("SWITCHBOARD_MQTT_BROKER", ""),
		"MQTT broker to ingest from, empty disables it (env: SWITCHBOARD_MQTT_BROKER)")
	stringVar(fs, &cfg.MQTTTopic, "", "mqtt-topic", getEnv("SWITCHBOARD_MQTT_TOPIC", "switchboard/sensors"),
		"MQTT topic prefix (env: SWITCHBOARD_MQTT_TOPIC)")

	stringVar(fs, &cfg.BrokerCAFile, "", "broker-ca-file", getEnv("SWITCHBOARD_BROKER_CA_FILE", ""),
		"Extra CA certificate for NATS and MQTT over TLS (env: SWITCHBOARD_BROKER_CA_FILE)")
	stringVar(fs, &cfg.BrokerCertFile, "", "broker-cert-file", getEnv("SWITCHBOARD_BROKER_CERT_FILE", ""),
		"Client certificate for the brokers (env: SWITCHBOARD_BROKER_CERT_FILE)")
	stringVar(fs, &cfg.BrokerKeyFile, "", "broker-key-file", getEnv("SWITCHBOARD_BROKER_KEY_FILE", ""),
		"Client key for the brokers (env: SWITCHBOARD_BROKER_KEY_FILE)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "V", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate the sensor configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if _, err := os.Stat(cfg.SensorConfig); err != nil {
		return fmt.Errorf("sensor config not found: %s", cfg.SensorConfig)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.LogLevel)) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, strings.ToLower(cfg.LogFormat)) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.RealtimeSendQueue <= 0 {
		return fmt.Errorf("invalid realtime send queue: %d", cfg.RealtimeSendQueue)
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval: %s", cfg.TickInterval)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, `%s - real-time sensor gateway

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(out, `
Examples:
  # Serve a sensor file on port 8000
  %s -c /etc/switchboard/sensors.yml -p 8000

  # Render the sensor file as a template, with text logs
  %s -j -c sensors.yml.tmpl --log-format=text --log-level=debug

  # Publish changes to NATS and ingest from MQTT
  %s --nats-url=nats://localhost:4222 --mqtt-broker=tcp://localhost:1883

  # Check the sensor configuration only
  %s --validate

Send SIGHUP to reload the sensor configuration.

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
