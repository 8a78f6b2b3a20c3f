// Package main implements the switchboard command: a real-time sensor
// gateway serving a control API, websocket namespaces and Prometheus
// metrics from one sensor configuration file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/switchboard/config"
	"github.com/c360/switchboard/dispatcher"
	"github.com/c360/switchboard/gateway"
	gwhttp "github.com/c360/switchboard/gateway/http"
	"github.com/c360/switchboard/input/mqtt"
	"github.com/c360/switchboard/pkg/eventid"
)

// Build information, overridden with -ldflags "-X main.Version=..."
var (
	Version   = "0.1.0"
	Commit    = ""
	BuildTime = "dev"
)

const appName = "switchboard"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cliCfg, err := parseFlags(args, os.Stderr)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, stdout)
	slog.SetDefault(logger)

	source := config.FileSource{Path: cliCfg.SensorConfig, Template: cliCfg.Template}
	if cliCfg.Validate {
		return validateSensors(source)
	}

	slog.Info("Starting Switchboard",
		"version", Version,
		"build_time", BuildTime,
		"sensor_config", source.String())

	d, err := dispatcher.New(buildConfig(cliCfg, source), logger)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	return runWithSignalHandling(context.Background(), d, cliCfg)
}

func validateSensors(source config.FileSource) error {
	cfg, err := source.Load()
	if err != nil {
		return fmt.Errorf("invalid sensor configuration: %w", err)
	}
	nodes := 0
	for _, gw := range cfg.GatewayIDs() {
		nodes += len(cfg.Gateways[gw])
	}
	slog.Info("Sensor configuration is valid",
		"gateways", len(cfg.Gateways),
		"nodes", nodes,
		"sensors", cfg.SensorCount())
	return nil
}

func buildConfig(cliCfg *CLIConfig, source config.Source) dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	cfg.Address = cliCfg.ListenAddress()
	cfg.Sensors = source
	cfg.TickInterval = cliCfg.TickInterval
	cfg.Gateway.CORSOrigins = cliCfg.CORSOrigins
	cfg.WebsocketOrigins = cliCfg.CORSOrigins
	cfg.BroadcastOnChange = cliCfg.BroadcastOnChange
	cfg.PushConfigOnReload = cliCfg.PushConfigOnReload
	cfg.RealtimeSendQueue = cliCfg.RealtimeSendQueue
	brokerTLS := cliCfg.BrokerTLS()
	cfg.NATS = dispatcher.NATSConfig{URL: cliCfg.NATSURL, Subject: cliCfg.NATSSubject, TLS: brokerTLS}
	if cliCfg.MQTTBroker != "" {
		mqttCfg := mqtt.DefaultConfig(cliCfg.MQTTBroker)
		mqttCfg.Topic = cliCfg.MQTTTopic
		mqttCfg.TLS = brokerTLS
		cfg.MQTT = &mqttCfg
	}
	cfg.Build = gwhttp.BuildInfo{Version: Version, Commit: Commit, BuildTime: BuildTime}
	return cfg
}

// runWithSignalHandling serves until SIGINT or SIGTERM. SIGHUP reloads the
// sensor configuration; a failed reload keeps the current generation.
func runWithSignalHandling(ctx context.Context, d *dispatcher.Dispatcher, cliCfg *CLIConfig) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start switchboard: %w", err)
	}
	slog.Info("Switchboard started", "address", d.Addr().String())

	events := &eventid.Generator{}
	for running := true; running; {
		select {
		case <-signalCtx.Done():
			running = false
		case <-hup:
			reloadCtx := eventid.WithEvent(signalCtx, events.Next(eventid.PrefixSignal))
			log := eventid.Logger(reloadCtx, slog.Default())
			if res, err := d.ReloadFrom(reloadCtx, gateway.ChannelSignal); err != nil {
				log.Error("Reload on SIGHUP failed, keeping current generation", "error", err)
			} else {
				log.Info("Reloaded on SIGHUP", "generation", res.Generation, "nodes", res.Nodes)
			}
		}
	}
	slog.Info("Received shutdown signal")

	if err := d.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Switchboard shutdown complete")
	return nil
}
