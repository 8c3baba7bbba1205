// thermolink - BMP280 temperature sensor node
//
// The node reads a BMP280 over I2C twice a second, queues each reading and
// streams it to the collector over TCP as one JSON line:
//
//	{"temperature":25.08,"timestamp":123456}
//
// Sampling never blocks on the network. When the collector is unreachable
// readings are dropped at the queue; nothing is buffered to disk.
//
// Optional MQTT and InfluxDB connections carry node status and pipeline
// counters; the sensor pipeline runs without them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/thermolink/internal/infrastructure/config"
	"github.com/nerrad567/thermolink/internal/infrastructure/i2cbus"
	"github.com/nerrad567/thermolink/internal/infrastructure/influxdb"
	"github.com/nerrad567/thermolink/internal/infrastructure/logging"
	"github.com/nerrad567/thermolink/internal/infrastructure/mqtt"
	"github.com/nerrad567/thermolink/internal/link"
	"github.com/nerrad567/thermolink/internal/queue"
	"github.com/nerrad567/thermolink/internal/reading"
	"github.com/nerrad567/thermolink/internal/sampler"
	"github.com/nerrad567/thermolink/internal/sensor"
	"github.com/nerrad567/thermolink/internal/status"
	"github.com/nerrad567/thermolink/internal/uplink"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "thermolink"

	healthCheckTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting thermolink node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateNode(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	base := logging.New(cfg.Logging, serviceName, version)
	defer func() {
		if closeErr := base.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "closing log output: %v\n", closeErr)
		}
	}()
	log = base.With("node_id", cfg.Node.ID)

	clk := clock.New()
	ticks := reading.NewClock(clk)

	// Sensor. A missing or uncalibrated sensor disables sampling but the
	// rest of the node keeps running.
	device, closeBus := openSensor(ctx, cfg.Sensor, log)
	defer closeBus()

	q := queue.New(cfg.Queue.Capacity)

	linkStatus := link.NewStatus()
	monitor := link.NewMonitor(linkStatus, link.InterfaceProbe(cfg.Network.Interface), cfg.Network.LinkPollInterval, clk)
	monitor.SetLogger(log)

	manager := uplink.NewManager(uplink.Config{
		Address:        cfg.Collector.Address(),
		ConnectTimeout: cfg.Collector.ConnectTimeout,
		WriteTimeout:   cfg.Collector.WriteTimeout,
		LinkDownPoll:   cfg.Network.LinkDownPoll,
		RetryDelay:     cfg.Network.RetryDelay,
		ConnectedPoll:  cfg.Network.ConnectedPoll,
	}, linkStatus, nil, clk)
	manager.SetLogger(log)

	transmitter := uplink.NewTransmitter(manager, q, cfg.Queue.PopTimeout, cfg.Network.IdlePoll, clk)
	transmitter.SetLogger(log)

	smp := sampler.New(sampler.Config{
		StartupDelay: cfg.Sensor.StartupDelay,
		Interval:     cfg.Sensor.SampleInterval,
		PushTimeout:  cfg.Queue.PushTimeout,
	}, device, q, ticks)
	smp.SetLogger(log)

	// Optional status reporting.
	mqttClient := connectMQTT(cfg, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}
	influxClient := connectInfluxDB(cfg.InfluxDB, cfg.Node.ID, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	snapshot := func() status.Snapshot {
		return nodeSnapshot(device, linkStatus, manager, smp, transmitter, q)
	}
	reporter := newReporter(cfg, snapshot, mqttClient, influxClient, clk)
	reporter.SetLogger(log)
	manager.SetOnTransition(func(from, to uplink.State) {
		log.Info("collector connection state changed", "from", from.String(), "to", to.String())
		reporter.Trigger()
	})

	checkCtx, cancelCheck := context.WithTimeout(ctx, healthCheckTimeout)
	if err := healthCheck(checkCtx, mqttClient, influxClient); err != nil {
		log.Warn("status connections unhealthy", "error", err)
	}
	cancelCheck()

	log.Info("initialisation complete",
		"collector", cfg.Collector.Address(),
		"sensor_ready", device.Ready(),
		"boot_id", reporter.BootID(),
	)

	g, gctx := errgroup.WithContext(ctx)
	supervise(gctx, g, log, "link monitor", monitor.Run)
	supervise(gctx, g, log, "connection manager", manager.Run)
	supervise(gctx, g, log, "transmitter", transmitter.Run)
	supervise(gctx, g, log, "status reporter", reporter.Run)
	supervise(gctx, g, log, "sampler", func(ctx context.Context) error {
		err := smp.Run(ctx)
		if errors.Is(err, sampler.ErrSensorUnavailable) {
			log.Warn("sampling disabled, node continues without readings")
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	stats := smp.Stats()
	log.Info("thermolink node stopped",
		"sampled", stats.Sampled,
		"dropped", stats.Dropped,
		"sent", transmitter.Stats().Sent,
	)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses THERMOLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("THERMOLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// supervise runs fn in g. A clean shutdown (context cancelled) is not an
// error; anything else is logged and cancels the group.
func supervise(ctx context.Context, g *errgroup.Group, log *logging.Logger, name string, fn func(context.Context) error) {
	g.Go(func() error {
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			log.Debug("task stopped", "task", name)
			return nil
		}
		log.Error("task failed", "task", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	})
}

// openSensor opens the I2C bus, discovers the BMP280 and loads its
// calibration. On any failure it returns a device that is not ready (or
// nil) and logs why.
func openSensor(ctx context.Context, cfg config.SensorConfig, log *logging.Logger) (*sensor.Device, func()) {
	bus, err := i2cbus.Open(cfg.Bus)
	if err != nil {
		log.Error("I2C bus unavailable", "bus", cfg.Bus, "available", i2cbus.Names(), "error", err)
		return nil, func() {}
	}
	closeBus := func() {
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing I2C bus", "error", closeErr)
		}
	}

	device, err := sensor.Discover(bus, cfg.Addresses, log)
	if err != nil {
		log.Error("BMP280 not found", "addresses", cfg.Addresses, "error", err)
		return nil, closeBus
	}
	device.SettleDelay = cfg.SettleDelay

	if _, err := device.InitializeCalibration(ctx); err != nil {
		log.Error("BMP280 calibration failed", "error", err)
		return device, closeBus
	}
	return device, closeBus
}

// healthCheck verifies the optional status connections. Nil clients are
// disabled components and are skipped.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// connectMQTT connects when MQTT is enabled. Failure is logged, not fatal.
func connectMQTT(cfg *config.Config, log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{}.NodeStatus(cfg.Node.ID))
	if err != nil {
		log.Warn("MQTT unavailable, status reporting disabled", "error", err)
		return nil
	}
	client.SetLogger(log)
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", cfg.MQTT.Broker.Address(),
		"status_topic", client.StatusTopic(),
	)
	return client
}

// connectInfluxDB connects when InfluxDB is enabled. Failure is logged, not fatal.
func connectInfluxDB(cfg config.InfluxDBConfig, nodeID string, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg, nodeID)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, metrics disabled", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return client
}

func newReporter(cfg *config.Config, snapshot func() status.Snapshot, mqttClient *mqtt.Client, influxClient *influxdb.Client, clk clock.Clock) *status.Reporter {
	rc := status.Config{
		NodeID:   cfg.Node.ID,
		Version:  version,
		Interval: cfg.Status.Interval,
		Snapshot: snapshot,
		Clock:    clk,
	}
	// Typed nils must not reach the interfaces.
	if mqttClient != nil {
		rc.Publisher = mqttClient
		rc.Topic = mqttClient.StatusTopic()
	}
	if influxClient != nil {
		rc.Metrics = influxClient
	}
	return status.NewReporter(rc)
}

func nodeSnapshot(device *sensor.Device, linkStatus *link.Status, manager *uplink.Manager, smp *sampler.Sampler, tx *uplink.Transmitter, q *queue.Queue) status.Snapshot {
	ms := manager.Stats()
	ss := smp.Stats()
	ts := tx.Stats()
	return status.Snapshot{
		SensorReady: device.Ready(),
		LinkUp:      linkStatus.Up(),
		Connection:  ms.State.String(),
		Connected:   ms.State == uplink.StateConnected,
		QueueDepth:  q.Len(),
		Counters: status.Counters{
			Sampled:         ss.Sampled,
			BusErrors:       ss.BusErrors,
			InvalidSamples:  ss.InvalidSamples,
			Dropped:         ss.Dropped,
			Sent:            ts.Sent,
			SendErrors:      ts.SendErrors,
			Connects:        ms.Connects,
			ConnectFailures: ms.ConnectFailures,
			Disconnects:     ms.Disconnects,
			BytesSent:       ms.BytesSent,
		},
	}
}
