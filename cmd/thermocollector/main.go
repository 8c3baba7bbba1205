// thermocollector - receives readings from thermolink nodes
//
// Nodes connect to the ingest port (default 9000) and stream line-delimited
// JSON readings. The collector keeps the most recent readings in memory and
// serves them over HTTP (default 5000):
//
//	GET /api/latest      latest reading and connection status
//	GET /api/history     held readings, oldest first
//	GET /api/stats       min, max, avg and count
//	GET /api/nodes       node status relayed from MQTT
//	GET /api/v1/health   liveness, plus broker state when MQTT is on
//	    /ws              WebSocket feed (channels "reading", "node.status")
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/thermolink/internal/collector"
	"github.com/nerrad567/thermolink/internal/infrastructure/config"
	"github.com/nerrad567/thermolink/internal/infrastructure/logging"
	"github.com/nerrad567/thermolink/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "thermocollector"

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
func run(ctx context.Context) (err error) {
	log := logging.Default()
	log.Info("starting thermocollector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, serviceName, version)
	defer func() {
		err = multierr.Append(err, log.Close())
	}()

	history := collector.NewHistory(cfg.Server.HistorySize)
	hub := collector.NewHub(cfg.Server.WebSocket, log)
	ingest := collector.NewIngest(cfg.Server.Ingest, history, hub, log)
	nodes := collector.NewNodes(hub)

	mqttClient := connectMQTT(cfg.MQTT, log)

	deps := collector.Deps{
		Config:  cfg.Server,
		Logger:  log,
		History: history,
		Ingest:  ingest,
		Nodes:   nodes,
		Hub:     hub,
		Version: version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := collector.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return ingest.Run(gctx)
	})

	if startErr := server.Start(gctx); startErr != nil {
		cancel()
		return multierr.Combine(startErr, shutdown(server, mqttClient, log), g.Wait())
	}

	checkCtx, cancelCheck := context.WithTimeout(gctx, healthCheckTimeout)
	if hcErr := healthCheck(checkCtx, server, mqttClient); hcErr != nil {
		log.Warn("health check failed", "error", hcErr)
	}
	cancelCheck()

	log.Info("initialisation complete, waiting for shutdown signal",
		"ingest", cfg.Server.Ingest.Address(),
		"api", server.Addr().String(),
	)

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	err = multierr.Combine(
		shutdown(server, mqttClient, log),
		g.Wait(),
	)
	if err != nil {
		return err
	}

	log.Info("thermocollector stopped", "readings_held", history.Len(), "ingest", ingest.Stats())
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

// connectMQTT connects when MQTT is enabled. The collector runs without a
// broker; only the node status relay is lost.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT disabled, node status relay off")
		return nil
	}

	client, err := mqtt.Connect(cfg, mqtt.Topics{}.ServiceStatus(serviceName))
	if err != nil {
		log.Warn("MQTT unavailable, node status relay off", "error", err)
		return nil
	}
	client.SetLogger(log)
	log.Info("MQTT connected", "broker", cfg.Broker.Address())
	return client
}

// healthCheck verifies the API server and, when enabled, the broker.
func healthCheck(ctx context.Context, server *collector.Server, mqttClient *mqtt.Client) error {
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}

// shutdown closes the API server and the broker connection, collecting
// every error.
func shutdown(server *collector.Server, mqttClient *mqtt.Client, log *logging.Logger) error {
	err := server.Close()
	if mqttClient != nil {
		log.Info("disconnecting from MQTT")
		err = multierr.Append(err, mqttClient.Close())
	}
	return err
}
