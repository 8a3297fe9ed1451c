// commlink - dual-transport connection manager
//
// This is the main entry point for commlink. It keeps a WebSocket control
// channel and an MQTT pub/sub channel alive side by side, relays control
// changes between them, and exposes status, history and an event stream
// to a local UI over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/commlink/internal/api"
	"github.com/nerrad567/commlink/internal/communication"
	"github.com/nerrad567/commlink/internal/event"
	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/commlink/internal/infrastructure/logging"
	"github.com/nerrad567/commlink/internal/message"
	"github.com/nerrad567/commlink/internal/notify"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default file locations.
const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It blocks until ctx is cancelled, then shuts everything down in reverse
// start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting commlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadEnvFile(getEnvPath()); err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// The stream hub doubles as a notifier, so it exists before the coordinator.
	notifiers := notify.Multi{notify.LogNotifier{Logger: log}}
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.API.Stream, log.With("component", "api"))
		notifiers = append(notifiers, hub)
	}

	coord, err := communication.New(communication.Deps{
		Config:   cfg,
		Logger:   log,
		Notifier: notifiers,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer func() {
		log.Info("closing connections")
		coord.Close()
	}()

	var recorder event.Group
	defer recorder.Unsubscribe()

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		wireTelemetry(&recorder, coord.Events(), influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Listeners are in place before the first connection attempt.
	coord.InitializeConnections()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log.With("component", "api"),
			Coordinator: coord,
			Events:      coord.Events(),
			ExternalHub: hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}

		if startErr := server.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()

		// The hub runs only once the listener is bound, so a failed start
		// leaves nothing behind.
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up",
		"fully_connected", coord.IsFullyConnected(),
	)

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Telemetry listeners
	// 4. Coordinator connections
	log.Info("commlink stopped")
	return nil
}

// telemetrySink is the subset of the InfluxDB client fed by the event bus.
type telemetrySink interface {
	RecordFeedback(f message.Feedback)
	RecordStatus(s message.StatusUpdate)
	RecordConnection(websocket, mqtt bool, at time.Time)
}

// wireTelemetry records feedback, status and connection changes.
func wireTelemetry(g *event.Group, bus *communication.Bus, sink telemetrySink) {
	g.Add(bus.OnFeedback(sink.RecordFeedback))
	g.Add(bus.OnStatus(sink.RecordStatus))
	g.Add(bus.OnConnectionStatus(func(cs communication.ConnectionStatus) {
		sink.RecordConnection(cs.WebSocket, cs.MQTT, time.Now())
	}))
}

// getConfigPath returns the configuration file path.
// COMMLINK_CONFIG wins; otherwise the default path is used when it exists,
// and an empty path (defaults plus environment) when it does not.
func getConfigPath() string {
	if path := os.Getenv("COMMLINK_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return defaultConfigPath
}

// getEnvPath returns the dotenv file path, overridable with COMMLINK_ENV_FILE.
func getEnvPath() string {
	if path := os.Getenv("COMMLINK_ENV_FILE"); path != "" {
		return path
	}
	return defaultEnvPath
}
