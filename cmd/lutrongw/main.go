// Lutron Gateway
//
// This is the main entry point for the Lutron gateway. It connects to one or
// more Lutron Caseta and RA2 Select bridges over LEAP (TLS port 8081) and,
// on Pro models and Telnet-only processors, the LIP integration protocol
// (port 23). Bridge events are published to MQTT, recorded in InfluxDB and
// streamed over WebSocket; commands arrive over MQTT and the REST API.
//
// Usage:
//
//	lutrongw [serve] [--config FILE]      run the gateway
//	lutrongw token --subject NAME --role ROLE
//	lutrongw credentials --bridge ID key=value ...
//	lutrongw migrate [up|down|status]
//	lutrongw version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/lutron-gateway/migrations"

	"github.com/nerrad567/lutron-gateway/internal/api"
	"github.com/nerrad567/lutron-gateway/internal/credentials"
	"github.com/nerrad567/lutron-gateway/internal/discovery"
	"github.com/nerrad567/lutron-gateway/internal/gateway"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/database"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the gateway itself, separated from main for testability.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Lutron gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"gateway", cfg.Gateway.ID,
		"bridges", len(cfg.Bridges),
		"credentials_backend", cfg.Credentials.Backend,
	)
	log.Debug("effective configuration", "config", cfg.Redacted())

	// Credential store
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing credential store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing credential store", "error", closeErr)
		}
	}()
	if seedErr := credentials.Seed(ctx, store, cfg.Bridges); seedErr != nil {
		log.Warn("some configured credentials were not stored", "error", seedErr)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", cfg.MQTT.TopicPrefix,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Gateway: one engine per bridge, events fanned out to MQTT, InfluxDB and WebSocket
	hub := api.NewHub(cfg.WebSocket, log)
	opts := gateway.Options{
		Config:      cfg,
		Credentials: credentials.NewSource(store),
		Publisher:   mqttClient,
		Broadcaster: hub,
		Logger:      log,
		Version:     version,
	}
	if influxClient != nil {
		opts.Recorder = influxClient
	}
	gw, err := gateway.New(opts)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	defer func() {
		log.Info("stopping gateway")
		gw.Stop()
	}()

	// mDNS discovery (optional)
	if cfg.Discovery.Enabled {
		d, discErr := discovery.New(cfg.Discovery, nil, gw.Discovered, log.With("component", "discovery"))
		if discErr != nil {
			log.Warn("bridge discovery unavailable", "error", discErr)
		} else {
			go d.Run(ctx)
			log.Info("bridge discovery started", "service", cfg.Discovery.Service)
		}
	}

	// HTTP API and event stream
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Gateway:  gw,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API server, gateway, InfluxDB, MQTT, credential store.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LUTRONGW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LUTRONGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore opens the configured credential backend. The SQLite backend
// migrates the database first.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (credentials.Store, error) {
	switch cfg.Credentials.Backend {
	case config.BackendBolt:
		store, err := credentials.NewBoltStore(cfg.Credentials.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("opening credential store: %w", err)
		}
		log.Info("credential store opened", "backend", config.BackendBolt, "path", cfg.Credentials.BoltPath)
		return store, nil

	case config.BackendSQLite:
		db, err := database.Open(database.ConfigFrom(cfg.Database))
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("credential store opened", "backend", config.BackendSQLite, "path", db.Path())
		return &sqliteStore{SQLiteStore: credentials.NewSQLiteStore(db), db: db}, nil

	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Credentials.Backend)
	}
}

// sqliteStore closes the database along with the store.
type sqliteStore struct {
	*credentials.SQLiteStore
	db *database.DB
}

func (s *sqliteStore) Close() error {
	return errors.Join(s.SQLiteStore.Close(), s.db.Close())
}

// healthCheck verifies the infrastructure connections.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	// Bridges are not checked here; they initialize and retry in the background.
	return nil
}
