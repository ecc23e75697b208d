// TrackerLink Core - fitness tracker discovery and pairing
//
// This is the main entry point for the TrackerLink Core service. Trackers
// announce themselves over MQTT or the REST API, wait in the discovery
// registry, and become configuration entries once an operator confirms a
// pairing flow.
//
// Usage:
//
//	trackerlink                 run the service
//	trackerlink hash-password   read a password from stdin and print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/nerrad567/trackerlink-core/migrations"

	"github.com/nerrad567/trackerlink-core/internal/advertise"
	"github.com/nerrad567/trackerlink-core/internal/api"
	"github.com/nerrad567/trackerlink-core/internal/audit"
	"github.com/nerrad567/trackerlink-core/internal/auth"
	"github.com/nerrad567/trackerlink-core/internal/discovery"
	"github.com/nerrad567/trackerlink-core/internal/entry"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/database"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/trackerlink-core/internal/ingest"
	"github.com/nerrad567/trackerlink-core/internal/notify"
	"github.com/nerrad567/trackerlink-core/internal/pairing"
	"github.com/nerrad567/trackerlink-core/internal/telemetry"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the service logic, separated from main for testability.
// Components are torn down in reverse order of creation by the deferred
// calls. The discovery registry lives in memory and is discarded.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting TrackerLink Core",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if err := checkOperatorHash(cfg.Security.Operator, log); err != nil {
		return err
	}

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		)
	} else {
		log.Info("MQTT disabled, discovery accepted over the API only")
	}

	// InfluxDB (optional)
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

	// WebSocket hub, shared by the API server and the notifiers.
	hub := api.NewHub(cfg.WebSocket, log)
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	// Discovery registry
	policy, err := discovery.ParsePolicy(cfg.Pairing.Rediscovery)
	if err != nil {
		return fmt.Errorf("configuring discovery: %w", err)
	}
	registry := discovery.NewRegistry(policy)
	registry.SetLogger(log)
	defer func() {
		log.Info("discarding discovery registry", "pending_trackers", registry.Count())
		registry.Clear()
	}()

	notifiers := notify.Multi{notify.NewHubNotifier(hub)}
	var mqttNotifier *notify.MQTTNotifier
	if mqttClient != nil {
		mqttNotifier = notify.NewMQTTNotifier(mqttClient, log)
		notifiers = append(notifiers, mqttNotifier)
	}

	var advertiser *advertise.Advertiser
	if cfg.Advertise.Enabled {
		info := advertise.Info{
			Port:    cfg.API.Port,
			Version: version,
			Domain:  cfg.Pairing.Domain,
		}
		if mqttClient != nil {
			info.MQTTBroker = fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
			info.DiscoveryPrefix = cfg.Pairing.DiscoveryTopicPrefix
		}
		advertiser = advertise.New(cfg.Advertise, info, registry.Count)
		notifiers = append(notifiers, advertiser)
	}
	registry.SetNotifier(notifiers)

	trail := audit.NewTrail(audit.NewSQLiteRepository(db.DB))
	trail.SetLogger(log)

	observers := []discovery.SubmissionObserver{trail}
	var recorder *telemetry.Recorder
	if influxClient != nil {
		recorder = telemetry.NewRecorder(influxClient, registry.Count)
		observers = append(observers, recorder)
	}
	intake := discovery.NewIntake(registry, tracker.Validator{DefaultVendor: cfg.Pairing.DefaultVendor}, observers...)
	log.Info("discovery registry initialised", "policy", policy)

	// Configuration entries and pairing
	entries := entry.NewSQLiteRepository(db.DB)
	manager := pairing.NewManager(pairing.Options{
		Domain:                   cfg.Pairing.Domain,
		RestoreOnCreationFailure: cfg.Pairing.RestoreOnCreationFailure,
		Timeout:                  cfg.Pairing.GetFlowTimeout(),
		Retention:                cfg.Pairing.GetFlowRetention(),
	}, registry, entry.NewGuard(entries), entries)
	manager.SetLogger(log)
	manager.AddObserver(trail)
	manager.AddObserver(notify.NewHubNotifier(hub))
	if mqttNotifier != nil {
		manager.AddObserver(mqttNotifier)
	}
	if recorder != nil {
		manager.AddObserver(recorder)
	}
	defer func() {
		log.Info("stopping pairing manager")
		manager.Close()
	}()
	log.Info("pairing manager initialised",
		"domain", cfg.Pairing.Domain,
		"flow_timeout", cfg.Pairing.GetFlowTimeout(),
	)

	// MQTT discovery listener
	if mqttClient != nil {
		listener := ingest.NewListener(cfg.Pairing.DiscoveryTopicPrefix, intake, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0-2
		listener.SetPublisher(mqttClient)
		listener.SetLogger(log)
		if startErr := listener.Start(mqttClient); startErr != nil {
			return fmt.Errorf("starting discovery listener: %w", startErr)
		}
		defer func() {
			log.Info("stopping discovery listener")
			if stopErr := listener.Stop(mqttClient); stopErr != nil {
				log.Warn("error stopping discovery listener", "error", stopErr)
			}
		}()
		log.Info("discovery listener started", "prefix", cfg.Pairing.DiscoveryTopicPrefix)
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Domain:      cfg.Pairing.Domain,
		Intake:      intake,
		Manager:     manager,
		Entries:     entries,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Trail:       trail,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// mDNS advertisement (optional); failure is not fatal, producers can
	// still be configured by hand.
	if advertiser != nil {
		if advErr := advertiser.Start(); advErr != nil {
			log.Warn("mDNS advertisement failed", "error", advErr)
		} else {
			defer func() {
				log.Info("withdrawing mDNS advertisement")
				advertiser.Close()
			}()
			log.Info("mDNS advertisement started",
				"service", advertise.ServiceType,
				"instance", cfg.Advertise.Instance,
			)
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up", "flows", manager.Count())

	return nil
}

// getConfigPath returns the configuration file path.
// It checks TRACKERLINK_CONFIG first, then falls back to the default.
func getConfigPath() string {
	if path := os.Getenv("TRACKERLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// checkOperatorHash fails on a malformed operator password hash so a typo
// is caught at startup rather than at the first login.
func checkOperatorHash(op config.OperatorConfig, log *logging.Logger) error {
	if op.PasswordHash == "" {
		log.Warn("no operator password hash configured, login is disabled",
			"hint", "set TRACKERLINK_OPERATOR_PASSWORD_HASH from `trackerlink hash-password`")
		return nil
	}
	hash, err := auth.ParsePasswordHash(op.PasswordHash)
	if err != nil {
		return fmt.Errorf("security.operator.password_hash: %w", err)
	}
	if hash.Outdated() {
		log.Warn("operator password hash is weaker than the current default, regenerate it with `trackerlink hash-password`",
			"username", op.Username)
	}
	return nil
}

// healthCheck verifies every started component. Nil optional clients are
// skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

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

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}

// hashPassword reads one line from in and writes its Argon2id hash to out,
// ready for security.operator.password_hash.
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
