// rpigarage is the garage door agent.
//
// It watches the door's reed switch, reports the position to an AWS IoT
// device shadow, and pulses the door opener relay when the shadow's desired
// doorStatus is set to "signaled".
//
// Usage:
//
//	rpigarage [-c /opt/rpigarage/conf.json]
//	rpigarage -c conf.json --issue-token dashboard [--token-ttl 720h]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/rpigarage/migrations"

	"github.com/nerrad567/rpigarage/internal/api"
	"github.com/nerrad567/rpigarage/internal/auth"
	"github.com/nerrad567/rpigarage/internal/hardware/gpio"
	"github.com/nerrad567/rpigarage/internal/history"
	"github.com/nerrad567/rpigarage/internal/infrastructure/config"
	"github.com/nerrad567/rpigarage/internal/infrastructure/database"
	"github.com/nerrad567/rpigarage/internal/infrastructure/influxdb"
	"github.com/nerrad567/rpigarage/internal/infrastructure/logging"
	"github.com/nerrad567/rpigarage/internal/infrastructure/mqtt"
	"github.com/nerrad567/rpigarage/internal/reconcile"
	"github.com/nerrad567/rpigarage/internal/shadow"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errHelp is returned by run when -h was given; main exits 0 for it.
var errHelp = errors.New("help requested")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command line flags.
type options struct {
	configPath  string
	showVersion bool
	issueToken  string
	tokenTTL    time.Duration
}

// parseFlags parses args. The config path comes from -c, then
// RPIGARAGE_CONFIG, then the install default.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("rpigarage", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the device configuration file (default "+config.DefaultPath+")")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an API token for `SUBJECT` signed with api.auth.jwtSecret and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", auth.DefaultTTL, "lifetime of the token printed by --issue-token")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, errHelp
		}
		return opts, err
	}

	if opts.configPath == "" {
		opts.configPath = os.Getenv("RPIGARAGE_CONFIG")
	}
	if opts.configPath == "" {
		opts.configPath = config.DefaultPath
	}
	return opts, nil
}

// run is the application logic, separated from main for testability. It
// blocks until ctx is cancelled and returns nil on clean shutdown.
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "rpigarage %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.issueToken != "" {
		token, err := auth.IssueToken(opts.issueToken, cfg.API.Auth.JWTSecret, opts.tokenTTL)
		if err != nil {
			return fmt.Errorf("issuing API token: %w", err)
		}
		fmt.Fprintln(out, token)
		return nil
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting rpigarage",
		"version", version,
		"commit", commit,
		"config", opts.configPath,
		"thing", cfg.ThingName,
	)

	var observers []reconcile.Observer

	// Local event journal (optional)
	var (
		db         *database.DB
		eventsRepo history.Repository
	)
	if cfg.History.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.History.Path,
			WALMode:     true,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening event journal: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing event journal", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		repo := history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(repo, history.RecorderOptions{
			Retention: cfg.History.Retention,
			Logger:    log.With("component", "history"),
		})
		recorder.Start(ctx)
		defer recorder.Close()

		eventsRepo = repo
		observers = append(observers, recorder)
		log.Info("event journal ready", "path", cfg.History.Path, "retention", cfg.History.Retention)
	}

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		observers = append(observers, telemetryObserver(influxClient, cfg.ThingName))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Shadow service connection. A failure here is fatal; reconnects after
	// this point are automatic.
	mqttClient, err := mqtt.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	defer func() {
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected", "endpoint", cfg.Endpoint, "port", cfg.MQTT.Port, "client_id", mqttClient.ClientID())

	shadowClient := shadow.NewClient(mqttClient, shadow.Options{
		QoS:        mqttClient.QoS(),
		AckTimeout: cfg.MQTT.AckTimeout,
		Logger:     log.With("component", "shadow"),
	})
	defer shadowClient.Close() //nolint:errcheck // Unsubscribe on a closing connection is best effort

	hw, err := gpio.Open(cfg.Hardware, cfg.RelayPin, cfg.ReedPin, log.With("component", "gpio"))
	if err != nil {
		return fmt.Errorf("opening GPIO: %w", err)
	}
	defer func() {
		if closeErr := hw.Close(); closeErr != nil {
			log.Error("error releasing GPIO", "error", closeErr)
		}
	}()

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.With("component", "api"))
		observers = append(observers, hub)
	}

	engine := reconcile.New(hw.Sensor, hw.Relay, shadowClient, reconcile.Options{
		Thing:         cfg.ThingName,
		EndpointID:    cfg.ID,
		PulseDuration: cfg.Actuator.PulseDuration,
		Logger:        log.With("component", "reconcile"),
		Observers:     observers,
	})
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting reconciliation engine: %w", err)
	}
	defer engine.Stop()

	// Local status API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Thing:   cfg.ThingName,
			Door:    engine,
			Broker:  mqttClient,
			History: eventsRepo,
			Hub:     hub,
			Version: version,
		}
		if db != nil {
			deps.Database = db
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}

		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("rpigarage running", "door", hw.Sensor.Read().String())

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// telemetryObserver forwards engine events to InfluxDB.
func telemetryObserver(client *influxdb.Client, thing string) reconcile.Observer {
	return reconcile.ObserverFunc(func(ev reconcile.Event) {
		client.WriteDoorEvent(influxdb.DoorEvent{
			Thing:            thing,
			Kind:             string(ev.Kind),
			Reported:         string(ev.Reported),
			Desired:          string(ev.Desired),
			CorrelationToken: ev.CorrelationToken,
			Error:            ev.Error,
			Time:             ev.Time,
		})
	})
}
