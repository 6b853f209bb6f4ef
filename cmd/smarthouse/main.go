// Command smarthouse keeps a session with the smart-house MQTT broker,
// tracks the state of the house and serves a live dashboard over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/smart-house/internal/cache"
	"github.com/sweeney/smart-house/internal/config"
	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
	"github.com/sweeney/smart-house/internal/mqtt"
	"github.com/sweeney/smart-house/internal/msglog"
	"github.com/sweeney/smart-house/internal/state"
	"github.com/sweeney/smart-house/internal/status"
	"github.com/sweeney/smart-house/internal/web"
)

const shutdownTimeout = 5 * time.Second

// overrides holds command-line values that take precedence over the config
// file. Empty fields are ignored.
type overrides struct {
	Broker   string
	HTTPAddr string
	DBPath   string
	LogLevel string
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty for defaults)")
	broker := flag.String("broker", "", "MQTT broker URL (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	dbPath := flag.String("db", "", "SQLite history path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")

	flag.Parse()

	cfg, err := loadConfig(*configPath, overrides{
		Broker:   *broker,
		HTTPAddr: *httpAddr,
		DBPath:   *dbPath,
		LogLevel: *logLevel,
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	logger := logging.New(cfg.Logging.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := mqtt.NewPahoDialer(cfg.MQTT.URL, cfg.MQTT.ConnectTimeout)
	if err := run(ctx, cfg, dialer, logger); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(path string, o overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, o)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.Broker != "" {
		cfg.MQTT.URL = o.Broker
	}
	switch o.HTTPAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = o.HTTPAddr
	}
	if o.DBPath != "" {
		cfg.Cache.Path = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
}

// openStorage opens the SQLite history. When the database cannot be opened
// the history is kept in memory for this run only.
func openStorage(path string, logger *logging.Logger) (cache.Storage, func()) {
	db, err := cache.OpenSQLite(path)
	if err != nil {
		logger.Warnw("history database unavailable, keeping history in memory", "path", path, "err", err)
		return cache.NewMemoryStorage(), func() {}
	}
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warnw("closing history database", "err", err)
		}
	}
}

func run(ctx context.Context, cfg *config.Config, dialer mqtt.Dialer, logger *logging.Logger) error {
	storage, closeStorage := openStorage(cfg.Cache.Path, logger)
	defer closeStorage()

	history := cache.New(storage, cfg.Cache.Retention, logger)
	if err := history.Load(ctx); err != nil {
		logger.Warnw("history unreadable, starting empty", "err", err)
	}

	msgs := msglog.New(logger)
	store := state.New(history, logger)
	session := mqtt.New(dialer, msgs, store, history, mqtt.Options{
		ClientPrefix:      cfg.MQTT.ClientPrefix,
		ReconnectInterval: cfg.MQTT.ReconnectInterval,
		SweepInterval:     cfg.Cache.SweepInterval,
		Logger:            logger,
	})

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:            cfg.MQTT.URL,
		HTTPAddr:          cfg.HTTP.Addr,
		CachePath:         cfg.Cache.Path,
		ReconnectInterval: cfg.MQTT.ReconnectInterval,
		Retention:         cfg.Cache.Retention,
	})
	unwatch := watch(session, tracker)
	defer unwatch()

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, session, history, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorw("http server error", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		logger.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	logger.Infow("started",
		"broker", cfg.MQTT.URL,
		"reconnect", cfg.MQTT.ReconnectInterval,
		"cache", cfg.Cache.Path,
		"samples", len(history.Samples()),
	)

	err := session.Run(ctx)
	logger.Infow("shutting down")
	return err
}

// watch mirrors the session's feeds into the status tracker. Every
// connection transition also writes a log entry, so the log feed refreshes
// the connection state too.
func watch(session *mqtt.Session, tracker *status.Tracker) (unwatch func()) {
	syncConn := func() {
		cs := session.ConnectionStatus()
		tracker.SetConnection(cs.IsConnected, cs.HasData, session.State().String())
	}
	unsubs := []func(){
		session.SubscribeConnection(func(mqtt.ConnectionStatus) {
			syncConn()
		}),
		session.SubscribeSensorData(func(r house.Reading) {
			tracker.SetReading(r)
		}),
		session.SubscribeDeviceStatus(func(d house.DeviceStatus) {
			tracker.SetDevices(d)
		}),
		session.SubscribeMessageLog(func(entries []msglog.Entry) {
			tracker.SetLogEntries(len(entries))
			syncConn()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
