package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/api"
	"github.com/BTreeMap/SlotPipe/internal/campaign"
	"github.com/BTreeMap/SlotPipe/internal/lockfile"
	"github.com/BTreeMap/SlotPipe/internal/messaging"
	"github.com/BTreeMap/SlotPipe/internal/provider"
	"github.com/BTreeMap/SlotPipe/internal/scheduler"
	"github.com/BTreeMap/SlotPipe/internal/store"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SlotPipe state data
	DefaultStateDir = "/var/lib/slotpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "slotpipe.db"
	// DefaultJobPollInterval is how often the job runner polls for due waves
	DefaultJobPollInterval = 5 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory; the SQLite backend does not tolerate
	// concurrent writers from separate processes.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("SlotPipe failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("SlotPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	APIAddr      string
	ReplyDomain  string
	BusinessName string
	Retention    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	apiAddr      *string
	replyDomain  *string
	businessName *string
	retention    *string
}

// initializeLogger sets up structured logging with the level taken from
// $SLOTPIPE_LOG_LEVEL (debug, info, warn, error; default info).
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("SLOTPIPE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("SLOTPIPE_STATE_DIR"),
		APIAddr:      os.Getenv("API_ADDR"),
		ReplyDomain:  os.Getenv("REPLY_DOMAIN"),
		BusinessName: os.Getenv("BUSINESS_NAME"),
		Retention:    os.Getenv("CAMPAIGN_RETENTION"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SLOTPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SLOTPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"REPLY_DOMAIN", config.ReplyDomain,
		"BUSINESS_NAME_SET", config.BusinessName != "",
		"CAMPAIGN_RETENTION", config.Retention)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for SlotPipe data (overrides $SLOTPIPE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL URL or SQLite path (overrides $DATABASE_URL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		replyDomain:  flag.String("reply-domain", config.ReplyDomain, "domain for tokenized email reply addresses (overrides $REPLY_DOMAIN)"),
		businessName: flag.String("business-name", config.BusinessName, "business name used in outbound messages (overrides $BUSINESS_NAME)"),
		retention:    flag.String("campaign-retention", config.Retention, "how long finished campaigns are kept, e.g. 336h (overrides $CAMPAIGN_RETENTION)"),
	}

	flag.Parse()

	// Follow an overridden state directory when the DSN still points at the
	// default SQLite location.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated db DSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return os.MkdirAll(*flags.stateDir, 0755)
	}
	dbDir := filepath.Dir(*flags.dbDSN)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(*flags.stateDir, 0755)
}

// buildStore opens the database backend selected by the DSN.
func buildStore(dsn string) (store.Store, func() error, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("main.buildStore: using PostgreSQL store")
		st, err := store.NewPostgresStore(store.WithDSN(dsn))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	slog.Info("main.buildStore: using SQLite store", "path", dsn)
	st, err := store.NewSQLiteStore(store.WithDSN(dsn))
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

// buildResolver constructs the provider gateways that have credentials
// configured. At least one must be usable.
func buildResolver() (*provider.Resolver, error) {
	var gateways []provider.Gateway

	if acuity, err := provider.NewAcuityGateway(); err != nil {
		slog.Warn("main.buildResolver: Acuity gateway not configured", "error", err)
	} else {
		gateways = append(gateways, acuity)
	}
	if square, err := provider.NewSquareGateway(); err != nil {
		slog.Warn("main.buildResolver: Square gateway not configured", "error", err)
	} else {
		gateways = append(gateways, square)
	}

	if len(gateways) == 0 {
		return nil, errNoGateways
	}
	return provider.NewResolver(gateways...), nil
}

var errNoGateways = errors.New("no provider gateway configured: set Acuity or Square credentials")

// buildEngineOptions constructs campaign engine configuration options
func buildEngineOptions(flags Flags) []campaign.Option {
	var opts []campaign.Option
	if *flags.replyDomain != "" {
		opts = append(opts, campaign.WithReplyDomain(*flags.replyDomain))
	}
	if *flags.businessName != "" {
		opts = append(opts, campaign.WithBusinessName(*flags.businessName))
	}
	return opts
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	resolver, err := buildResolver()
	if err != nil {
		return err
	}

	email, err := messaging.NewSMTPSender()
	if err != nil {
		return err
	}
	text, err := messaging.NewTwilioSender()
	if err != nil {
		return err
	}

	engine := campaign.NewEngine(st, resolver, email, text, buildEngineOptions(flags)...)

	runner := store.NewJobRunner(st, DefaultJobPollInterval)
	engine.RegisterHandlers(runner)
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Warn("main.run: failed to recover stale jobs", "error", err)
	}
	go runner.Run(ctx)

	retention := scheduler.DefaultRetention
	if *flags.retention != "" {
		d, err := time.ParseDuration(*flags.retention)
		if err != nil {
			return fmt.Errorf("invalid campaign retention %q: %w", *flags.retention, err)
		}
		retention = d
	}
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	maintenance := scheduler.NewMaintenance(st, retention)
	if err := maintenance.Register(sched); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, st, apiOpts...)

	slog.Info("Bootstrapping SlotPipe",
		"state_dir", *flags.stateDir, "api_addr", *flags.apiAddr, "retention", retention)
	return server.Run(ctx)
}
