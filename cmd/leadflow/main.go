// LeadFlow is the WhatsApp lead-capture service for SunGrid Solar: a
// template-driven conversation engine, encrypted Flow endpoints, and an admin
// JSON API over a SQLite or PostgreSQL store.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sungrid/leadflow/internal/api"
	"github.com/sungrid/leadflow/internal/conversation"
	"github.com/sungrid/leadflow/internal/flows"
	"github.com/sungrid/leadflow/internal/messaging"
	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/store"
	"github.com/sungrid/leadflow/internal/twiliowhatsapp"
	"github.com/sungrid/leadflow/internal/util"
	"github.com/sungrid/leadflow/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadFlow state data
	DefaultStateDir = "/var/lib/leadflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadflow.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(config, flags); err != nil {
		slog.Error("LeadFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	APIAddr          string
	MessagingBackend string
	PhoneNumberID    string
	AccessToken      string
	VerifyToken      string
	PrivateKeyPath   string
	FlowIDs          map[models.FlowKind]string
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	backend  *string
	keyPath  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		StateDir:         os.Getenv("LEADFLOW_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		APIAddr:          util.GetenvDefault("API_ADDR", DefaultAPIAddr),
		MessagingBackend: util.GetenvDefault("MESSAGING_BACKEND", "whatsapp"),
		PhoneNumberID:    os.Getenv("WA_PHONE_NUMBER_ID"),
		AccessToken:      os.Getenv("WA_ACCESS_TOKEN"),
		VerifyToken:      os.Getenv("WA_VERIFY_TOKEN"),
		PrivateKeyPath:   os.Getenv("FLOW_PRIVATE_KEY_PATH"),
		FlowIDs: map[models.FlowKind]string{
			models.FlowKindSurvey:      os.Getenv("FLOW_ID_SURVEY"),
			models.FlowKindPrice:       os.Getenv("FLOW_ID_PRICE"),
			models.FlowKindService:     os.Getenv("FLOW_ID_SERVICE"),
			models.FlowKindCallback:    os.Getenv("FLOW_ID_CALLBACK"),
			models.FlowKindTrust:       os.Getenv("FLOW_ID_TRUST"),
			models.FlowKindEligibility: os.Getenv("FLOW_ID_ELIGIBILITY"),
		},
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, default to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.VerifyToken == "" {
		config.VerifyToken = util.GenerateVerifyToken()
		slog.Warn("No WA_VERIFY_TOKEN set, generated a transient one", "verify_token", config.VerifyToken)
	}

	slog.Debug("environment variables loaded",
		"LEADFLOW_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.MessagingBackend,
		"WA_PHONE_NUMBER_ID_SET", config.PhoneNumberID != "",
		"WA_ACCESS_TOKEN_SET", config.AccessToken != "",
		"FLOW_PRIVATE_KEY_PATH", config.PrivateKeyPath)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for LeadFlow data (overrides $LEADFLOW_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:  flag.String("messaging-backend", config.MessagingBackend, "messaging backend: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		keyPath:  flag.String("flow-key", config.PrivateKeyPath, "path to the Flow RSA private key PEM (overrides $FLOW_PRIVATE_KEY_PATH)"),
	}
	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend,
		"keyPath", *flags.keyPath)

	// Follow a changed state directory when the DSN was left at its default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates the state directory when the store is a file.
func ensureDirectoriesExist(stateDir, dsn string) error {
	if store.DetectDSNType(dsn) == "postgres" {
		return nil
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", stateDir, err)
	}
	return nil
}

// newStore opens the store backend matching the DSN.
func newStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// newMessagingService builds the configured transport.
func newMessagingService(config Config, backend string) (messaging.Service, error) {
	switch backend {
	case "twilio":
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(os.Getenv("TWILIO_ACCOUNT_SID")),
			twiliowhatsapp.WithAuthToken(os.Getenv("TWILIO_AUTH_TOKEN")),
			twiliowhatsapp.WithFromWhats(os.Getenv("TWILIO_WHATSAPP_FROM")),
		)
		if err != nil {
			return nil, fmt.Errorf("configuring Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil

	case "whatsapp":
		client, err := whatsapp.NewClient(
			whatsapp.WithPhoneNumberID(config.PhoneNumberID),
			whatsapp.WithAccessToken(config.AccessToken),
		)
		if err != nil {
			return nil, fmt.Errorf("configuring Cloud API client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil

	default:
		return nil, fmt.Errorf("unknown messaging backend %q", backend)
	}
}

func run(config Config, flags Flags) error {
	if err := ensureDirectoriesExist(*flags.stateDir, *flags.dbDSN); err != nil {
		return err
	}

	st, err := newStore(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	svc, err := newMessagingService(config, *flags.backend)
	if err != nil {
		return err
	}

	var privateKey *rsa.PrivateKey
	if *flags.keyPath != "" {
		privateKey, err = flows.LoadPrivateKeyFile(*flags.keyPath)
		if err != nil {
			return fmt.Errorf("loading flow private key: %w", err)
		}
		slog.Info("Flow private key loaded", "path", *flags.keyPath)
	} else {
		slog.Warn("No flow private key configured; encrypted Flow requests will be rejected")
	}

	launcher := flows.NewLauncher(svc, config.FlowIDs)
	engine := conversation.NewEngine(st, launcher)
	flowHandler := flows.NewHandler(st)

	server := api.NewServer(st, engine, svc, flowHandler,
		api.WithAddr(*flags.apiAddr),
		api.WithVerifyToken(config.VerifyToken),
		api.WithPrivateKey(privateKey),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting messaging service: %w", err)
	}
	defer svc.Stop()

	slog.Info("Bootstrapping LeadFlow", "addr", *flags.apiAddr, "backend", *flags.backend)
	return server.Run(ctx)
}
