// Command orderbot runs the WhatsApp ordering assistant.
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

	"github.com/AssadourKH/NEWAIBOT/internal/api"
	"github.com/AssadourKH/NEWAIBOT/internal/genai"
	"github.com/AssadourKH/NEWAIBOT/internal/messaging"
	"github.com/AssadourKH/NEWAIBOT/internal/store"
	"github.com/AssadourKH/NEWAIBOT/internal/twiliowhatsapp"
	"github.com/AssadourKH/NEWAIBOT/internal/util"
	"github.com/AssadourKH/NEWAIBOT/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lock file and the SQLite databases.
	DefaultStateDir = "/var/lib/orderbot"
	// DefaultDBFileName is the SQLite database used when DATABASE_URL is unset.
	DefaultDBFileName = "orderbot.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg := api.RunConfig{
		Provider:          flags.provider,
		StateDir:          flags.stateDir,
		DatabaseURL:       flags.dbDSN,
		ProfilePath:       flags.profilePath,
		CatalogPath:       flags.catalogPath,
		CatalogReloadSpec: flags.catalogCron,
		Meta:              buildMetaOptions(config),
		Twilio:            buildTwilioOptions(config),
		WhatsApp:          buildWhatsAppOptions(flags),
		GenAI:             buildGenAIOptions(config, flags),
		API:               buildAPIOptions(flags),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping orderbot", "provider", cfg.Provider, "state_dir", cfg.StateDir, "api_addr", flags.apiAddr)
	slog.Debug("Module options counts", "meta", len(cfg.Meta), "twilio", len(cfg.Twilio), "whatsapp", len(cfg.WhatsApp), "genai", len(cfg.GenAI), "api", len(cfg.API))
	if err := api.Run(ctx, cfg); err != nil {
		slog.Error("orderbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("orderbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	Provider    string
	StateDir    string
	DatabaseURL string
	WhatsAppDSN string
	APIAddr     string
	ProfilePath string
	CatalogPath string
	CatalogCron string

	MetaAccessToken   string
	MetaPhoneNumberID string
	MetaVerifyToken   string
	MetaAPIVersion    string

	AzureAPIKey     string
	AzureEndpoint   string
	AzureAPIVersion string
	Deployment      string
	OpenAIKey       string
	Temperature     float64
	GenAIDebug      bool

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioContentSID string
}

// Flags holds command line flag values
type Flags struct {
	provider    string
	stateDir    string
	dbDSN       string
	waDSN       string
	apiAddr     string
	profilePath string
	catalogPath string
	catalogCron string
	openaiKey   string
	qrOutput    string
	numeric     bool
	genaiDebug  bool
}

// initializeLogger sets up structured logging at the given level (default debug).
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Provider:    util.GetEnv("MESSAGING_PROVIDER", api.ProviderMeta),
		StateDir:    util.GetEnv("ORDERBOT_STATE_DIR", DefaultStateDir),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:     util.GetEnv("API_ADDR", api.DefaultAddr),
		ProfilePath: os.Getenv("PROFILE_PATH"),
		CatalogPath: os.Getenv("CATALOG_PATH"),
		CatalogCron: os.Getenv("CATALOG_RELOAD_CRON"),

		MetaAccessToken:   os.Getenv("META_ACCESS_TOKEN"),
		MetaPhoneNumberID: os.Getenv("META_PHONE_NUMBER_ID"),
		MetaVerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
		MetaAPIVersion:    util.GetEnv("META_API_VERSION", messaging.DefaultMetaAPIVersion),

		AzureAPIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureEndpoint:   os.Getenv("ENDPOINT_URL"),
		AzureAPIVersion: util.GetEnv("AZURE_OPENAI_API_VERSION", genai.DefaultAzureAPIVersion),
		Deployment:      util.GetEnv("DEPLOYMENT_NAME", genai.DefaultModel),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		Temperature:     util.ParseFloatEnv("GENAI_TEMPERATURE", genai.DefaultTemperature),
		GenAIDebug:      util.ParseBoolEnv("GENAI_DEBUG", false),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM"),
		TwilioContentSID: os.Getenv("TWILIO_CONTENT_SID"),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL set, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = whatsAppDSN(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_PROVIDER", config.Provider,
		"ORDERBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"API_ADDR", config.APIAddr,
		"PROFILE_PATH", config.ProfilePath,
		"CATALOG_PATH", config.CatalogPath,
		"META_ACCESS_TOKEN_SET", config.MetaAccessToken != "",
		"AZURE_OPENAI_API_KEY_SET", config.AzureAPIKey != "",
		"ENDPOINT_URL", config.AzureEndpoint,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "")

	return config
}

func whatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("orderbot", flag.ContinueOnError)
	fs.StringVar(&flags.provider, "provider", config.Provider, "messaging provider: meta, twilio or whatsmeow (overrides $MESSAGING_PROVIDER)")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for orderbot data (overrides $ORDERBOT_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "order database DSN, postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&flags.waDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "HTTP listen address (overrides $API_ADDR)")
	fs.StringVar(&flags.profilePath, "profile", config.ProfilePath, "restaurant profile YAML (overrides $PROFILE_PATH)")
	fs.StringVar(&flags.catalogPath, "catalog", config.CatalogPath, "catalog CSV snapshot (overrides $CATALOG_PATH)")
	fs.StringVar(&flags.catalogCron, "catalog-cron", config.CatalogCron, "catalog reload schedule (overrides $CATALOG_RELOAD_CRON)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.qrOutput, "qr-output", "", "path to write the whatsmeow login QR code")
	fs.BoolVar(&flags.numeric, "numeric-code", false, "use a numeric whatsmeow pairing code instead of a QR code")
	fs.BoolVar(&flags.genaiDebug, "genai-debug", config.GenAIDebug, "write model requests and responses under the state directory (overrides $GENAI_DEBUG)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Follow -state-dir for file DSNs that were derived from the old state dir.
	if flags.stateDir != config.StateDir {
		if flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		}
		if flags.waDSN == whatsAppDSN(config.StateDir) {
			flags.waDSN = whatsAppDSN(flags.stateDir)
		}
		slog.Debug("Updated DSNs based on state directory", "old_state_dir", config.StateDir, "new_state_dir", flags.stateDir)
	}

	switch flags.provider {
	case api.ProviderMeta, api.ProviderTwilio, api.ProviderWhatsmeow:
	default:
		return Flags{}, fmt.Errorf("unknown provider %q", flags.provider)
	}

	slog.Debug("flags parsed",
		"provider", flags.provider,
		"stateDir", flags.stateDir,
		"dbDSN_type", store.DetectDSNType(flags.dbDSN),
		"apiAddr", flags.apiAddr,
		"profile", flags.profilePath,
		"catalog", flags.catalogPath,
		"openaiKeySet", flags.openaiKey != "")
	return flags, nil
}

// ensureDirectoriesExist creates the state directory and, for SQLite, the
// database directory.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{flags.stateDir}
	if flags.dbDSN != "" && store.DetectDSNType(flags.dbDSN) == store.DriverSQLite {
		dirs = append(dirs, filepath.Dir(flags.dbDSN))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildMetaOptions constructs Cloud API options
func buildMetaOptions(config Config) []messaging.MetaOption {
	opts := []messaging.MetaOption{
		messaging.WithMetaCredentials(config.MetaAccessToken, config.MetaPhoneNumberID),
		messaging.WithAPIVersion(config.MetaAPIVersion),
	}
	if config.MetaVerifyToken != "" {
		opts = append(opts, messaging.WithVerifyToken(config.MetaVerifyToken))
	}
	return opts
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFrom))
	}
	if config.TwilioContentSID != "" {
		opts = append(opts, twiliowhatsapp.WithContentSID(config.TwilioContentSID))
	}
	return opts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.waDSN))
	}
	return waOpts
}

// buildGenAIOptions prefers Azure OpenAI when an endpoint and key are set,
// falling back to the public OpenAI API.
func buildGenAIOptions(config Config, flags Flags) []genai.Option {
	opts := []genai.Option{
		genai.WithModel(config.Deployment),
		genai.WithTemperature(config.Temperature),
	}
	switch {
	case config.AzureEndpoint != "" && config.AzureAPIKey != "":
		opts = append(opts,
			genai.WithAPIKey(config.AzureAPIKey),
			genai.WithAzureEndpoint(config.AzureEndpoint, config.AzureAPIVersion))
	case flags.openaiKey != "":
		opts = append(opts, genai.WithAPIKey(flags.openaiKey))
	}
	if flags.genaiDebug {
		opts = append(opts, genai.WithDebugMode(true, flags.stateDir))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	return apiOpts
}
