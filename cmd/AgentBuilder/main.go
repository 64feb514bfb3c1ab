// Command AgentBuilder runs the conversational agent builder as an HTTP service or an
// interactive terminal session.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/AgentBuilder/internal/flow"
	"github.com/BTreeMap/AgentBuilder/internal/genai"
	"github.com/BTreeMap/AgentBuilder/internal/prompt"
	"github.com/BTreeMap/AgentBuilder/internal/session"
	"github.com/BTreeMap/AgentBuilder/internal/store"
	"github.com/BTreeMap/AgentBuilder/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for AgentBuilder state data
	DefaultStateDir = "/var/lib/agentbuilder"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "agentbuilder.db"
	// DefaultAPIAddr is the default HTTP listen address
	DefaultAPIAddr = ":8080"
)

// Config holds environment configuration. Command line flags override it.
type Config struct {
	LogLevel    string
	StateDir    string
	DatabaseURL string
	InMemory    bool
	APIAddr     string

	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	AnthropicKey   string
	AnthropicModel string
	Temperature    float64
	MaxTokens      int
	DebugMode      bool

	HistoryWindow   int
	DialogueTimeout time.Duration
	LockTimeout     time.Duration
	SessionTTL      time.Duration
	CacheSize       int
	SweepInterval   time.Duration
	Retention       time.Duration
	ShutdownTimeout time.Duration

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	ValidateSignature bool
	PublicBaseURL     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	return &Config{
		LogLevel:    util.StringEnv("LOG_LEVEL", "info"),
		StateDir:    util.StringEnv("AGENTBUILDER_STATE_DIR", DefaultStateDir),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		APIAddr:     util.StringEnv("API_ADDR", DefaultAPIAddr),

		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    util.StringEnv("OPENAI_MODEL", genai.DefaultOpenAIModel),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: util.StringEnv("ANTHROPIC_MODEL", genai.DefaultAnthropicModel),
		Temperature:    util.ParseFloatEnv("DIALOGUE_TEMPERATURE", genai.DefaultTemperature),
		MaxTokens:      util.ParseIntEnv("DIALOGUE_MAX_TOKENS", genai.DefaultMaxTokens),
		DebugMode:      util.ParseBoolEnv("DIALOGUE_DEBUG", false),

		HistoryWindow:   util.ParseIntEnv("HISTORY_WINDOW", genai.DefaultHistoryWindow),
		DialogueTimeout: util.ParseDurationEnv("DIALOGUE_TIMEOUT", flow.DefaultDialogueTimeout),
		LockTimeout:     util.ParseDurationEnv("SESSION_LOCK_TIMEOUT", session.DefaultLockTimeout),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", store.DefaultSessionTTL),
		CacheSize:       util.ParseIntEnv("SESSION_CACHE_SIZE", store.DefaultCacheSize),
		SweepInterval:   util.ParseDurationEnv("SWEEP_INTERVAL", store.DefaultSweepInterval),
		Retention:       util.ParseDurationEnv("EXPIRED_RETENTION", store.DefaultRetention),
		ShutdownTimeout: util.ParseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		ValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		PublicBaseURL:     os.Getenv("PUBLIC_BASE_URL"),
	}
}

func newRootCmd() *cobra.Command {
	cfg := loadEnvironmentConfig()

	root := &cobra.Command{
		Use:           "AgentBuilder",
		Short:         "Build voice agents through a guided conversation",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeLogger(cfg.LogLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for AgentBuilder data (overrides $AGENTBUILDER_STATE_DIR)")
	pf.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL URL or SQLite path (overrides $DATABASE_URL)")
	pf.BoolVar(&cfg.InMemory, "in-memory", false, "keep sessions in memory only")
	pf.StringVar(&cfg.OpenAIKey, "openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	pf.StringVar(&cfg.AnthropicKey, "anthropic-api-key", cfg.AnthropicKey, "Anthropic API key (overrides $ANTHROPIC_API_KEY)")
	pf.BoolVar(&cfg.DebugMode, "debug", cfg.DebugMode, "write LLM requests and responses under the state directory")

	root.AddCommand(newServeCmd(cfg), newChatCmd(cfg), newRenderCmd(cfg), newExportCmd(cfg))
	return root
}

// initializeLogger sets up structured logging at the requested level
func initializeLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

// storeDSN returns the configured DSN, defaulting to SQLite in the state directory.
// An empty result selects the in-memory store.
func storeDSN(cfg *Config) string {
	if cfg.InMemory {
		return ""
	}
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return filepath.Join(cfg.StateDir, DefaultDBFileName)
}

// ensureDirectoriesExist creates the state directory for file-based storage
func ensureDirectoriesExist(dsn string) error {
	if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
		return nil
	}
	dir := filepath.Dir(dsn)
	slog.Debug("Creating state directory for file-based database", "stateDir", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return nil
}

// buildGenAIOptions constructs the options shared by both provider clients
func buildGenAIOptions(cfg *Config) []genai.Option {
	return []genai.Option{
		genai.WithTemperature(cfg.Temperature),
		genai.WithMaxTokens(cfg.MaxTokens),
		genai.WithDebugMode(cfg.DebugMode, cfg.StateDir),
	}
}

// buildRouter creates whichever provider clients have credentials.
func buildRouter(cfg *Config) (*genai.Router, error) {
	var openaiProvider, anthropicProvider genai.Provider

	if cfg.OpenAIKey != "" {
		opts := append(buildGenAIOptions(cfg), genai.WithAPIKey(cfg.OpenAIKey), genai.WithModel(cfg.OpenAIModel))
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, genai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		cli, err := genai.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		openaiProvider = cli
	}
	if cfg.AnthropicKey != "" {
		opts := append(buildGenAIOptions(cfg), genai.WithAPIKey(cfg.AnthropicKey), genai.WithModel(cfg.AnthropicModel))
		cli, err := genai.NewAnthropicClient(opts...)
		if err != nil {
			return nil, err
		}
		anthropicProvider = cli
	}

	router, err := genai.NewRouter(openaiProvider, anthropicProvider, genai.WithHistoryWindow(cfg.HistoryWindow))
	if errors.Is(err, genai.ErrNoProviderConfigured) {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY or ANTHROPIC_API_KEY", err)
	}
	return router, err
}

// buildStoreOptions constructs session store options
func buildStoreOptions(cfg *Config) []store.Option {
	return []store.Option{store.WithTTL(cfg.SessionTTL), store.WithCacheSize(cfg.CacheSize)}
}

// openStore opens the configured backend, fronted by an LRU cache for durable ones.
func openStore(cfg *Config) (store.SessionStore, error) {
	dsn := storeDSN(cfg)
	if err := ensureDirectoriesExist(dsn); err != nil {
		return nil, err
	}
	backend, err := store.NewFromDSN(dsn, buildStoreOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return backend, nil
	}
	return store.NewCachedStore(backend, buildStoreOptions(cfg)...)
}

// app bundles the wired components shared by every subcommand.
type app struct {
	cfg      *Config
	store    store.SessionStore
	sessions *session.Manager
}

// newApp wires the session manager. dialogue may be nil to build the LLM router from cfg.
func newApp(cfg *Config, dialogue flow.DialogueCapability) (*app, error) {
	if dialogue == nil {
		router, err := buildRouter(cfg)
		if err != nil {
			return nil, err
		}
		dialogue = router
	}

	catalog, err := prompt.NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load stage prompts: %w", err)
	}
	gen := prompt.NewGenerator()
	orch := flow.NewOrchestrator(dialogue, catalog,
		flow.WithFinalPromptGenerator(gen),
		flow.WithDialogueTimeout(cfg.DialogueTimeout))

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	mgr := session.NewManager(orch, st, gen, session.WithLockTimeout(cfg.LockTimeout))
	slog.Debug("AgentBuilder wired", "stateDir", cfg.StateDir, "dsnSet", cfg.DatabaseURL != "", "inMemory", cfg.InMemory)
	return &app{cfg: cfg, store: st, sessions: mgr}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("failed to close session store", "error", err)
	}
}
