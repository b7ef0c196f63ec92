package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/StudyPipe/internal/api"
	"github.com/BTreeMap/StudyPipe/internal/flow"
	"github.com/BTreeMap/StudyPipe/internal/genai"
	"github.com/BTreeMap/StudyPipe/internal/lockfile"
	"github.com/BTreeMap/StudyPipe/internal/session"
	"github.com/BTreeMap/StudyPipe/internal/store"
	"github.com/BTreeMap/StudyPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StudyPipe state data
	DefaultStateDir = "/var/lib/studypipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "studypipe.db"
	// DefaultLLMTimeout is the per-attempt LLM timeout
	DefaultLLMTimeout = 120 * time.Second
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	sessionOpts := buildSessionOptions(flags)
	flowOpts := buildFlowOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping StudyPipe with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "session", len(sessionOpts), "flow", len(flowOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "redis_set", *flags.redisAddr != "", "api_addr", *flags.apiAddr)

	runErr := api.Run(storeOpts, genaiOpts, sessionOpts, flowOpts, apiOpts)
	lock.Release()
	if runErr != nil {
		slog.Error("StudyPipe failed to run", "error", runErr)
		os.Exit(1)
	}
	slog.Info("StudyPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir        string
	DatabaseURL     string
	OpenAIKey       string
	OpenAIModel     string
	OpenAIBaseURL   string
	GenAIDebug      bool
	LLMTimeout      time.Duration
	RedisAddr       string
	SessionTTL      time.Duration
	APIAddr         string
	LockTimeout     time.Duration
	SetupPromptFile string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	openaiBaseURL *string
	genaiDebug    *bool
	llmTimeout    *time.Duration
	redisAddr     *string
	sessionTTL    *time.Duration
	apiAddr       *string
	lockTimeout   *time.Duration
	promptFile    *string
}

// initializeLogger sets up structured logging; the level defaults to debug.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
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
		StateDir:        os.Getenv("STUDYPIPE_STATE_DIR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		GenAIDebug:      util.ParseBoolEnv("GENAI_DEBUG", false),
		LLMTimeout:      util.ParseDurationEnv("LLM_TIMEOUT", DefaultLLMTimeout),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", session.DefaultSessionTTL),
		APIAddr:         os.Getenv("API_ADDR"),
		LockTimeout:     util.ParseDurationEnv("TURN_LOCK_TIMEOUT", api.DefaultLockTimeout),
		SetupPromptFile: os.Getenv("SETUP_PROMPT_FILE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STUDYPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"STUDYPIPE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"OPENAI_BASE_URL_SET", config.OpenAIBaseURL != "",
		"GENAI_DEBUG", config.GenAIDebug,
		"LLM_TIMEOUT", config.LLMTimeout,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"SESSION_TTL", config.SessionTTL,
		"API_ADDR", config.APIAddr,
		"TURN_LOCK_TIMEOUT", config.LockTimeout,
		"SETUP_PROMPT_FILE", config.SetupPromptFile)

	return config
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("StudyPipe", flag.ContinueOnError)
	flags := Flags{
		stateDir:      fs.String("state-dir", config.StateDir, "state directory for StudyPipe data (overrides $STUDYPIPE_STATE_DIR)"),
		dbDSN:         fs.String("db-dsn", config.DatabaseURL, "study database DSN: Postgres URL, MongoDB URI or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:     fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   fs.String("openai-model", config.OpenAIModel, "chat model (overrides $OPENAI_MODEL)"),
		openaiBaseURL: fs.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		genaiDebug:    fs.Bool("genai-debug", config.GenAIDebug, "write per-call LLM debug logs to <state-dir>/debug (overrides $GENAI_DEBUG)"),
		llmTimeout:    fs.Duration("llm-timeout", config.LLMTimeout, "per-attempt LLM timeout (overrides $LLM_TIMEOUT)"),
		redisAddr:     fs.String("redis-addr", config.RedisAddr, "Redis address for sessions and study locks (overrides $REDIS_ADDR)"),
		sessionTTL:    fs.Duration("session-ttl", config.SessionTTL, "idle setup session lifetime (overrides $SESSION_TTL)"),
		apiAddr:       fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		lockTimeout:   fs.Duration("turn-lock-timeout", config.LockTimeout, "how long a turn waits for another turn on the same study (overrides $TURN_LOCK_TIMEOUT)"),
		promptFile:    fs.String("setup-prompt-file", config.SetupPromptFile, "setup system prompt file (overrides $SETUP_PROMPT_FILE)"),
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"openaiBaseURLSet", *flags.openaiBaseURL != "",
		"genaiDebug", *flags.genaiDebug,
		"llmTimeout", *flags.llmTimeout,
		"redisAddrSet", *flags.redisAddr != "",
		"sessionTTL", *flags.sessionTTL,
		"apiAddr", *flags.apiAddr,
		"lockTimeout", *flags.lockTimeout,
		"promptFile", *flags.promptFile)

	// keep the default SQLite file inside a state directory moved by flag
	defaultDSN := filepath.Join(config.StateDir, DefaultDBFileName)
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == defaultDSN && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags, nil
}

// ensureDirectoriesExist creates the state directory and, for SQLite, the database directory
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", *flags.stateDir, err)
	}
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for SQLite database", "db_dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	switch store.DetectDSNType(*flags.dbDSN) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	case "mongodb":
		slog.Debug("Detected MongoDB URI, configuring MongoDB store", "dsn_type", "mongodb", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithMongoDSN(*flags.dbDSN))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if flags.openaiBaseURL != nil && *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(*flags.stateDir))
	}
	return genaiOpts
}

// buildSessionOptions constructs session backend options
func buildSessionOptions(flags Flags) []session.Option {
	var sessionOpts []session.Option
	if *flags.redisAddr != "" {
		sessionOpts = append(sessionOpts, session.WithRedisAddr(*flags.redisAddr))
	}
	if flags.sessionTTL != nil && *flags.sessionTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithTTL(*flags.sessionTTL))
	}
	return sessionOpts
}

// buildFlowOptions constructs setup flow options
func buildFlowOptions(flags Flags) []flow.Option {
	var flowOpts []flow.Option
	if *flags.promptFile != "" {
		flowOpts = append(flowOpts, flow.WithSystemPromptFile(*flags.promptFile))
	}
	return flowOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.llmTimeout > 0 {
		apiOpts = append(apiOpts, api.WithLLMTimeout(*flags.llmTimeout))
	}
	if flags.lockTimeout != nil && *flags.lockTimeout > 0 {
		apiOpts = append(apiOpts, api.WithLockTimeout(*flags.lockTimeout))
	}
	return apiOpts
}
