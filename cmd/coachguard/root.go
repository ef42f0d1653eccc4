package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strideworks/coachguard/internal/agent"
	"github.com/strideworks/coachguard/internal/genai"
	"github.com/strideworks/coachguard/internal/lifecycle"
	"github.com/strideworks/coachguard/internal/notify"
	"github.com/strideworks/coachguard/internal/perception"
	"github.com/strideworks/coachguard/internal/privacy"
	"github.com/strideworks/coachguard/internal/store"
	"github.com/strideworks/coachguard/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for coachguard state data
	DefaultStateDir = "/var/lib/coachguard"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "coachguard.db"
	// DefaultMetricsDirName is the default subdirectory for subject metrics files
	DefaultMetricsDirName = "metrics"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

var (
	// Global flags
	cfgFile    string
	stateDir   string
	dbDSN      string
	metricsDir string
	apiAddr    string
	openaiKey  string
)

// Config holds runtime configuration, merged from the environment, an
// optional YAML config file, and command line flags (highest precedence).
type Config struct {
	StateDir          string `yaml:"state_dir"`
	DBDSN             string `yaml:"db_dsn"`
	MetricsDir        string `yaml:"metrics_dir"`
	APIAddr           string `yaml:"api_addr"`
	OpenAIKey         string `yaml:"openai_api_key"`
	OpenAIModel       string `yaml:"openai_model"`
	DecisionTimeoutS  int    `yaml:"decision_timeout_seconds"`
	TwilioAccountSID  string `yaml:"twilio_account_sid"`
	TwilioAuthToken   string `yaml:"twilio_auth_token"`
	TwilioFromNumber  string `yaml:"twilio_from_number"`
	CoachPhoneNumber  string `yaml:"coach_phone_number"`
	OversightDisabled bool   `yaml:"oversight_notifications_disabled"`
}

var rootCmd = &cobra.Command{
	Use:   "coachguard",
	Short: "Guardrail and decision-lifecycle engine for autonomous training agents",
	Long: `coachguard evaluates proposed coaching actions against safety rules,
consent records, and autonomy preferences, and manages the lifecycle of
every decision the agent makes.

Core Commands:
  serve    Run the HTTP API server
  cycle    Run a single agent cycle for one subject
  gdpr     Data lifecycle operations (delete, anonymize, summary)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory for coachguard data (overrides $COACHGUARD_STATE_DIR)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", "", "database DSN, a Postgres URL or SQLite path (overrides $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&metricsDir, "metrics-dir", "", "directory of per-subject metrics files (overrides $COACHGUARD_METRICS_DIR)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "", "API server address (overrides $API_ADDR)")
	rootCmd.PersistentFlags().StringVar(&openaiKey, "openai-api-key", "", "OpenAI API key (overrides $OPENAI_API_KEY)")
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadConfig merges environment variables, the optional YAML config file,
// and command line flags into one Config.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          os.Getenv("COACHGUARD_STATE_DIR"),
		DBDSN:             os.Getenv("DATABASE_URL"),
		MetricsDir:        os.Getenv("COACHGUARD_METRICS_DIR"),
		APIAddr:           os.Getenv("API_ADDR"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		DecisionTimeoutS:  util.ParseIntEnv("DECISION_TIMEOUT_SECONDS", 0),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		CoachPhoneNumber:  os.Getenv("COACH_PHONE_NUMBER"),
		OversightDisabled: util.ParseBoolEnv("OVERSIGHT_NOTIFICATIONS_DISABLED", false),
	}

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", cfgFile, err)
		}
		slog.Debug("loaded config file", "path", cfgFile)
	}

	// Flags take precedence over file and environment.
	if stateDir != "" {
		config.StateDir = stateDir
	}
	if dbDSN != "" {
		config.DBDSN = dbDSN
	}
	if metricsDir != "" {
		config.MetricsDir = metricsDir
	}
	if apiAddr != "" {
		config.APIAddr = apiAddr
	}
	if openaiKey != "" {
		config.OpenAIKey = openaiKey
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No state directory set, using default", "state_dir", config.StateDir)
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}
	if config.MetricsDir == "" {
		config.MetricsDir = filepath.Join(config.StateDir, DefaultMetricsDirName)
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("configuration loaded",
		"state_dir", config.StateDir,
		"dsn_set", config.DBDSN != "",
		"metrics_dir", config.MetricsDir,
		"api_addr", config.APIAddr,
		"openai_key_set", config.OpenAIKey != "",
		"twilio_configured", config.TwilioAccountSID != "")

	return config, nil
}

// isPostgresDSN reports whether the DSN targets PostgreSQL rather than a
// SQLite file path.
func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=")
}

// engine bundles the wired components a command operates on.
type engine struct {
	store   store.Store
	locks   *store.SubjectLocks
	lm      *lifecycle.Manager
	orch    *agent.Orchestrator
	privacy *privacy.Service
}

// buildStoreEngine opens the store and wires the components that do not need
// a decision provider. The gdpr commands use this directly.
func buildStoreEngine(config Config) (*engine, error) {
	var st store.Store
	var err error
	if isPostgresDSN(config.DBDSN) {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		st, err = store.NewPostgresStore(store.WithDSN(config.DBDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", config.DBDSN)
		st, err = store.NewSQLiteStore(store.WithDSN(config.DBDSN))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	locks := store.NewSubjectLocks()
	return &engine{
		store:   st,
		locks:   locks,
		lm:      lifecycle.NewManager(st),
		privacy: privacy.NewService(st, locks),
	}, nil
}

// buildEngine extends buildStoreEngine with the decision provider, perception
// provider, and agent orchestrator.
func buildEngine(config Config) (*engine, error) {
	eng, err := buildStoreEngine(config)
	if err != nil {
		return nil, err
	}

	var genaiOpts []genai.Option
	if config.OpenAIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(config.OpenAIKey))
	}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	decisions, err := genai.NewClient(genaiOpts...)
	if err != nil {
		eng.close()
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	source := perception.NewFileSource(config.MetricsDir)
	provider := perception.NewProvider(source)

	var agentOpts []agent.Option
	if config.DecisionTimeoutS > 0 {
		agentOpts = append(agentOpts, agent.WithDecisionTimeout(time.Duration(config.DecisionTimeoutS)*time.Second))
	}
	if !config.OversightDisabled && config.TwilioAccountSID != "" {
		notifier, err := notify.NewTwilioNotifier(
			notify.WithAccountSID(config.TwilioAccountSID),
			notify.WithAuthToken(config.TwilioAuthToken),
			notify.WithFrom(config.TwilioFromNumber),
			notify.WithCoachNumber(config.CoachPhoneNumber),
		)
		if err != nil {
			slog.Warn("Oversight notifier unavailable, continuing without SMS notifications", "error", err)
		} else {
			agentOpts = append(agentOpts, agent.WithNotifier(notifier))
		}
	}

	eng.orch = agent.NewOrchestrator(eng.store, eng.locks, provider, decisions, source, eng.lm, agentOpts...)
	return eng, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
}
