package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/linnemanlabs/safewatch/internal/llm/azure"
)

// Classifier provider selections.
const (
	ClassifierAuto   = "auto"
	ClassifierAzure  = "azure"
	ClassifierClaude = "claude"
	ClassifierNone   = "none"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	PublicURL             string

	DatabaseURL    string
	SQLitePath     string
	UploadDir      string
	MaxUploadBytes int64

	Classifier               string
	AzureEndpoint            string
	AzureKey                 string
	AzureDeployment          string
	AzureAPIVersion          string
	ClaudeAPIKey             string
	ClaudeModel              string
	ClassifierTimeoutSeconds int
	BreakerFailures          int
	BreakerCooldownSeconds   int

	MapSyncSeconds      int
	WSOriginPatterns    string
	IntakeRatePerMinute int
	IntakeBurst         int
	SlackWebhookURL     string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.PublicURL, "public-url", "", "externally reachable base URL, used for links in notifications")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = sqlite or in-memory store)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file (empty = in-memory store unless database-url is set)")
	fs.StringVar(&c.UploadDir, "upload-dir", "uploads", "directory for uploaded alert images (empty disables uploads)")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 10<<20, "maximum alert creation request size in bytes")

	fs.StringVar(&c.Classifier, "classifier", ClassifierAuto, "risk classifier provider: auto, azure, claude or none")
	fs.StringVar(&c.AzureEndpoint, "azure-endpoint", "", "Azure OpenAI resource endpoint (https://<resource>.openai.azure.com)")
	fs.StringVar(&c.AzureKey, "azure-key", "", "Azure OpenAI api-key")
	fs.StringVar(&c.AzureDeployment, "azure-deployment", azure.DefaultDeployment, "Azure OpenAI deployment name")
	fs.StringVar(&c.AzureAPIVersion, "azure-api-version", azure.DefaultAPIVersion, "Azure OpenAI API version")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude classifier provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.IntVar(&c.ClassifierTimeoutSeconds, "classifier-timeout-seconds", 30, "timeout for one external classification call (1..300)")
	fs.IntVar(&c.BreakerFailures, "breaker-failures", 5, "consecutive classifier failures before the circuit opens (1..100)")
	fs.IntVar(&c.BreakerCooldownSeconds, "breaker-cooldown-seconds", 30, "seconds the classifier circuit stays open (1..3600)")

	fs.IntVar(&c.MapSyncSeconds, "map-sync-seconds", 5, "map reconciliation interval in seconds (1..3600)")
	fs.StringVar(&c.WSOriginPatterns, "ws-origin-patterns", "", "comma-separated extra origins allowed on the map websocket")
	fs.IntVar(&c.IntakeRatePerMinute, "intake-rate-per-minute", 60, "alert creations allowed per minute (0 = unlimited)")
	fs.IntVar(&c.IntakeBurst, "intake-burst", 10, "alert creation burst size")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for high-risk alert notifications")
}

// ClassifierProvider resolves the configured provider. In auto mode Azure is
// preferred when its credentials are present, then Claude, else none.
func (c *Config) ClassifierProvider() string {
	switch mode := strings.ToLower(strings.TrimSpace(c.Classifier)); mode {
	case ClassifierAzure, ClassifierClaude, ClassifierNone:
		return mode
	case "", ClassifierAuto:
		switch {
		case c.AzureEndpoint != "" && c.AzureKey != "":
			return ClassifierAzure
		case c.ClaudeAPIKey != "":
			return ClassifierClaude
		default:
			return ClassifierNone
		}
	default:
		return mode
	}
}

// OriginPatterns splits WSOriginPatterns into a list, dropping blanks.
func (c *Config) OriginPatterns() []string {
	var out []string
	for _, p := range strings.Split(c.WSOriginPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// One durable store at most
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_UPLOAD_BYTES %d (must be > 0)", c.MaxUploadBytes))
	}

	switch c.ClassifierProvider() {
	case ClassifierAzure:
		if c.AzureEndpoint == "" {
			errs = append(errs, errors.New("AZURE_ENDPOINT is required for the azure classifier"))
		} else if err := azure.ValidateEndpoint(c.AzureEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid AZURE_ENDPOINT: %w", err))
		}
		if c.AzureKey == "" {
			errs = append(errs, errors.New("AZURE_KEY is required for the azure classifier"))
		}
		if c.AzureDeployment == "" {
			errs = append(errs, errors.New("AZURE_DEPLOYMENT is required for the azure classifier"))
		}
	case ClassifierClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude classifier"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required for the claude classifier"))
		}
	case ClassifierNone:
	default:
		errs = append(errs, fmt.Errorf("invalid CLASSIFIER %q (must be auto, azure, claude or none)", c.Classifier))
	}

	if c.ClassifierTimeoutSeconds <= 0 || c.ClassifierTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFIER_TIMEOUT_SECONDS %d (must be 1..300)", c.ClassifierTimeoutSeconds))
	}
	if c.BreakerFailures <= 0 || c.BreakerFailures > 100 {
		errs = append(errs, fmt.Errorf("invalid BREAKER_FAILURES %d (must be 1..100)", c.BreakerFailures))
	}
	if c.BreakerCooldownSeconds <= 0 || c.BreakerCooldownSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid BREAKER_COOLDOWN_SECONDS %d (must be 1..3600)", c.BreakerCooldownSeconds))
	}
	if c.MapSyncSeconds <= 0 || c.MapSyncSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid MAP_SYNC_SECONDS %d (must be 1..3600)", c.MapSyncSeconds))
	}
	if c.IntakeRatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("invalid INTAKE_RATE_PER_MINUTE %d (must be >= 0)", c.IntakeRatePerMinute))
	}
	if c.IntakeRatePerMinute > 0 && c.IntakeBurst <= 0 {
		errs = append(errs, fmt.Errorf("invalid INTAKE_BURST %d (must be > 0 when rate limiting)", c.IntakeBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
