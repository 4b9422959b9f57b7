// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dvloznov/invoice-agent/internal/clients"
	"github.com/dvloznov/invoice-agent/internal/invoice"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Oracle providers.
const (
	OracleGemini = "gemini"
	OracleOpenAI = "openai"
)

// Ledger backends.
const (
	LedgerSheets   = "sheets"
	LedgerXLSX     = "xlsx"
	LedgerBigQuery = "bigquery"
)

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveGCS   = "gcs"
	ArchiveMinIO = "minio"
)

// Telegram configures the bot.
type Telegram struct {
	Token         string `env:"TELEGRAM_CLIENT_BOT_TOKEN"`
	ManagerChatID int64  `env:"MANAGER_CHAT_ID"`
}

// Oracle configures the extraction oracle.
type Oracle struct {
	Provider      string        `env:"ORACLE_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIModel   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAITimeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
	MinPDFText    int           `env:"MIN_PDF_TEXT_CHARS" envDefault:"50"`
}

// Ledger selects where approved invoices are recorded.
type Ledger struct {
	Backend         string `env:"LEDGER_BACKEND" envDefault:"sheets"`
	SheetsID        string `env:"GOOGLE_SHEETS_ID"`
	XLSXPath        string `env:"XLSX_PATH" envDefault:"invoices.xlsx"`
	BigQueryProject string `env:"BIGQUERY_PROJECT"`
	BigQueryDataset string `env:"BIGQUERY_DATASET" envDefault:"invoices"`
	BigQueryTable   string `env:"BIGQUERY_TABLE" envDefault:"invoices"`
}

// Archive selects where original files are kept.
type Archive struct {
	Backend        string        `env:"ARCHIVE_BACKEND" envDefault:"none"`
	GCSBucket      string        `env:"GCS_BUCKET"`
	MinIOEndpoint  string        `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string        `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string        `env:"MINIO_SECRET_KEY"`
	MinIOBucket    string        `env:"MINIO_BUCKET"`
	MinIORegion    string        `env:"MINIO_REGION"`
	MinIOUseSSL    bool          `env:"MINIO_USE_SSL" envDefault:"true"`
	MinIOLinkTTL   time.Duration `env:"MINIO_LINK_TTL" envDefault:"168h"`
}

// Config is the complete service configuration.
type Config struct {
	Telegram Telegram
	Oracle   Oracle
	Ledger   Ledger
	Archive  Archive

	ClientDirectory string `env:"CLIENT_DIRECTORY"`
	DisplayLocale   string `env:"DISPLAY_LOCALE" envDefault:"he"`
	NotifySubmitter bool   `env:"NOTIFY_SUBMITTER" envDefault:"true"`

	HTTPPort   int    `env:"HTTP_PORT" envDefault:"8080"`
	APIToken   string `env:"API_TOKEN"`
	Workers    int    `env:"WORKERS" envDefault:"5"`
	QueueSize  int    `env:"QUEUE_SIZE" envDefault:"100"`
	JobHistory int    `env:"JOB_HISTORY" envDefault:"500"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses the process environment. It does not validate.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Locale returns the display locale.
func (c Config) Locale() invoice.Locale {
	return invoice.ParseLocale(c.DisplayLocale)
}

// Validate checks the settings the serve command needs.
func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return invalid("TELEGRAM_CLIENT_BOT_TOKEN is required")
	}
	if c.Telegram.ManagerChatID == 0 {
		return invalid("MANAGER_CHAT_ID is required")
	}
	if err := c.ValidateOracle(); err != nil {
		return err
	}

	switch c.Ledger.Backend {
	case LedgerSheets:
		if c.Ledger.SheetsID == "" {
			return invalid("GOOGLE_SHEETS_ID is required for the sheets ledger")
		}
	case LedgerXLSX:
		if c.Ledger.XLSXPath == "" {
			return invalid("XLSX_PATH is required for the xlsx ledger")
		}
	case LedgerBigQuery:
		if c.Ledger.BigQueryProject == "" {
			return invalid("BIGQUERY_PROJECT is required for the bigquery ledger")
		}
	default:
		return invalid("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return invalid("GCS_BUCKET is required for the gcs archive")
		}
	case ArchiveMinIO:
		if c.Archive.MinIOEndpoint == "" || c.Archive.MinIOBucket == "" {
			return invalid("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio archive")
		}
	default:
		return invalid("unknown ARCHIVE_BACKEND %q", c.Archive.Backend)
	}

	if _, err := clients.ParseDirectory(c.ClientDirectory); err != nil {
		return invalid("CLIENT_DIRECTORY: %v", err)
	}
	if c.Workers < 1 || c.QueueSize < 1 {
		return invalid("WORKERS and QUEUE_SIZE must be positive")
	}
	return nil
}

// ValidateOracle checks only the oracle settings, for commands that run
// extraction without the bot.
func (c Config) ValidateOracle() error {
	switch c.Oracle.Provider {
	case OracleGemini:
	case OracleOpenAI:
		if c.Oracle.OpenAIAPIKey == "" {
			return invalid("OPENAI_API_KEY is required for the openai oracle")
		}
	default:
		return invalid("unknown ORACLE_PROVIDER %q", c.Oracle.Provider)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
