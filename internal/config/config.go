package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"

	"taskbot/internal/bitrix"
)

// Journal backends
const (
	JournalNone       = "none"
	JournalMemory     = "memory"
	JournalClickHouse = "clickhouse"
)

// Config holds the application configuration
type Config struct {
	TelegramToken  string  `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	AllowedUserIDs []int64 `env:"ALLOWED_USER_IDS" envSeparator:","`

	// Bot mode configuration
	WebhookMode   bool   `env:"WEBHOOK_MODE"` // If true, use webhook mode; if false, use polling mode
	WebhookURL    string `env:"WEBHOOK_URL"`  // Public base URL (required if WebhookMode is true)
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	Port          int    `env:"PORT" envDefault:"8080"`

	// Bitrix24
	BitrixWebhookURL   string `env:"BITRIX_WEBHOOK_URL,required,notEmpty"`
	BitrixFolderID     int64  `env:"BITRIX_FOLDER_ID,required,notEmpty"`
	BitrixUploadMode   string `env:"BITRIX_UPLOAD_MODE" envDefault:"direct"`
	BitrixUploadMethod string `env:"BITRIX_UPLOAD_METHOD" envDefault:"disk.folder.uploadfile"`
	BitrixTaskMethod   string `env:"BITRIX_TASK_METHOD" envDefault:"tasks.task.add"`
	BitrixCreatedBy    int64  `env:"BITRIX_CREATED_BY"`

	// Drafts and files
	CategoriesFile    string `env:"CATEGORIES_FILE"`
	MaxFileSize       int64  `env:"MAX_FILE_SIZE" envDefault:"52428800"`
	MemoryBufferLimit int64  `env:"MEMORY_BUFFER_LIMIT" envDefault:"1048576"`
	EagerDownload     bool   `env:"EAGER_DOWNLOAD"`
	TempDir           string `env:"TEMP_DIR"`

	// Timeouts
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	TaskTimeout   time.Duration `env:"TASK_TIMEOUT" envDefault:"10s"`

	// Deadline
	DeadlineWorkdays int    `env:"DEADLINE_WORKDAYS" envDefault:"3"`
	TaskTimezone     string `env:"TASK_TIMEZONE" envDefault:"Local"`

	// Temp file cleanup
	JanitorSchedule string        `env:"JANITOR_SCHEDULE" envDefault:"@every 1h"`
	TempMaxAge      time.Duration `env:"TEMP_MAX_AGE" envDefault:"24h"`

	// Submission journal
	JournalBackend     string `env:"JOURNAL_BACKEND" envDefault:"none"`
	ClickHouseHost     string `env:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `env:"CLICKHOUSE_PORT" envDefault:"9000"`
	ClickHouseDatabase string `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
	ClickHouseUser     string `env:"CLICKHOUSE_USER" envDefault:"default"`
	ClickHousePassword string `env:"CLICKHOUSE_PASSWORD"`
	ClickHouseUseTLS   bool   `env:"CLICKHOUSE_USE_TLS"`

	// Logging
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks rules that span several variables
func (c *Config) Validate() error {
	if c.WebhookMode && c.WebhookURL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
	}

	if c.BitrixFolderID <= 0 {
		return fmt.Errorf("BITRIX_FOLDER_ID must be a positive folder id")
	}

	switch bitrix.UploadMode(c.BitrixUploadMode) {
	case bitrix.UploadDirect, bitrix.UploadTwoStep:
	default:
		return fmt.Errorf("invalid BITRIX_UPLOAD_MODE %q (want %s or %s)", c.BitrixUploadMode, bitrix.UploadDirect, bitrix.UploadTwoStep)
	}

	switch c.JournalBackend {
	case JournalNone, JournalMemory:
	case JournalClickHouse:
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when JOURNAL_BACKEND is clickhouse")
		}
	default:
		return fmt.Errorf("invalid JOURNAL_BACKEND %q", c.JournalBackend)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.MemoryBufferLimit < 0 {
		return fmt.Errorf("MEMORY_BUFFER_LIMIT must not be negative")
	}
	if c.DeadlineWorkdays < 0 {
		return fmt.Errorf("DEADLINE_WORKDAYS must not be negative")
	}
	if c.FetchTimeout <= 0 || c.UploadTimeout <= 0 || c.TaskTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone used for task deadlines
func (c *Config) Location() (*time.Location, error) {
	if c.TaskTimezone == "" || c.TaskTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TaskTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TASK_TIMEZONE: %w", err)
	}
	return loc, nil
}
