package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Paperless PaperlessConfig `mapstructure:"paperless"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Run       RunConfig       `mapstructure:"run"`
	Select    SelectConfig    `mapstructure:"select"`
	Export    ExportConfig    `mapstructure:"export"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// PaperlessConfig holds the connection settings for the document management API.
type PaperlessConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"token_file"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds the OpenAI-compatible OCR endpoint settings.
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	APIKeyFile   string        `mapstructure:"api_key_file"`
	Model        string        `mapstructure:"model"`
	Mode         string        `mapstructure:"mode"` // chat_completions or responses
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	WriteBack    bool          `mapstructure:"write_back"`
}

// RunConfig controls batch execution and the internal engine's polling.
type RunConfig struct {
	Workers            int           `mapstructure:"workers"`
	Timeout            time.Duration `mapstructure:"timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	NoTaskPollInterval time.Duration `mapstructure:"no_task_poll_interval"`
	SnapshotMaxAge     time.Duration `mapstructure:"snapshot_max_age"`
}

// SelectConfig carries selection defaults; callers can override per request.
type SelectConfig struct {
	LowContentThreshold int64 `mapstructure:"low_content_threshold"`
	SampleSize          int   `mapstructure:"sample_size"`
}

// ExportConfig controls the RAG export output tree and the optional
// object-storage mirror.
type ExportConfig struct {
	Root       string       `mapstructure:"root"`
	ReportsDir string       `mapstructure:"reports_dir"`
	Mirror     MirrorConfig `mapstructure:"mirror"`
}

// MirrorConfig is the S3-compatible mirror for export artifacts.
type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible; auto-detected if empty
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	PublicURL string `mapstructure:"public_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/ocrtrack.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("paperless.base_url", "http://localhost:8000")
	v.SetDefault("paperless.page_size", 200)
	v.SetDefault("paperless.timeout", 30*time.Second)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.mode", "chat_completions")
	v.SetDefault("llm.timeout", 180*time.Second)
	v.SetDefault("llm.retry_count", 2)
	v.SetDefault("llm.retry_backoff", 2*time.Second)
	v.SetDefault("llm.write_back", true)
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.timeout", 600*time.Second)
	v.SetDefault("run.poll_interval", 2*time.Second)
	v.SetDefault("run.no_task_poll_interval", 5*time.Second)
	v.SetDefault("run.snapshot_max_age", 10*time.Minute)
	v.SetDefault("select.low_content_threshold", 100)
	v.SetDefault("select.sample_size", 10)
	v.SetDefault("export.root", "./data/rag_export")
	v.SetDefault("export.reports_dir", "./data/reports")
	v.SetDefault("export.mirror.enabled", false)
	v.SetDefault("export.mirror.use_ssl", true)
	v.SetDefault("export.mirror.bucket", "ocrtrack-exports")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("paperless.base_url", "PAPERLESS_BASE_URL")
	v.BindEnv("paperless.token", "PAPERLESS_TOKEN")
	v.BindEnv("paperless.token_file", "PAPERLESS_TOKEN_FILE")
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.api_key_file", "OPENAI_API_KEY_FILE")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("export.mirror.access_key", "MIRROR_ACCESS_KEY")
	v.BindEnv("export.mirror.secret_key", "MIRROR_SECRET_KEY")
	v.BindEnv("export.mirror.endpoint", "MIRROR_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveSecrets loads token values from secret files when the inline value
// is empty. File contents win over nothing, never over an explicit value.
func (c *Config) resolveSecrets() error {
	if c.Paperless.Token == "" && c.Paperless.TokenFile != "" {
		tok, err := readSecretFile(c.Paperless.TokenFile)
		if err != nil {
			return fmt.Errorf("failed to read paperless token file: %w", err)
		}
		c.Paperless.Token = tok
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyFile != "" {
		key, err := readSecretFile(c.LLM.APIKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read llm api key file: %w", err)
		}
		c.LLM.APIKey = key
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
