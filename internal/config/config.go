package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal    PortalConfig    `yaml:"portal" mapstructure:"portal"`
	Downloads DownloadsConfig `yaml:"downloads" mapstructure:"downloads"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Triage    TriageConfig    `yaml:"triage" mapstructure:"triage"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Evolution EvolutionConfig `yaml:"evolution" mapstructure:"evolution"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PortalConfig configures the ConLicitação session.
type PortalConfig struct {
	BaseURL             string `yaml:"base_url" mapstructure:"base_url"`
	Email               string `yaml:"email" mapstructure:"email"`
	Password            string `yaml:"password" mapstructure:"password"`
	Headless            bool   `yaml:"headless" mapstructure:"headless"`
	DelayMinSecs        int    `yaml:"delay_min_secs" mapstructure:"delay_min_secs"`
	DelayMaxSecs        int    `yaml:"delay_max_secs" mapstructure:"delay_max_secs"`
	NavTimeoutSecs      int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ActionTimeoutSecs   int    `yaml:"action_timeout_secs" mapstructure:"action_timeout_secs"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
	ListingPageCap      int    `yaml:"listing_page_cap" mapstructure:"listing_page_cap"`
	SearchPageCap       int    `yaml:"search_page_cap" mapstructure:"search_page_cap"`
	MaxRetries          int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// DelayRange returns the humanized pacing bounds.
func (c PortalConfig) DelayRange() (time.Duration, time.Duration) {
	return time.Duration(c.DelayMinSecs) * time.Second, time.Duration(c.DelayMaxSecs) * time.Second
}

// NavTimeout returns the page navigation timeout.
func (c PortalConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSecs) * time.Second
}

// ActionTimeout returns the per-interaction timeout.
func (c PortalConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSecs) * time.Second
}

// DownloadTimeout returns the file capture timeout.
func (c PortalConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSecs) * time.Second
}

// DownloadsConfig configures the local download tree.
type DownloadsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// XLSX returns the directory for structured exports.
func (c DownloadsConfig) XLSX() string { return filepath.Join(c.Dir, "xlsx") }

// Zips returns the directory for downloaded document bundles.
func (c DownloadsConfig) Zips() string { return filepath.Join(c.Dir, "zips") }

// PDFs returns the directory for expanded documents.
func (c DownloadsConfig) PDFs() string { return filepath.Join(c.Dir, "pdfs") }

// Ensure creates the download tree.
func (c DownloadsConfig) Ensure() error {
	for _, d := range []string{c.Dir, c.XLSX(), c.Zips(), c.PDFs()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return eris.Wrapf(err, "config: create dir %s", d)
		}
	}
	return nil
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	TriageModel   string `yaml:"triage_model" mapstructure:"triage_model"`
	AnalysisModel string `yaml:"analysis_model" mapstructure:"analysis_model"`
}

// TriageConfig configures classification behavior.
type TriageConfig struct {
	// Mode is "llm" (keyword fallback on API failure) or "keywords".
	Mode        string `yaml:"mode" mapstructure:"mode"`
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MaxChars      int    `yaml:"max_chars" mapstructure:"max_chars"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// EvolutionConfig holds Evolution API (WhatsApp) settings.
type EvolutionConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Key             string  `yaml:"key" mapstructure:"key"`
	Instance        string  `yaml:"instance" mapstructure:"instance"`
	Recipient       string  `yaml:"recipient" mapstructure:"recipient"`
	MaxMessageChars int     `yaml:"max_message_chars" mapstructure:"max_message_chars"`
	RatePerSecond   float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// Enabled reports whether a recipient is configured.
func (c EvolutionConfig) Enabled() bool { return c.Recipient != "" }

// ArchiveConfig holds the optional FTP document archive settings.
type ArchiveConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Root     string `yaml:"root" mapstructure:"root"`
}

// Enabled reports whether the archive mirror is configured.
func (c ArchiveConfig) Enabled() bool { return c.Host != "" }

// NotionConfig holds the optional opportunity-board settings.
type NotionConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BoardDB string `yaml:"board_db" mapstructure:"board_db"`
}

// Enabled reports whether board sync is configured.
func (c NotionConfig) Enabled() bool { return c.Token != "" && c.BoardDB != "" }

// ServerConfig configures the trigger HTTP server.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.base_url", "https://consulteonline.conlicitacao.com.br")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.delay_min_secs", 2)
	v.SetDefault("portal.delay_max_secs", 5)
	v.SetDefault("portal.nav_timeout_secs", 60)
	v.SetDefault("portal.action_timeout_secs", 10)
	v.SetDefault("portal.download_timeout_secs", 60)
	v.SetDefault("portal.listing_page_cap", 20)
	v.SetDefault("portal.search_page_cap", 8)
	v.SetDefault("portal.max_retries", 3)
	v.SetDefault("downloads.dir", "downloads")
	v.SetDefault("anthropic.triage_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.analysis_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("triage.mode", "llm")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.max_chars", 50000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "indflow.db")
	v.SetDefault("evolution.base_url", "http://localhost:8080")
	v.SetDefault("evolution.instance", "indflow")
	v.SetDefault("evolution.max_message_chars", 4000)
	v.SetDefault("evolution.rate_per_second", 1)
	v.SetDefault("archive.root", "editais")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by the given command mode are
// present. Mode is one of "process", "serve", "stats".
func (c *Config) Validate(mode string) error {
	var missing []string

	needStore := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}
	needPortal := func() {
		if c.Portal.Email == "" {
			missing = append(missing, "portal.email is required")
		}
		if c.Portal.Password == "" {
			missing = append(missing, "portal.password is required")
		}
		if c.Triage.Mode != "keywords" && c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required (or set triage.mode: keywords)")
		}
	}

	switch mode {
	case "process":
		needPortal()
		needStore()
	case "serve":
		needPortal()
		needStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "stats":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
