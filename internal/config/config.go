package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone      = "UTC"
	configPathEnv        = "FEEDRELAY_CONFIG"
	databaseDriverEnv    = "DATABASE_DRIVER"
	databaseDSNEnv       = "DATABASE_DSN"
	logLevelEnv          = "LOG_LEVEL"
	wordpressURLEnv      = "WORDPRESS_URL"
	wordpressUserEnv     = "WORDPRESS_USER"
	wordpressPasswordEnv = "WORDPRESS_APP_PASSWORD"
	copyscapeUserEnv     = "COPYSCAPE_USER"
	copyscapeKeyEnv      = "COPYSCAPE_KEY"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Supported plagiarism providers.
const (
	PlagiarismNone      = "none"
	PlagiarismCopyscape = "copyscape"
	PlagiarismHTTP      = "http"
)

// ErrInvalid marks configuration that cannot run.
var ErrInvalid = errors.New("invalid configuration")

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Ingestion     IngestionConfig    `yaml:"ingestion"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Retry         RetryConfig        `yaml:"retry"`
	Publish       PublishConfig      `yaml:"publish"`
	WordPress     WordPressConfig    `yaml:"wordpress"`
	Plagiarism    PlagiarismConfig   `yaml:"plagiarism"`
	Health        HealthConfig       `yaml:"health"`
	Retention     RetentionConfig    `yaml:"retention"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Server        ServerConfig       `yaml:"server"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the store backend.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	MongoDatabase string `yaml:"mongoDatabase"`
}

// IngestionConfig tunes feed fetching and normalization.
type IngestionConfig struct {
	Niches            []string      `yaml:"niches"`
	MaxItemsPerSource int           `yaml:"maxItemsPerSource"`
	CharThreshold     int           `yaml:"charThreshold"`
	SummaryWords      int           `yaml:"summaryWords"`
	MaxTextLength     int           `yaml:"maxTextLength"`
	ItemDelay         time.Duration `yaml:"itemDelay"`
	Workers           int           `yaml:"workers"`
	FetchTimeout      time.Duration `yaml:"fetchTimeout"`
	UserAgent         string        `yaml:"userAgent"`
	RespectRobots     bool          `yaml:"respectRobots"`
	DefaultLanguage   string        `yaml:"defaultLanguage"`
}

// DedupConfig bounds the near-duplicate window.
type DedupConfig struct {
	LocalThreshold float64       `yaml:"localThreshold"`
	Window         time.Duration `yaml:"window"`
	WindowLimit    int           `yaml:"windowLimit"`
}

// RetryConfig is the shared backoff policy for network calls.
type RetryConfig struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
}

// PublishConfig tunes the publish batch.
type PublishConfig struct {
	BatchSize          int           `yaml:"batchSize"`
	Delay              time.Duration `yaml:"delay"`
	Timeout            time.Duration `yaml:"timeout"`
	PublishedScanLimit int           `yaml:"publishedScanLimit"`
	TitleMaxLength     int           `yaml:"titleMaxLength"`
	ExcerptMaxLength   int           `yaml:"excerptMaxLength"`
}

// WordPressConfig wires the external publish target.
type WordPressConfig struct {
	URL             string         `yaml:"url"`
	User            string         `yaml:"user"`
	AppPassword     string         `yaml:"appPassword"`
	DefaultCategory int            `yaml:"defaultCategory"`
	Categories      map[string]int `yaml:"categories"`
}

// Enabled reports whether enough credentials are present to publish.
func (w WordPressConfig) Enabled() bool {
	return w.URL != "" && w.User != "" && w.AppPassword != ""
}

// PlagiarismConfig selects the optional external duplicate checker.
type PlagiarismConfig struct {
	Provider  string          `yaml:"provider"`
	Timeout   time.Duration   `yaml:"timeout"`
	Copyscape CopyscapeConfig `yaml:"copyscape"`
	HTTP      HTTPCheckConfig `yaml:"http"`
}

// CopyscapeConfig holds Copyscape API credentials.
type CopyscapeConfig struct {
	Endpoint string `yaml:"endpoint"`
	User     string `yaml:"user"`
	Key      string `yaml:"key"`
}

// HTTPCheckConfig describes a generic JSON duplicate-check service.
type HTTPCheckConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// HealthConfig tunes the source circuit breaker.
type HealthConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	Workers          int           `yaml:"workers"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetentionConfig sets the eviction age.
type RetentionConfig struct {
	MaxAge    time.Duration `yaml:"maxAge"`
	BatchSize int           `yaml:"batchSize"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SchedulerConfig defines how often each job runs in serve mode.
type SchedulerConfig struct {
	Timezone     string         `yaml:"timezone"`
	IngestEvery  time.Duration  `yaml:"ingestEvery"`
	PublishEvery time.Duration  `yaml:"publishEvery"`
	HealthEvery  time.Duration  `yaml:"healthEvery"`
	SweepEvery   time.Duration  `yaml:"sweepEvery"`
	location     *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig configures the ops HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig describes one feed. ID may be empty; a stable one is derived from the URL.
type SourceConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	FeedURL string `yaml:"feedUrl"`
	Niche   string `yaml:"niche"`
	Active  *bool  `yaml:"active"`
}

// IsActive treats a missing flag as enabled.
func (s SourceConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// Load reads YAML configuration from path (or FEEDRELAY_CONFIG when path is empty),
// decodes it over defaults and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.fillZeroes()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem that would prevent a run.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Database.Driver == DriverMongo && c.Database.MongoDatabase == "" {
		errs = append(errs, errors.New("database.mongoDatabase is required for mongo"))
	}

	if c.Dedup.LocalThreshold <= 0 || c.Dedup.LocalThreshold > 1 {
		errs = append(errs, fmt.Errorf("dedup.localThreshold %.2f must be in (0,1]", c.Dedup.LocalThreshold))
	}
	if c.Health.FailureThreshold < 1 {
		errs = append(errs, errors.New("health.failureThreshold must be positive"))
	}
	if c.Retry.MaxRetries < 1 {
		errs = append(errs, errors.New("retry.maxRetries must be positive"))
	}

	switch c.Plagiarism.Provider {
	case "", PlagiarismNone:
	case PlagiarismCopyscape:
		if c.Plagiarism.Copyscape.User == "" || c.Plagiarism.Copyscape.Key == "" {
			errs = append(errs, errors.New("plagiarism.copyscape requires user and key"))
		}
	case PlagiarismHTTP:
		if c.Plagiarism.HTTP.Endpoint == "" {
			errs = append(errs, errors.New("plagiarism.http.endpoint is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("plagiarism.provider %q is not supported", c.Plagiarism.Provider))
	}

	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Name) == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		}
		if u, err := url.Parse(src.FeedURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: feedUrl %q is not a valid url", i, src.FeedURL))
		}
		if strings.TrimSpace(src.Niche) == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: niche is required", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// CategoryFor maps a niche to the publish target category id.
func (w WordPressConfig) CategoryFor(niche string) int {
	if id, ok := w.Categories[strings.ToLower(niche)]; ok {
		return id
	}
	return w.DefaultCategory
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(wordpressURLEnv); v != "" {
		c.WordPress.URL = v
	}
	if v := os.Getenv(wordpressUserEnv); v != "" {
		c.WordPress.User = v
	}
	if v := os.Getenv(wordpressPasswordEnv); v != "" {
		c.WordPress.AppPassword = v
	}

	if v := os.Getenv(copyscapeUserEnv); v != "" {
		c.Plagiarism.Copyscape.User = v
	}
	if v := os.Getenv(copyscapeKeyEnv); v != "" {
		c.Plagiarism.Copyscape.Key = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// fillZeroes restores defaults for numeric knobs a file explicitly zeroed.
func (c *Config) fillZeroes() {
	def := Default()
	if c.Ingestion.MaxItemsPerSource <= 0 {
		c.Ingestion.MaxItemsPerSource = def.Ingestion.MaxItemsPerSource
	}
	if c.Ingestion.Workers <= 0 {
		c.Ingestion.Workers = def.Ingestion.Workers
	}
	if c.Ingestion.FetchTimeout <= 0 {
		c.Ingestion.FetchTimeout = def.Ingestion.FetchTimeout
	}
	if c.Dedup.WindowLimit <= 0 {
		c.Dedup.WindowLimit = def.Dedup.WindowLimit
	}
	if c.Dedup.Window <= 0 {
		c.Dedup.Window = def.Dedup.Window
	}
	if c.Publish.BatchSize <= 0 {
		c.Publish.BatchSize = def.Publish.BatchSize
	}
	if c.Publish.Timeout <= 0 {
		c.Publish.Timeout = def.Publish.Timeout
	}
	if c.Health.Workers <= 0 {
		c.Health.Workers = def.Health.Workers
	}
	if c.Retention.MaxAge <= 0 {
		c.Retention.MaxAge = def.Retention.MaxAge
	}
	if c.Retention.BatchSize <= 0 {
		c.Retention.BatchSize = def.Retention.BatchSize
	}
}

// Default returns the built-in configuration.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "feedrelay.db", MongoDatabase: "feedrelay"},
		Ingestion: IngestionConfig{
			Niches:            []string{"saude", "esportes", "tecnologia", "economia"},
			MaxItemsPerSource: 3,
			CharThreshold:     250,
			SummaryWords:      60,
			MaxTextLength:     1000,
			ItemDelay:         500 * time.Millisecond,
			Workers:           4,
			FetchTimeout:      10 * time.Second,
			UserAgent:         "FeedRelay/1.0",
			DefaultLanguage:   "pt",
		},
		Dedup: DedupConfig{
			LocalThreshold: 0.8,
			Window:         7 * 24 * time.Hour,
			WindowLimit:    100,
		},
		Retry: RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		Publish: PublishConfig{
			BatchSize:          50,
			Delay:              2 * time.Second,
			Timeout:            30 * time.Second,
			PublishedScanLimit: 1000,
			TitleMaxLength:     100,
			ExcerptMaxLength:   200,
		},
		WordPress: WordPressConfig{
			DefaultCategory: 1,
			Categories: map[string]int{
				"tecnologia":       2,
				"esportes":         3,
				"saude":            4,
				"economia":         5,
				"ciencia":          6,
				"politica":         7,
				"entretenimento":   8,
				"educacao":         9,
				"startups":         10,
				"fintech":          11,
				"ia":               12,
				"sustentabilidade": 13,
				"internacional":    14,
			},
		},
		Plagiarism: PlagiarismConfig{
			Provider:  PlagiarismNone,
			Timeout:   15 * time.Second,
			Copyscape: CopyscapeConfig{Endpoint: "https://www.copyscape.com/api/"},
		},
		Health:    HealthConfig{FailureThreshold: 3, Workers: 8, Timeout: 10 * time.Second},
		Retention: RetentionConfig{MaxAge: 7 * 24 * time.Hour, BatchSize: 500},
		Scheduler: SchedulerConfig{
			Timezone:     defaultTimezone,
			IngestEvery:  30 * time.Minute,
			PublishEvery: time.Hour,
			HealthEvery:  6 * time.Hour,
			SweepEvery:   24 * time.Hour,
			location:     tz,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}
