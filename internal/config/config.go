// Package config loads harvester settings from a file, the environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// HARVESTER_CRAWLER_START_URL.
const EnvPrefix = "HARVESTER"

// Config captures every runtime knob.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Server      ServerConfig      `mapstructure:"server"`
	Profiles    ProfilesConfig    `mapstructure:"profiles"`
	Vision      VisionConfig      `mapstructure:"vision"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
}

// LoggingConfig controls zap output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig drives the listing crawl.
type CrawlerConfig struct {
	StartURL     string        `mapstructure:"start_url"`
	SitePrefixes []string      `mapstructure:"site_prefixes"`
	Pagination   string        `mapstructure:"pagination"`
	Extraction   string        `mapstructure:"extraction"`
	PageParam    string        `mapstructure:"page_param"`
	NextSelector string        `mapstructure:"next_selector"`
	LoadMore     string        `mapstructure:"load_more_selector"`
	MaxUnchanged int           `mapstructure:"max_unchanged"`
	MaxPages     int           `mapstructure:"max_pages"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
	// OutputURLs receives the discovered profile URLs, one per line.
	OutputURLs string            `mapstructure:"output_urls"`
	Selectors  SelectorOverrides `mapstructure:"selectors"`
}

// SelectorOverrides replaces the default extraction selectors when set.
type SelectorOverrides struct {
	Container string `mapstructure:"container"`
	Link      string `mapstructure:"link"`
	Name      string `mapstructure:"name"`
	Detail    string `mapstructure:"detail"`
}

// BrowserConfig selects and tunes the page client.
type BrowserConfig struct {
	// Mode is "chrome" or "static".
	Mode              string        `mapstructure:"mode"`
	Headless          bool          `mapstructure:"headless"`
	RemoteURL         string        `mapstructure:"remote_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
}

// CheckpointConfig lists the snapshot backends written after every page.
type CheckpointConfig struct {
	Backends   []string `mapstructure:"backends"`
	Path       string   `mapstructure:"path"`
	BlobPath   string   `mapstructure:"blob_path"`
	SQLitePath string   `mapstructure:"sqlite_path"`
}

// StorageConfig selects the blob store used for checkpoints and screenshots.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig points at the Postgres database holding run history.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig enables completion notifications when a topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ProfilesConfig drives the screenshot and analysis workers.
type ProfilesConfig struct {
	Input             string        `mapstructure:"input"`
	Output            string        `mapstructure:"output"`
	Workers           int           `mapstructure:"workers"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ScrollDelay       time.Duration `mapstructure:"scroll_delay"`
	MaxShots          int           `mapstructure:"max_shots"`
	Archive           bool          `mapstructure:"archive"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// VisionConfig configures the chat-completions analyzer.
type VisionConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig drives the embedding pipeline.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama".
	Provider string `mapstructure:"provider"`
	// Source is "profiles" or "checkpoint".
	Source            string        `mapstructure:"source"`
	Input             string        `mapstructure:"input"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Dimensions        int           `mapstructure:"dimensions"`
	BatchSize         int           `mapstructure:"batch_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	FlushTimeout      time.Duration `mapstructure:"flush_timeout"`
}

// VectorStoreConfig selects where embeddings are written.
type VectorStoreConfig struct {
	// Backend is "qdrant", "postgres", "file" or "memory".
	Backend          string `mapstructure:"backend"`
	QdrantAddr       string `mapstructure:"qdrant_addr"`
	QdrantCollection string `mapstructure:"qdrant_collection"`
	PostgresTable    string `mapstructure:"postgres_table"`
	FilePath         string `mapstructure:"file_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawler.site_prefixes", []string{
		"https://www.linkedin.com/search/results/people/",
		"https://www.linkedin.com/mynetwork/invite-connect/connections/",
	})
	v.SetDefault("crawler.pagination", crawler.PaginationURLIncrement)
	v.SetDefault("crawler.extraction", crawler.ExtractionLink)
	v.SetDefault("crawler.page_param", "page")
	v.SetDefault("crawler.max_unchanged", crawler.DefaultMaxUnchanged)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.retry_delay", 2*time.Second)
	v.SetDefault("crawler.poll_interval", 250*time.Millisecond)
	v.SetDefault("crawler.wait_timeout", 10*time.Second)
	v.SetDefault("crawler.flush_timeout", 30*time.Second)
	v.SetDefault("crawler.output_urls", "profile_urls.txt")

	v.SetDefault("browser.mode", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 1024)
	v.SetDefault("browser.respect_robots", false)

	v.SetDefault("checkpoint.backends", []string{"file"})
	v.SetDefault("checkpoint.path", "crawl_state.json")
	v.SetDefault("checkpoint.blob_path", "checkpoints/crawl_state.json")
	v.SetDefault("checkpoint.sqlite_path", "crawl_state.db")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.prefix", "harvester")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("profiles.input", "profile_urls.txt")
	v.SetDefault("profiles.output", "profiles.json")
	v.SetDefault("profiles.workers", 5)
	v.SetDefault("profiles.settle_delay", 2*time.Second)
	v.SetDefault("profiles.scroll_delay", time.Second)
	v.SetDefault("profiles.max_shots", 10)
	v.SetDefault("profiles.archive", false)
	v.SetDefault("profiles.requests_per_second", 0.5)

	v.SetDefault("vision.base_url", "https://api.openai.com")
	v.SetDefault("vision.model", "gpt-4o-mini")
	v.SetDefault("vision.max_tokens", 4096)
	v.SetDefault("vision.timeout", 2*time.Minute)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.source", "profiles")
	v.SetDefault("embedding.input", "profiles.json")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.requests_per_second", 5)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.flush_timeout", 30*time.Second)

	v.SetDefault("vectorstore.backend", "file")
	v.SetDefault("vectorstore.qdrant_addr", "localhost:6334")
	v.SetDefault("vectorstore.qdrant_collection", "profiles")
	v.SetDefault("vectorstore.postgres_table", "profile_embeddings")
	v.SetDefault("vectorstore.file_path", "embeddings.json")

	// Keys without a useful default still need registering so that
	// environment overrides reach Unmarshal.
	for _, key := range []string{
		"crawler.start_url",
		"crawler.next_selector",
		"crawler.load_more_selector",
		"crawler.selectors.container",
		"crawler.selectors.link",
		"crawler.selectors.name",
		"crawler.selectors.detail",
		"browser.remote_url",
		"browser.user_agent",
		"storage.gcs_bucket",
		"db.dsn",
		"pubsub.project_id",
		"pubsub.topic_name",
		"server.api_key",
		"vision.api_key",
		"embedding.api_key",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("embedding.dimensions", 0)
}

// Validate enforces required values and reasonable limits. Settings used
// only by one command are checked by that command's Require* helper.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Browser.Mode {
	case "chrome", "static":
	default:
		return fmt.Errorf("browser.mode must be chrome or static, got %q", c.Browser.Mode)
	}
	for _, b := range c.Checkpoint.Backends {
		switch b {
		case "file", "blob", "sqlite":
		default:
			return fmt.Errorf("unknown checkpoint backend %q", b)
		}
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set for the gcs backend")
		}
	case "local", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr must be set when the server is enabled")
	}
	if c.Profiles.Workers <= 0 {
		return errors.New("profiles.workers must be > 0")
	}
	if c.Embedding.BatchSize <= 0 {
		return errors.New("embedding.batch_size must be > 0")
	}
	switch c.VectorStore.Backend {
	case "qdrant", "postgres", "file", "memory":
	default:
		return fmt.Errorf("unknown vectorstore backend %q", c.VectorStore.Backend)
	}
	return nil
}

// RequireCrawl checks the settings the crawl command depends on.
func (c Config) RequireCrawl() error {
	if c.Crawler.StartURL == "" {
		return errors.New("crawler.start_url is required")
	}
	if !crawler.MatchesPrefix(c.Crawler.StartURL, c.Crawler.SitePrefixes) {
		return fmt.Errorf("crawler.start_url %q does not match any site prefix", c.Crawler.StartURL)
	}
	if c.Crawler.MaxPages < 0 {
		return errors.New("crawler.max_pages must be >= 0")
	}
	if c.Crawler.Pagination == crawler.PaginationNextButton && c.Crawler.NextSelector == "" {
		return errors.New("crawler.next_selector is required for next_button pagination")
	}
	if c.Crawler.Pagination == crawler.PaginationInfiniteScroll && c.Browser.Mode == "static" {
		return errors.New("infinite_scroll pagination requires browser.mode chrome")
	}
	return nil
}

// RequireProfiles checks the settings the profiles command depends on.
func (c Config) RequireProfiles() error {
	if c.Browser.Mode != "chrome" {
		return errors.New("profile screenshots require browser.mode chrome")
	}
	if c.Vision.APIKey == "" {
		return errors.New("vision.api_key is required")
	}
	if c.Profiles.Input == "" || c.Profiles.Output == "" {
		return errors.New("profiles.input and profiles.output are required")
	}
	return nil
}

// RequireEmbed checks the settings the embed command depends on.
func (c Config) RequireEmbed() error {
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return errors.New("embedding.api_key is required for the openai provider")
		}
	case "ollama":
		if c.Embedding.Model == "" {
			return errors.New("embedding.model is required for the ollama provider")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Embedding.Source {
	case "profiles", "checkpoint":
	default:
		return fmt.Errorf("unknown embedding source %q", c.Embedding.Source)
	}
	if c.Embedding.Input == "" {
		return errors.New("embedding.input is required")
	}
	if c.VectorStore.Backend == "postgres" && c.DB.DSN == "" {
		return errors.New("db.dsn is required for the postgres vector store")
	}
	if c.VectorStore.Backend == "qdrant" && c.Embedding.Dimensions <= 0 {
		return errors.New("embedding.dimensions is required for the qdrant vector store")
	}
	return nil
}

// CrawlerSettings maps the crawl section onto crawler.Config.
func (c Config) CrawlerSettings() crawler.Config {
	return crawler.Config{
		StartURL:     c.Crawler.StartURL,
		SitePrefixes: c.Crawler.SitePrefixes,
		MaxPages:     c.Crawler.MaxPages,
		RetryDelay:   c.Crawler.RetryDelay,
		Wait:         c.Wait(),
		FlushTimeout: c.Crawler.FlushTimeout,
	}
}

// Wait returns the element polling bounds.
func (c Config) Wait() crawler.Wait {
	return crawler.Wait{Interval: c.Crawler.PollInterval, Timeout: c.Crawler.WaitTimeout}
}

// PaginationSettings maps the crawl section onto crawler.PaginationConfig.
func (c Config) PaginationSettings() crawler.PaginationConfig {
	return crawler.PaginationConfig{
		Strategy:         c.Crawler.Pagination,
		StartURL:         c.Crawler.StartURL,
		PageParam:        c.Crawler.PageParam,
		NextSelector:     c.Crawler.NextSelector,
		LoadMoreSelector: c.Crawler.LoadMore,
		MaxUnchanged:     c.Crawler.MaxUnchanged,
		Wait:             c.Wait(),
	}
}

// ExtractionSettings maps the crawl section onto crawler.ExtractionConfig.
func (c Config) ExtractionSettings() crawler.ExtractionConfig {
	return crawler.ExtractionConfig{
		Strategy:          c.Crawler.Extraction,
		ContainerSelector: c.Crawler.Selectors.Container,
		LinkSelector:      c.Crawler.Selectors.Link,
		NameSelector:      c.Crawler.Selectors.Name,
		DetailSelector:    c.Crawler.Selectors.Detail,
	}
}

// LoggingOptions maps the logging section onto logging.Options.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{Development: c.Logging.Development, Level: c.Logging.Level}
}
