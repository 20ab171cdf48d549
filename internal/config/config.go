package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultDBPath = "instance/rss_feeds.db"
	dbPathEnv     = "RSRSSR_DB_PATH"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Update   UpdateConfig   `yaml:"update"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// DSN returns the connection string for the configured driver. Values are
// escaped so paths and passwords may contain any character.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverPostgres {
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			pqQuote(d.Host), d.Port, pqQuote(d.User), pqQuote(d.Password), pqQuote(d.DBName), pqQuote(d.SSLMode),
		)
	}
	path := (&url.URL{Path: d.Path}).EscapedPath()
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_time_format=sqlite"
}

var pqEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// pqQuote renders v as a single-quoted libpq keyword value.
func pqQuote(v string) string {
	return "'" + pqEscaper.Replace(v) + "'"
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Retry     RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type UpdateConfig struct {
	// Concurrency bounds the worker pool. Zero lets the runtime pick.
	Concurrency             int           `yaml:"concurrency"`
	Cooldown                time.Duration `yaml:"cooldown"`
	Interval                time.Duration `yaml:"interval"`
	RunTimeout              time.Duration `yaml:"run_timeout"`
	WatermarkLookbackMonths int           `yaml:"watermark_lookback_months"`
}

type RankingConfig struct {
	WindowDays      int     `yaml:"window_days"`
	PerSourceCap    int     `yaml:"per_source_cap"`
	DownrankPenalty float64 `yaml:"downrank_penalty"`
}

type MirrorConfig struct {
	RemotePath string `yaml:"remote_path"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite {
		if c.Database.Path == "" {
			c.Database.Path = os.Getenv(dbPathEnv)
		}
		if c.Database.Path == "" {
			c.Database.Path = defaultDBPath
		}
		if !filepath.IsAbs(c.Database.Path) {
			if wd, err := os.Getwd(); err == nil {
				c.Database.Path = filepath.Join(wd, c.Database.Path)
			}
		}
	}
	if c.Database.Driver == DriverPostgres {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "RSRSSR/1.0"
	}
	if c.Fetch.Retry.MaxAttempts == 0 {
		c.Fetch.Retry.MaxAttempts = 3
	}
	if c.Fetch.Retry.InitialBackoff == 0 {
		c.Fetch.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Fetch.Retry.MaxBackoff == 0 {
		c.Fetch.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Update.Cooldown == 0 {
		c.Update.Cooldown = 6 * time.Hour
	}
	if c.Update.Interval == 0 {
		c.Update.Interval = 30 * time.Minute
	}
	if c.Update.RunTimeout == 0 {
		c.Update.RunTimeout = 10 * time.Minute
	}
	if c.Update.WatermarkLookbackMonths == 0 {
		c.Update.WatermarkLookbackMonths = 2
	}
	if c.Ranking.WindowDays == 0 {
		c.Ranking.WindowDays = 30
	}
	if c.Ranking.PerSourceCap == 0 {
		c.Ranking.PerSourceCap = 6
	}
	if c.Ranking.DownrankPenalty == 0 {
		c.Ranking.DownrankPenalty = 100
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "rsrssr"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "run.completed"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "rsrssr_runs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Update.Concurrency < 0 {
		return fmt.Errorf("update.concurrency must not be negative")
	}
	return nil
}
