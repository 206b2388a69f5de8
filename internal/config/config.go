package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Source   SourceConfig   `yaml:"source"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Logs     LogsConfig     `yaml:"logs"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type SourceConfig struct {
	SearchURL string        `yaml:"search_url"`
	StatusURL string        `yaml:"status_url"`
	TextURL   string        `yaml:"text_url"`
	SiteURL   string        `yaml:"site_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Retry     RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type CrawlConfig struct {
	Keyword       string        `yaml:"keyword"`
	SessionYear   string        `yaml:"session_year"`
	BillNumber    string        `yaml:"bill_number"`
	House         string        `yaml:"house"`
	LawCode       string        `yaml:"law_code"`
	StatuteYear   string        `yaml:"statute_year"`
	ChapterNumber string        `yaml:"chapter_number"`
	ItemBudget    int           `yaml:"item_budget"`
	CheckUnique   bool          `yaml:"check_uniqueness"`
	Workers       int           `yaml:"workers"`
	Interval      time.Duration `yaml:"interval"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type LogsConfig struct {
	ChangeFile string `yaml:"change_file"`
	ErrorFile  string `yaml:"error_file"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "billwatch"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "bill_changes"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "index_bill_changes"
	}
	if c.Source.SearchURL == "" {
		c.Source.SearchURL = "https://leginfo.legislature.ca.gov/faces/billSearchClient.xhtml"
	}
	if c.Source.StatusURL == "" {
		c.Source.StatusURL = "https://leginfo.legislature.ca.gov/faces/billStatusClient.xhtml"
	}
	if c.Source.TextURL == "" {
		c.Source.TextURL = "https://leginfo.legislature.ca.gov/faces/billTextClient.xhtml"
	}
	if c.Source.SiteURL == "" {
		c.Source.SiteURL = "https://leginfo.legislature.ca.gov"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.Retry.MaxAttempts == 0 {
		c.Source.Retry.MaxAttempts = 5
	}
	if c.Source.Retry.InitialBackoff == 0 {
		c.Source.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Source.Retry.MaxBackoff == 0 {
		c.Source.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Crawl.SessionYear == "" {
		c.Crawl.SessionYear = "2019-2020"
	}
	if c.Crawl.House == "" {
		c.Crawl.House = "Both"
	}
	if c.Crawl.LawCode == "" {
		c.Crawl.LawCode = "All"
	}
	if c.Crawl.ItemBudget == 0 {
		c.Crawl.ItemBudget = -1
	}
	if c.Crawl.Workers == 0 {
		c.Crawl.Workers = 1
	}
	if c.Crawl.Interval == 0 {
		c.Crawl.Interval = 12 * time.Hour
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "changed_bills.txt"
	}
	if c.Logs.ChangeFile == "" {
		c.Logs.ChangeFile = "bills.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
