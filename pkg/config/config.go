package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Scrape  ScrapeConfig
	Relay   RelayConfig
	LLM     LLMConfig
	Chat    ChatConfig
	Ingest  IngestConfig
	Redis   RedisConfig
	SQLite  SQLiteConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

// ScrapeConfig configures the professional scraping backend. The path is
// disabled entirely when APIKey is empty.
type ScrapeConfig struct {
	Endpoint   string
	APIKey     string
	TimeoutSec int
}

type RelayConfig struct {
	Endpoints  []string
	TimeoutSec int
}

type LLMConfig struct {
	APIKey     string
	Model      string
	TimeoutSec int
}

type ChatConfig struct {
	MaxUserTurns    int
	ConvertDelaySec int
	WelcomeMessage  string
}

type IngestConfig struct {
	CacheTTLMin int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/sitebot")

	viper.SetEnvPrefix("SITEBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 20971520)

	viper.SetDefault("scrape.endpoint", "https://api.zyte.com/v1/extract")
	viper.SetDefault("scrape.apiKey", "")
	viper.SetDefault("scrape.timeoutSec", 45)

	viper.SetDefault("relay.endpoints", []string{
		"https://api.allorigins.win/raw?url=%s",
		"https://corsproxy.io/?%s",
		"https://api.codetabs.com/v1/proxy?quest=%s",
	})
	viper.SetDefault("relay.timeoutSec", 30)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("chat.maxUserTurns", 3)
	viper.SetDefault("chat.convertDelaySec", 2)
	viper.SetDefault("chat.welcomeMessage", "Hi! I've read through your content and I'm ready to answer questions about it. What would you like to know?")

	viper.SetDefault("ingest.cacheTTLMin", 60)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("sqlite.path", "./data/sitebot.db")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
