package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"ruwave_bot/pkg"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

//go:embed domain.yaml
var defaultDomain []byte

// LogConfig controls the zerolog global logger
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Format     string `envconfig:"LOG_FORMAT" default:"console"`
	Output     string `envconfig:"LOG_OUTPUT" default:"stdout"`
	FilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/ruwave.log"`
	TimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"rfc3339"`
}

// ServerConfig holds the inbound HTTP settings
type ServerConfig struct {
	Port int `envconfig:"PORT" default:"3000"`
}

// LLMConfig holds chat-completion settings shared by every provider
type LLMConfig struct {
	Provider    string  `envconfig:"LLM_PROVIDER" default:"openai"`
	APIKey      string  `envconfig:"OPENAI_API_KEY" required:"true"`
	Model       string  `envconfig:"LLM_MODEL" default:"gpt-4"`
	BaseURL     string  `envconfig:"LLM_BASE_URL"`
	MaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"500"`
	Temperature float64 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	RateLimit   float64 `envconfig:"LLM_RATE_LIMIT" default:"5"`
	RateBurst   int     `envconfig:"LLM_RATE_BURST" default:"10"`
}

// PlaylistConfig holds the spreadsheet source and lookup policy
type PlaylistConfig struct {
	URL             string        `envconfig:"PLAYLIST_URL" default:"https://docs.google.com/spreadsheets/d/1GAp46OM1pEaUBtBkxgGkGQEg7BUh9NZnXcSFmBkK-HM/export?format=csv"`
	Delimiter       string        `envconfig:"PLAYLIST_DELIMITER" default:","`
	RefreshInterval time.Duration `envconfig:"PLAYLIST_REFRESH_INTERVAL" default:"30m"`
	ClosestScope    string        `envconfig:"PLAYLIST_CLOSEST_SCOPE" default:"dataset"`
	MaxResults      int           `envconfig:"PLAYLIST_MAX_RESULTS" default:"10"`
	Timezone        string        `envconfig:"STATION_TIMEZONE" default:"Europe/Istanbul"`
	TimeResolver    string        `envconfig:"TIME_RESOLVER" default:"rules"`
}

// RedisConfig enables snapshot persistence when URL is set
type RedisConfig struct {
	URL         string        `envconfig:"REDIS_URL"`
	SnapshotTTL time.Duration `envconfig:"REDIS_SNAPSHOT_TTL" default:"24h"`
}

// Config is the process configuration read from the environment
type Config struct {
	Log        LogConfig
	Server     ServerConfig
	LLM        LLMConfig
	Playlist   PlaylistConfig
	Redis      RedisConfig
	DomainFile string `envconfig:"CONFIG_FILE"`
}

// LoadConfig reads the configuration from the process environment.
// A missing OPENAI_API_KEY is an error so the service never starts without it.
func LoadConfig() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if strings.TrimSpace(config.LLM.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY must not be blank")
	}
	if config.Playlist.Delimiter == "" {
		return nil, fmt.Errorf("PLAYLIST_DELIMITER must not be empty")
	}
	if config.Playlist.RefreshInterval <= 0 {
		return nil, fmt.Errorf("PLAYLIST_REFRESH_INTERVAL must be positive, got %s", config.Playlist.RefreshInterval)
	}

	return &config, nil
}

// Location resolves the station time zone
func (p PlaylistConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid STATION_TIMEZONE %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// DomainConfig represents the structure of the domain YAML file
type DomainConfig struct {
	Station struct {
		Name string `yaml:"name"`
	} `yaml:"station"`
	Prices   []pkg.PriceEntry `yaml:"prices"`
	Playlist struct {
		IntentPhrases []string `yaml:"intent_phrases"`
	} `yaml:"playlist"`
	Fallback struct {
		Persona     string `yaml:"persona"`
		Placeholder string `yaml:"placeholder"`
	} `yaml:"fallback"`
}

// LoadDomain loads the domain file at path, or the embedded default when path is empty
func LoadDomain(path string) (*DomainConfig, error) {
	data := defaultDomain
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return ParseDomain(data)
}

// ParseDomain decodes and validates domain YAML
func ParseDomain(data []byte) (*DomainConfig, error) {
	var domain DomainConfig
	if err := yaml.Unmarshal(data, &domain); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	if strings.TrimSpace(domain.Fallback.Persona) == "" {
		return nil, fmt.Errorf("fallback.persona is required")
	}
	if strings.TrimSpace(domain.Fallback.Placeholder) == "" {
		domain.Fallback.Placeholder = DefaultPlaceholder
	}
	if len(domain.Playlist.IntentPhrases) == 0 {
		return nil, fmt.Errorf("playlist.intent_phrases must not be empty")
	}

	return &domain, nil
}

// DefaultPlaceholder is returned when the model reply is empty or malformed
const DefaultPlaceholder = "⚠️ Ошибка получения ответа от модели."
