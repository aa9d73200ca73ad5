package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/sheikh-saqib/dubloons/internal/models"
)

type Config struct {
	Transport string `yaml:"transport" env:"DUBLOONS_TRANSPORT" env-default:"telegram"`

	Bot      BotConfig      `yaml:"bot"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type BotConfig struct {
	// Announcements is the channel (Telegram chat id) for confirmations.
	Announcements string `yaml:"announcements" env:"DUBLOONS_ANNOUNCEMENTS"`

	// Empty message fields fall back to the built-in texts.
	Welcome        string `yaml:"welcome" env:"DUBLOONS_WELCOME"`
	Usage          string `yaml:"usage"`
	ErrorMessage   string `yaml:"error_message"`
	UnknownMessage string `yaml:"unknown_message"`

	Bankers        []string `yaml:"bankers" env:"DUBLOONS_BANKERS" env-separator:","`
	EnforceBankers bool     `yaml:"enforce_bankers" env:"DUBLOONS_ENFORCE_BANKERS"`

	// Groups maps a group name to member mentions.
	Groups map[string][]string `yaml:"groups"`

	// Users seeds the directory, as "id:@mention" pairs.
	Users []string `yaml:"users" env:"DUBLOONS_USERS" env-separator:","`

	MaxInFlight    int           `yaml:"max_in_flight" env:"DUBLOONS_MAX_IN_FLIGHT" env-default:"16"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"DUBLOONS_COMMAND_TIMEOUT" env-default:"10s"`
}

type TelegramConfig struct {
	Token       string `yaml:"token" env:"TELEGRAM_TOKEN"`
	PollTimeout int    `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT" env-default:"60"`
	Debug       bool   `yaml:"debug" env:"TELEGRAM_DEBUG"`
}

type StorageConfig struct {
	// Driver is one of memory, sqlite, bolt, postgres, redis.
	Driver string `yaml:"driver" env:"DUBLOONS_STORAGE" env-default:"sqlite"`
	// Path is the database file for sqlite and bolt.
	Path string `yaml:"path" env:"DUBLOONS_DB_PATH" env-default:"./dubloons.db"`

	PostgresDSN string `yaml:"postgres_dsn" env:"DUBLOONS_POSTGRES_DSN"`

	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	RedisURL      string `yaml:"redis_url" env:"REDIS_URL"`

	// EventTTL is how long applied message ids are remembered for
	// deduplication where the backend supports expiry.
	EventTTL time.Duration `yaml:"event_ttl" env:"DUBLOONS_EVENT_TTL" env-default:"168h"`
}

type KafkaConfig struct {
	// Publishing is disabled when Brokers is empty.
	Brokers []string `yaml:"brokers" env:"DUBLOONS_KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"DUBLOONS_KAFKA_TOPIC" env-default:"dubloons.transactions"`
}

// Load reads an optional .env file, then the YAML file at path (if any),
// then environment variables, which win.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Transport {
	case "telegram":
		if c.Telegram.Token == "" {
			return errors.New("improperly configured: TELEGRAM_TOKEN is required")
		}
		if c.Bot.Announcements == "" {
			return errors.New("improperly configured: no announcements channel specified")
		}
		if !validChatTarget(c.Bot.Announcements) {
			return fmt.Errorf("improperly configured: invalid announcements channel %q (want a numeric chat id or @channelusername)", c.Bot.Announcements)
		}
	case "console":
	default:
		return fmt.Errorf("improperly configured: unknown transport %q", c.Transport)
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "bolt":
		if c.Storage.Path == "" {
			return fmt.Errorf("improperly configured: %s storage needs a path", c.Storage.Driver)
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("improperly configured: DUBLOONS_POSTGRES_DSN is required")
		}
	case "redis":
		if c.Storage.RedisAddr == "" && c.Storage.RedisURL == "" {
			return errors.New("improperly configured: REDIS_ADDR or REDIS_URL is required")
		}
	default:
		return fmt.Errorf("improperly configured: unknown storage driver %q", c.Storage.Driver)
	}

	if c.Bot.MaxInFlight <= 0 {
		return errors.New("improperly configured: max_in_flight must be positive")
	}
	if _, err := c.Bot.SeedUsers(); err != nil {
		return err
	}
	return nil
}

// channelUsername follows Telegram's public username rules.
var channelUsername = regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9_]{3,31}$`)

func validChatTarget(s string) bool {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	return channelUsername.MatchString(s)
}

// SeedUsers parses the "id:@mention" pairs in Users.
func (b BotConfig) SeedUsers() ([]models.User, error) {
	users := make([]models.User, 0, len(b.Users))
	for _, raw := range b.Users {
		id, mention, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok || id == "" || !strings.HasPrefix(mention, "@") || len(mention) < 2 {
			return nil, fmt.Errorf("improperly configured: user %q must look like id:@mention", raw)
		}
		users = append(users, models.User{ID: id, Mention: mention})
	}
	return users, nil
}
