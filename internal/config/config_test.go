package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	t.Setenv("DUBLOONS_TRANSPORT", "console")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./dubloons.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Bot.MaxInFlight != 16 || cfg.Bot.CommandTimeout != 10*time.Second {
		t.Fatalf("unexpected bot defaults %+v", cfg.Bot)
	}
	if cfg.Kafka.Topic != "dubloons.transactions" || len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("unexpected kafka defaults %+v", cfg.Kafka)
	}
	if cfg.Storage.EventTTL != 7*24*time.Hour {
		t.Fatalf("unexpected event ttl %v", cfg.Storage.EventTTL)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "DUBLOONS_TRANSPORT=console\nDUBLOONS_BANKERS=@alice,@bob\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DUBLOONS_TRANSPORT")
		os.Unsetenv("DUBLOONS_BANKERS")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Bot.Bankers) != 2 || cfg.Bot.Bankers[1] != "@bob" {
		t.Fatalf("unexpected bankers %v", cfg.Bot.Bankers)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `transport: telegram
bot:
  announcements: "-100123"
  welcome: Ahoy!
  bankers: ["@alice"]
  enforce_bankers: true
  groups:
    crew: ["@alice", "@bob"]
  users: ["1:@alice", "2:@bob"]
telegram:
  token: secret
storage:
  driver: bolt
  path: /tmp/ledger.bolt
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bot.Announcements != "-100123" || cfg.Bot.Welcome != "Ahoy!" || !cfg.Bot.EnforceBankers {
		t.Fatalf("unexpected bot config %+v", cfg.Bot)
	}
	if got := cfg.Bot.Groups["crew"]; len(got) != 2 {
		t.Fatalf("unexpected groups %v", cfg.Bot.Groups)
	}
	if cfg.Storage.Driver != "bolt" || cfg.Storage.Path != "/tmp/ledger.bolt" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	users, err := cfg.Bot.SeedUsers()
	if err != nil || len(users) != 2 || users[1].Mention != "@bob" {
		t.Fatalf("unexpected users %v %v", users, err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Transport: "telegram",
			Bot:       BotConfig{Announcements: "-1", MaxInFlight: 1},
			Telegram:  TelegramConfig{Token: "t"},
			Storage:   StorageConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "TELEGRAM_TOKEN"},
		{"missing announcements", func(c *Config) { c.Bot.Announcements = "" }, "announcements"},
		{"slack style channel", func(c *Config) { c.Bot.Announcements = "#general" }, "invalid announcements channel"},
		{"channel username", func(c *Config) { c.Bot.Announcements = "@dubloons_news" }, ""},
		{"short channel username", func(c *Config) { c.Bot.Announcements = "@ab" }, "invalid announcements channel"},
		{"console takes any channel", func(c *Config) { c.Transport = "console"; c.Bot.Announcements = "#general" }, ""},
		{"console needs no token", func(c *Config) { c.Transport = "console"; c.Telegram.Token = "" }, ""},
		{"unknown transport", func(c *Config) { c.Transport = "slack" }, "unknown transport"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "DUBLOONS_POSTGRES_DSN"},
		{"redis addr", func(c *Config) { c.Storage.Driver = "redis" }, "REDIS_ADDR"},
		{"sqlite path", func(c *Config) { c.Storage.Driver = "sqlite" }, "needs a path"},
		{"in flight", func(c *Config) { c.Bot.MaxInFlight = 0 }, "max_in_flight"},
		{"bad user seed", func(c *Config) { c.Bot.Users = []string{"alice"} }, "id:@mention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
