package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"signalbot-backend/internal/infrastructure/db"
)

type TerminalConfig struct {
	Host           string `yaml:"host" env:"MT5_HOST"`
	Port           int    `yaml:"port" env:"MT5_PORT"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"MT5_TIMEOUT"`
}

func (t TerminalConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

type WebConfig struct {
	Host  string `yaml:"host" env:"WEB_HOST"`
	Port  int    `yaml:"port" env:"WEB_PORT"`
	Debug bool   `yaml:"debug" env:"DEBUG_MODE"`
}

func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLE_AUTH"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type EmailConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLE_EMAIL"`
	Server    string `yaml:"server" env:"EMAIL_SERVER"`
	Port      int    `yaml:"port" env:"EMAIL_PORT"`
	UseTLS    bool   `yaml:"use_tls" env:"EMAIL_USE_TLS"`
	Username  string `yaml:"username" env:"EMAIL_USERNAME"`
	Password  string `yaml:"password" env:"EMAIL_PASSWORD"`
	Recipient string `yaml:"recipient" env:"EMAIL_RECIPIENT"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLE_TELEGRAM"`
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type FirebaseConfig struct {
	CredentialsPath string `yaml:"credentials_path" env:"FIREBASE_CREDENTIALS_PATH"`
	CredentialsJSON string `yaml:"credentials_json" env:"FIREBASE_CREDENTIALS_JSON"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // console or json
}

// Config is the process configuration. Values come from Default, then the
// optional YAML file, then the environment.
type Config struct {
	SimulationMode     bool          `yaml:"simulation_mode" env:"SIMULATION_MODE"`
	NotifyInSimulation bool          `yaml:"notify_in_simulation" env:"NOTIFY_IN_SIMULATION"`
	PresetsPath        string        `yaml:"presets_path" env:"PRESETS_PATH"`
	DatabaseURL        string        `yaml:"database_url" env:"DATABASE_URL"`
	RedisAddr          string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	SyncInterval       time.Duration `yaml:"sync_interval" env:"SYNC_INTERVAL"`

	Terminal TerminalConfig `yaml:"terminal"`
	Web      WebConfig      `yaml:"web"`
	Auth     AuthConfig     `yaml:"auth"`
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Log      LogConfig      `yaml:"log"`
	Pool     db.PoolConfig  `yaml:"pool"`
}

func Default() Config {
	return Config{
		SimulationMode: true,
		PresetsPath:    "Presets",
		SyncInterval:   5 * time.Second,
		Terminal: TerminalConfig{
			Host:           "127.0.0.1",
			Port:           5555,
			TimeoutSeconds: 10,
		},
		Web: WebConfig{
			Host:  "0.0.0.0",
			Port:  5000,
			Debug: true,
		},
		Auth: AuthConfig{
			Username: "admin",
			Password: "password",
		},
		Email: EmailConfig{
			Server: "smtp.gmail.com",
			Port:   587,
			UseTLS: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Pool: db.DefaultPoolConfig(),
	}
}

// Load reads path (skipped when empty) over the defaults and applies the
// environment on top.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Live reports whether the bot mirrors a real terminal.
func (c Config) Live() bool {
	return !c.SimulationMode
}

// Validate rejects combinations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Live() && c.Terminal.Host == "" {
		errs = append(errs, errors.New("terminal host is required outside simulation mode"))
	}
	if c.Terminal.Port <= 0 || c.Terminal.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid terminal port %d", c.Terminal.Port))
	}
	if c.Terminal.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("terminal timeout must be positive"))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid web port %d", c.Web.Port))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("sync interval must be positive"))
	}
	if c.Auth.Enabled && (c.Auth.Username == "" || c.Auth.Password == "") {
		errs = append(errs, errors.New("auth enabled without username and password"))
	}
	if c.Email.Enabled && (c.Email.Server == "" || c.Email.Recipient == "") {
		errs = append(errs, errors.New("email enabled without server and recipient"))
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram enabled without bot token and chat id"))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
