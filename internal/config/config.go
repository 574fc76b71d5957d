package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Telegram struct {
		Token         string
		AdminChatID   int64  `mapstructure:"admin_chat_id"`
		WebAppURL     string `mapstructure:"webapp_url"`
		UpdateTimeout int    `mapstructure:"update_timeout"`
	} `mapstructure:"telegram"`

	Admin struct {
		Login         string
		PasswordHash  string        `mapstructure:"password_hash"`
		SessionTTL    time.Duration `mapstructure:"session_ttl"`
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenTTL      time.Duration `mapstructure:"token_ttl"`
		LoginAttempts int           `mapstructure:"login_attempts_per_minute"`
	} `mapstructure:"admin"`

	HTTP struct {
		Addr            string
		IndexFile       string `mapstructure:"index_file"`
		RequireInitData bool   `mapstructure:"require_init_data"`
	} `mapstructure:"http"`

	Storage struct {
		Driver     string
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Postgres struct {
		DSN      string
		MaxConns int32 `mapstructure:"max_conns"`
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Payments struct {
		BaseURL       string `mapstructure:"base_url"`
		ProviderURL   string `mapstructure:"provider_url"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		Currency      string
		TestMode      bool `mapstructure:"test_mode"`
	} `mapstructure:"payments"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("telegram.webapp_url", "")
	v.SetDefault("telegram.update_timeout", 30)
	v.SetDefault("admin.login", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.session_ttl", 24*time.Hour)
	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.token_ttl", 12*time.Hour)
	v.SetDefault("admin.login_attempts_per_minute", 5)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.index_file", "")
	v.SetDefault("http.require_init_data", false)
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.sqlite_path", "shop.db")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("payments.base_url", "http://localhost:8080")
	v.SetDefault("payments.provider_url", "")
	v.SetDefault("payments.test_mode", false)
	v.SetDefault("payments.webhook_secret", "")
	v.SetDefault("payments.currency", "RUB")
}

// Load читает YAML и накладывает переменные окружения APP_* (APP_POSTGRES_DSN и т.п.).
// .env в рабочем каталоге подхватывается, если он есть.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("config: telegram.token is required")
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for postgres storage")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("config: storage.sqlite_path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Admin.Login == "" || c.Admin.PasswordHash == "" {
		return errors.New("config: admin.login and admin.password_hash are required")
	}
	if c.Admin.JWTSecret == "" {
		return errors.New("config: admin.jwt_secret is required")
	}
	// Тестовая оплата зачисляет деньги без провайдера: в prod её быть не должно.
	if c.Payments.TestMode && c.App.Env == "prod" {
		return errors.New("config: payments.test_mode is not allowed in prod")
	}
	if !c.Payments.TestMode && c.Payments.ProviderURL == "" {
		return errors.New("config: payments.provider_url is required unless payments.test_mode is on")
	}
	return nil
}
