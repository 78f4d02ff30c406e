// Package config собирает конфигурацию процессов harvester.
//
// Источники по убыванию приоритета: переменные окружения HARVESTER_*,
// файл .env в текущем каталоге, файл harvester.yaml (если есть),
// значения по умолчанию. Для совместимости также читаются
// API_PORT, DATABASE_URL и RABBITMQ_URL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "HARVESTER"

// Config — конфигурация процесса.
type Config struct {
	// APIPort — порт HTTP API.
	APIPort int `mapstructure:"api_port"`

	// DatabaseURL — DSN PostgreSQL. Пусто — история запусков не ведётся.
	DatabaseURL string `mapstructure:"database_url"`

	// AMQPURL — URL RabbitMQ. Пусто — очередь команд не подключается.
	AMQPURL string `mapstructure:"amqp_url"`

	// SettingPath — файл Setting, загружаемый при старте.
	SettingPath string `mapstructure:"setting_path"`

	// WatchSetting — перечитывать SettingPath при изменении.
	WatchSetting bool `mapstructure:"watch_setting"`

	// HTTPTimeout — таймаут одного запроса HttpJob, 0 — без таймаута.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// UserAgent — User-Agent по умолчанию для HttpJob.
	UserAgent string `mapstructure:"user_agent"`

	// ScheduleInterval — период тика планировщика.
	ScheduleInterval time.Duration `mapstructure:"schedule_interval"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Addr возвращает адрес для http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.APIPort)
}

var keys = []string{
	"api_port", "database_url", "amqp_url",
	"setting_path", "watch_setting",
	"http_timeout", "user_agent", "schedule_interval",
	"log_level", "log_format", "log_file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", 8080)
	v.SetDefault("database_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("setting_path", "")
	v.SetDefault("watch_setting", false)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("user_agent", "harvester")
	v.SetDefault("schedule_interval", time.Second)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
}

// Load читает конфигурацию. configFile может быть пустым: тогда
// ищется harvester.yaml в текущем каталоге, его отсутствие не ошибка.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	_ = v.BindEnv("api_port", EnvPrefix+"_API_PORT", "API_PORT")
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("amqp_url", EnvPrefix+"_AMQP_URL", "RABBITMQ_URL")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("harvester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api_port %d", c.APIPort)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must not be negative")
	}
	if c.ScheduleInterval <= 0 {
		return fmt.Errorf("schedule_interval must be positive")
	}
	if c.WatchSetting && c.SettingPath == "" {
		return fmt.Errorf("watch_setting requires setting_path")
	}
	return nil
}
