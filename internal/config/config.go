// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string          `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string          `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string          `yaml:"migrations_path" env-default:"./migrations"`
	StoreTimeout            time.Duration   `yaml:"store_timeout" env:"STORE_TIMEOUT" env-default:"3s"`
	HTTPServer              HTTPServer      `yaml:"http_server"`
	RedisConnection         RedisConnection `yaml:"redis_connection"`
	JWTToken                JWTToken        `yaml:"jwttoken"`
	MagicLink               MagicLink       `yaml:"magic_link"`
	Quota                   Quota           `yaml:"quota"`
	Extractor               Extractor       `yaml:"extractor"`
	OAuth                   OAuth           `yaml:"oauth"`
	RabbitMQ                RabbitMQ        `yaml:"rabbitmq"`
	SMTP                    SMTP            `yaml:"smtp"`
	Scheduler               Scheduler       `yaml:"scheduler"`
	CORS                    CORS            `yaml:"cors"`
	Telemetry               Telemetry       `yaml:"telemetry"`
	Admin                   Admin           `yaml:"admin"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"30s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает ограничение частоты выдачи magic-link.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"2s"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	PrimaryTTL   time.Duration `yaml:"primary_ttl" env-default:"720h"`
	MagicLinkTTL time.Duration `yaml:"magic_link_ttl" env-default:"168h"`
}

// MagicLink настройки входа по ссылке из письма
type MagicLink struct {
	SessionTTL     time.Duration `yaml:"session_ttl" env-default:"10m"`
	PublicBaseURL  string        `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	TokenPepper    string        `yaml:"token_pepper" env:"MAGIC_LINK_PEPPER"`
	ThrottleLimit  int64         `yaml:"throttle_limit" env-default:"5"`
	ThrottleWindow time.Duration `yaml:"throttle_window" env-default:"1h"`
}

// Quota настройки дневных лимитов по тарифам
type Quota struct {
	Timezone    string           `yaml:"timezone" env-default:"UTC"`
	Limits      map[string]int64 `yaml:"limits"`
	MaxAttempts int              `yaml:"max_attempts" env-default:"3"`
}

// Extractor настройки внешнего сервиса распознавания текста
type Extractor struct {
	APIURL  string        `yaml:"api_url" env:"EXTRACTOR_API_URL" env-default:"https://vision.googleapis.com"`
	APIKey  string        `yaml:"api_key" env:"EXTRACTOR_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env-default:"20s"`
}

// OAuth настройки проверки токенов внешнего провайдера
type OAuth struct {
	Endpoint string        `yaml:"endpoint" env-default:"https://www.googleapis.com/"`
	Timeout  time.Duration `yaml:"timeout" env-default:"5s"`
}

// RabbitMQ настройки брокера. Пустой URL переключает доставку ссылок в лог.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// SMTP настройки почтового сервера для отправки magic-link
type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
}

// Scheduler настройки фоновой очистки сессий
type Scheduler struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"15m"`
	SweepGrace    time.Duration `yaml:"sweep_grace" env-default:"1h"`
}

// CORS список разрешённых источников (origin расширения браузера)
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Telemetry настройки приёма отчётов об ошибках клиента
type Telemetry struct {
	Rate          float64 `yaml:"rate" env-default:"1"`
	Burst         int     `yaml:"burst" env-default:"5"`
	MaxMessageLen int     `yaml:"max_message_len" env-default:"4096"`
}

// Admin служебный доступ. Пустой токен отключает маршруты /admin.
type Admin struct {
	Token string `yaml:"token" env:"ADMIN_TOKEN"`
}

// Load читает конфиг из файла и проверяет обязательные поля.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH, завершает процесс при ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.JWTToken.JWTSecretKey == "" {
		return errors.New("jwt_secret_key is required")
	}
	if len(c.JWTToken.JWTSecretKey) < 32 {
		return errors.New("jwt_secret_key must be at least 32 bytes")
	}
	if c.MagicLink.TokenPepper == "" {
		return errors.New("magic_link.token_pepper is required")
	}
	if c.Admin.Token != "" && len(c.Admin.Token) < 32 {
		return errors.New("admin.token must be at least 32 bytes")
	}
	if c.Quota.MaxAttempts < 1 {
		return errors.New("quota.max_attempts must be positive")
	}
	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		return fmt.Errorf("quota.timezone: %w", err)
	}
	return nil
}

// String печатает конфиг без секретов
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"StoreTimeout: %s\n"+
			"Redis: %s\n"+
			"JWT:\n"+
			"  PrimaryTTL: %s\n"+
			"  MagicLinkTTL: %s\n"+
			"MagicLink:\n"+
			"  SessionTTL: %s\n"+
			"  PublicBaseURL: %s\n"+
			"Quota:\n"+
			"  Timezone: %s\n"+
			"  Limits: %v\n"+
			"Extractor: %s (timeout %s)\n"+
			"RabbitMQ enabled: %t\n"+
			"Admin enabled: %t\n",
		c.Env,
		c.HTTPServer.AddressHTTP,
		c.HTTPServer.TimeoutHTTP,
		c.HTTPServer.IdleTimeout,
		c.StoreTimeout,
		c.RedisConnection.AddressRedis,
		c.JWTToken.PrimaryTTL,
		c.JWTToken.MagicLinkTTL,
		c.MagicLink.SessionTTL,
		c.MagicLink.PublicBaseURL,
		c.Quota.Timezone,
		c.Quota.Limits,
		c.Extractor.APIURL,
		c.Extractor.Timeout,
		c.RabbitMQ.URL != "",
		c.Admin.Token != "",
	)
}
