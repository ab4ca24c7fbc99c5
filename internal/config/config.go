package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// виды кэша каталога
const (
	CatalogCacheMemory = "memory"
	CatalogCacheRedis  = "redis"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Payment    PaymentConfig    `yaml:"payment"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Order      OrderConfig      `yaml:"order"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

// DSN собирает строку подключения к postgres
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"` // в минутах
}

func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.TokenTTL) * time.Minute
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// PaymentConfig — платёжный шлюз Stripe
type PaymentConfig struct {
	SecretKey        string        `yaml:"-" env:"STRIPE_SECRET_KEY" env-required:"true"`
	WebhookSecret    string        `yaml:"-" env:"STRIPE_WEBHOOK_SECRET" env-required:"true"`
	PostCheckoutURL  string        `yaml:"post_checkout_url" env:"POST_CHECKOUT_URL" env-default:"http://localhost:3000"`
	AllowedCountries []string      `yaml:"allowed_countries" env-default:"HR,BA"`
	Timeout          time.Duration `yaml:"timeout" env-default:"10s"`
}

// CatalogConfig — кэш товаров каталога
type CatalogConfig struct {
	Cache         string        `yaml:"cache" env-default:"memory"` // memory | redis
	TTL           time.Duration `yaml:"ttl" env-default:"10m"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1m"`
}

type RedisConfig struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

// KafkaConfig — публикация событий об оплате; без брокеров события только логируются
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env-default:"orders.paid"`
}

type OrderConfig struct {
	PriceLookupConcurrency int `yaml:"price_lookup_concurrency" env-default:"8"`
	CreateAttempts         int `yaml:"create_attempts" env-default:"3"`
}

// Validate проверяет значения, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	switch c.Catalog.Cache {
	case CatalogCacheMemory, CatalogCacheRedis:
	default:
		return fmt.Errorf("catalog.cache must be %q or %q, got %q", CatalogCacheMemory, CatalogCacheRedis, c.Catalog.Cache)
	}
	if c.Catalog.TTL <= 0 {
		return fmt.Errorf("catalog.ttl must be positive")
	}
	if c.Order.CreateAttempts < 1 {
		return fmt.Errorf("order.create_attempts must be at least 1")
	}
	if c.Order.PriceLookupConcurrency < 1 {
		return fmt.Errorf("order.price_lookup_concurrency must be at least 1")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

// fetchConfigPath читает флаг --config; остальные флаги программа регистрирует до вызова MustLoad
func fetchConfigPath() string {
	var path string

	if f := flag.Lookup("config"); f != nil {
		path = f.Value.String()
	} else {
		flag.StringVar(&path, "config", "", "path to config file")
		flag.Parse()
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}
