// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config is decoded from environment variables. A .env file in the working
// directory is loaded first when present.
type Config struct {
	Port          string `env:"PORT,default=8080"`
	StorageDriver string `env:"STORAGE_DRIVER,default=postgres"`

	DBHost     string `env:"DB_HOST,default=localhost"`
	DBPort     string `env:"DB_PORT,default=5432"`
	DBUser     string `env:"DB_USER,default=user"`
	DBPassword string `env:"DB_PASSWORD,default=password"`
	DBName     string `env:"DB_NAME,default=marketchatdb"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	JWTSecret     string `env:"JWT_SECRET,required=true"`
	InternalToken string `env:"INTERNAL_TOKEN"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	LocalesPath      string `env:"LOCALES_PATH,default=internal/localization/locales"`
	DefaultLanguage  string `env:"DEFAULT_LANGUAGE,default=en"`

	HeartbeatTimeout time.Duration `env:"PRESENCE_HEARTBEAT_TIMEOUT,default=90s"`
}

// Load reads .env (optional) and decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: no .env file found, using process environment")
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = HeartbeatTimeout
	}
	if cfg.HeartbeatTimeout <= PongWait {
		return nil, fmt.Errorf("config error: PRESENCE_HEARTBEAT_TIMEOUT must exceed %s (websocket pong wait), got %s", PongWait, cfg.HeartbeatTimeout)
	}
	return &cfg, nil
}

// PostgresDSN builds the gorm/postgres connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}
