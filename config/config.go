package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	ServiceAPIKey     string `mapstructure:"SERVICE_API_KEY"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisLockDB   int    `mapstructure:"REDIS_LOCK_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Africa's Talking aggregator.
	ATBaseURL      string `mapstructure:"AT_BASE_URL"`
	ATAPIKey       string `mapstructure:"AT_API_KEY"`
	ATUsername     string `mapstructure:"AT_USERNAME"`
	ATEnvironment  string `mapstructure:"AT_ENVIRONMENT"`
	ATProductTZS   string `mapstructure:"AT_PRODUCT_TZS"`
	ATProductKES   string `mapstructure:"AT_PRODUCT_KES"`
	ATProductUGX   string `mapstructure:"AT_PRODUCT_UGX"`
	ATSMSURL       string `mapstructure:"AT_SMS_URL"`
	ATSMSFrom      string `mapstructure:"AT_SMS_FROM"`
	WebhookSecret  string `mapstructure:"WEBHOOK_SECRET"`
	GatewayTimeout int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`

	// Reconciliation.
	PollIntervalSeconds   int `mapstructure:"POLL_INTERVAL_SECONDS"`
	PollStaleAfterSeconds int `mapstructure:"POLL_STALE_AFTER_SECONDS"`
	IdempotencyTTLHours   int `mapstructure:"IDEMPOTENCY_TTL_HOURS"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_LOCK_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("AT_ENVIRONMENT", "sandbox")
	viper.SetDefault("AT_PRODUCT_TZS", "TheFestaTZ")
	viper.SetDefault("AT_PRODUCT_KES", "TheFestaKE")
	viper.SetDefault("AT_PRODUCT_UGX", "TheFestaUG")
	viper.SetDefault("AT_SMS_FROM", "TheFesta")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("POLL_INTERVAL_SECONDS", 60)
	viper.SetDefault("POLL_STALE_AFTER_SECONDS", 120)
	viper.SetDefault("IDEMPOTENCY_TTL_HOURS", 48)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
