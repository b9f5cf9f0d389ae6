/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRunLockKey         string `mapstructure:"REDIS_RUN_LOCK_KEY"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	PayoutEventExchange     string `mapstructure:"PAYOUT_EVENT_EXCHANGE"`
	StripeAPIBaseURL        string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey         string `mapstructure:"STRIPE_SECRET_KEY"`
	SchedulerWebhookSecret  string `mapstructure:"SCHEDULER_WEBHOOK_SECRET"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	HeartbeatURL            string `mapstructure:"HEARTBEAT_URL"`
	HeartbeatJobName        string `mapstructure:"HEARTBEAT_JOB_NAME"`
	PayoutJobSchedule       string `mapstructure:"PAYOUT_JOB_SCHEDULE"`
	PayoutBatchLimit        int    `mapstructure:"PAYOUT_BATCH_LIMIT"`
	MaxConcurrentTransfers  int    `mapstructure:"MAX_CONCURRENT_TRANSFERS"`
	MaxRetryCount           int    `mapstructure:"MAX_RETRY_COUNT"`
	BatchTimeoutSeconds     int    `mapstructure:"BATCH_TIMEOUT_SECONDS"`
	ProcessorTimeoutSeconds int    `mapstructure:"PROCESSOR_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("REDIS_RUN_LOCK_KEY", "consulto:payout_run_lock")
	viper.SetDefault("PAYOUT_EVENT_EXCHANGE", "consulto.events")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("HEARTBEAT_JOB_NAME", "expert-payout-run")
	viper.SetDefault("PAYOUT_JOB_SCHEDULE", "*/30 * * * *")
	viper.SetDefault("PAYOUT_BATCH_LIMIT", 200)
	viper.SetDefault("MAX_CONCURRENT_TRANSFERS", 4)
	viper.SetDefault("MAX_RETRY_COUNT", 3)
	viper.SetDefault("BATCH_TIMEOUT_SECONDS", 300)
	viper.SetDefault("PROCESSOR_TIMEOUT_SECONDS", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYOUT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RUN_LOCK_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYOUT_EVENT_EXCHANGE")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("SCHEDULER_WEBHOOK_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYOUT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("HEARTBEAT_URL")
	_ = viper.BindEnv("HEARTBEAT_JOB_NAME")
	_ = viper.BindEnv("PAYOUT_JOB_SCHEDULE")
	_ = viper.BindEnv("PAYOUT_BATCH_LIMIT")
	_ = viper.BindEnv("MAX_CONCURRENT_TRANSFERS")
	_ = viper.BindEnv("MAX_RETRY_COUNT")
	_ = viper.BindEnv("BATCH_TIMEOUT_SECONDS")
	_ = viper.BindEnv("PROCESSOR_TIMEOUT_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYOUT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRunLockKey = strings.TrimSpace(config.RedisRunLockKey)
	if config.RedisRunLockKey == "" {
		config.RedisRunLockKey = "consulto:payout_run_lock"
	}

	if config.PayoutBatchLimit <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive batch limit configured; using default\" limit=%d", config.PayoutBatchLimit)
		config.PayoutBatchLimit = 200
	}
	if config.MaxConcurrentTransfers <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive concurrency configured; using default\" workers=%d", config.MaxConcurrentTransfers)
		config.MaxConcurrentTransfers = 4
	}
	if config.MaxRetryCount <= 0 {
		config.MaxRetryCount = 3
	}
	if config.BatchTimeoutSeconds <= 0 {
		config.BatchTimeoutSeconds = 300
	}
	if config.ProcessorTimeoutSeconds <= 0 {
		config.ProcessorTimeoutSeconds = 30
	}

	return
}
