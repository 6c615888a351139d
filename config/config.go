package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ServiceBus ServiceBusConfig
	NewRelic   NewRelicConfig
	Analysis   AnalysisConfig
	Telemetry  TelemetryConfig
	Liveness   LivenessConfig
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port int
	Mode string // debug, release, test
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// StatementTimeout bounds every statement on the server side
	StatementTimeout time.Duration
}

// RedisConfig holds the Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// ConfigTTL is applied to device configuration entries; zero keeps them forever
	ConfigTTL time.Duration
}

// ServiceBusConfig holds the Azure Service Bus configuration
type ServiceBusConfig struct {
	ConnectionString string
	QueueName        string
	Workers          int
	QueueSize        int
}

// NewRelicConfig holds the New Relic configuration
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AnalysisCandidate is one external analysis backend, tried in list order
type AnalysisCandidate struct {
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// AnalysisConfig holds the analysis provider configuration
type AnalysisConfig struct {
	Timeout      time.Duration
	Temperature  float64
	SystemPrompt string
	APIKey       string
	SampleSize   int
	Candidates   []AnalysisCandidate
}

// TelemetryConfig holds reading query limits
type TelemetryConfig struct {
	MaxLimit int
}

// LivenessConfig controls the offline sweeper run by the worker command
type LivenessConfig struct {
	OfflineAfter time.Duration
	Interval     time.Duration
}

const defaultSystemPrompt = "You are a helpful assistant for analyzing IoT monitoring data. " +
	"You will receive JSON data from various sensors and devices. Your task is to identify anomalies, " +
	"trends, and potential issues based on the data provided. Provide clear, concise insights and " +
	"recommendations for any detected problems. Fire readings are analog indicator values, not degrees Fahrenheit."

// InitConfig initializes the configuration using Viper
func InitConfig(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/fleet-service")
		viper.SetConfigName("config")
	}

	// FLEET_SERVER_PORT overrides server.port
	viper.SetEnvPrefix("FLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("No config file found, using defaults and environment variables")
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("server.port", 8095)
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "fleet")
	viper.SetDefault("database.password", "fleet")
	viper.SetDefault("database.dbname", "fleet_service_db")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.statement_timeout", "15s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.config_ttl", "0s")

	// No default connection string; an empty one selects the logging client
	viper.SetDefault("servicebus.queuename", "fleet-events")
	viper.SetDefault("servicebus.workers", 4)
	viper.SetDefault("servicebus.queuesize", 1000)

	viper.SetDefault("newrelic.appname", "Fleet Service Local")
	viper.SetDefault("newrelic.enabled", false)

	viper.SetDefault("analysis.timeout", "30s")
	viper.SetDefault("analysis.temperature", 1.0)
	viper.SetDefault("analysis.system_prompt", defaultSystemPrompt)
	viper.SetDefault("analysis.sample_size", 100)
	viper.SetDefault("analysis.candidates", []map[string]interface{}{
		{"model": "mistral-small-2506", "endpoint": "https://api.mistral.ai/v1/chat/completions"},
		{"model": "mistral-small-2501", "endpoint": "https://api.mistral.ai/v1/chat/completions"},
	})

	viper.SetDefault("telemetry.max_limit", 1000)

	viper.SetDefault("liveness.offline_after", "10m")
	viper.SetDefault("liveness.interval", "1m")
}

// Load loads the configuration
func Load() (*Config, error) {
	serverConfig := ServerConfig{
		Port: viper.GetInt("server.port"),
		Mode: viper.GetString("server.mode"),
	}

	dbConfig := DatabaseConfig{
		Host:             viper.GetString("database.host"),
		Port:             viper.GetInt("database.port"),
		User:             viper.GetString("database.user"),
		Password:         viper.GetString("database.password"),
		DBName:           viper.GetString("database.dbname"),
		SSLMode:          viper.GetString("database.sslmode"),
		StatementTimeout: viper.GetDuration("database.statement_timeout"),
	}

	redisConfig := RedisConfig{
		Host:      viper.GetString("redis.host"),
		Port:      viper.GetInt("redis.port"),
		Password:  viper.GetString("redis.password"),
		DB:        viper.GetInt("redis.db"),
		ConfigTTL: viper.GetDuration("redis.config_ttl"),
	}

	serviceBusConfig := ServiceBusConfig{
		ConnectionString: viper.GetString("servicebus.connectionstring"),
		QueueName:        viper.GetString("servicebus.queuename"),
		Workers:          viper.GetInt("servicebus.workers"),
		QueueSize:        viper.GetInt("servicebus.queuesize"),
	}

	newRelicConfig := NewRelicConfig{
		AppName:    viper.GetString("newrelic.appname"),
		LicenseKey: viper.GetString("newrelic.licensekey"),
		Enabled:    viper.GetBool("newrelic.enabled"),
	}

	var candidates []AnalysisCandidate
	if err := viper.UnmarshalKey("analysis.candidates", &candidates); err != nil {
		return nil, fmt.Errorf("invalid analysis.candidates: %w", err)
	}
	analysisConfig := AnalysisConfig{
		Timeout:      viper.GetDuration("analysis.timeout"),
		Temperature:  viper.GetFloat64("analysis.temperature"),
		SystemPrompt: viper.GetString("analysis.system_prompt"),
		APIKey:       viper.GetString("analysis.api_key"),
		SampleSize:   viper.GetInt("analysis.sample_size"),
		Candidates:   candidates,
	}
	// A shared key covers candidates configured without their own credential
	for i := range analysisConfig.Candidates {
		if analysisConfig.Candidates[i].APIKey == "" {
			analysisConfig.Candidates[i].APIKey = analysisConfig.APIKey
		}
	}

	telemetryConfig := TelemetryConfig{
		MaxLimit: viper.GetInt("telemetry.max_limit"),
	}

	livenessConfig := LivenessConfig{
		OfflineAfter: viper.GetDuration("liveness.offline_after"),
		Interval:     viper.GetDuration("liveness.interval"),
	}

	return &Config{
		Server:     serverConfig,
		Database:   dbConfig,
		Redis:      redisConfig,
		ServiceBus: serviceBusConfig,
		NewRelic:   newRelicConfig,
		Analysis:   analysisConfig,
		Telemetry:  telemetryConfig,
		Liveness:   livenessConfig,
	}, nil
}
