package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	SQLite      SQLiteConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Import      ImportConfig
	Aggregation AggregationConfig
	Sources     SourcesConfig
	LLM         LLMConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	IsDevelopment  bool
}

// StorageConfig selects the document store backing facts, summaries and OTPs.
// Driver is one of "sqlite", "mongo" or "memory".
type StorageConfig struct {
	Driver string
}

type SQLiteConfig struct {
	Path string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	CacheTTLSec int
	// OTPStore moves OTP credentials from the main store into redis keys.
	OTPStore bool
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTLHours int
	OTPTTLMinutes int
	// OTPMode is "fixed" (development placeholder) or "random".
	OTPMode  string
	FixedOTP string
	Region   string
}

type ImportConfig struct {
	BatchSize   int
	Concurrency int
	MaxAttempts int
}

type AggregationConfig struct {
	Workers       int
	BiometricOnly bool
}

type SourcesConfig struct {
	S3  S3Config
	GCS GCSConfig
}

type S3Config struct {
	Region   string
	Endpoint string
}

type GCSConfig struct {
	CredentialsFile string
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type RateLimitConfig struct {
	OTPRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/drishti")

	v.SetEnvPrefix("DRISHTI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	switch c.Auth.OTPMode {
	case "fixed", "random":
	default:
		return fmt.Errorf("unsupported otp mode %q", c.Auth.OTPMode)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret must not be empty")
	}

	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("import.batchSize must be positive")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.isDevelopment", true)

	v.SetDefault("storage.driver", "sqlite")

	v.SetDefault("sqlite.path", "./data/drishti.db")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "aadhaar_drishti")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTLSec", 300)
	v.SetDefault("redis.otpStore", false)

	v.SetDefault("auth.jwtSecret", "aadhaar_drishti_secret_key_change_in_production")
	v.SetDefault("auth.tokenTTLHours", 24)
	v.SetDefault("auth.otpTTLMinutes", 10)
	v.SetDefault("auth.otpMode", "fixed")
	v.SetDefault("auth.fixedOTP", "123456")
	v.SetDefault("auth.region", "IN")

	v.SetDefault("import.batchSize", 1000)
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.maxAttempts", 3)

	v.SetDefault("aggregation.workers", 4)
	v.SetDefault("aggregation.biometricOnly", false)

	v.SetDefault("sources.s3.region", "ap-south-1")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("rateLimit.otpRequestsPerMinute", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
