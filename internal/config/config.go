// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Wave store drivers.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Object store drivers.
const (
	ObjectStoreLocal    = "local"
	ObjectStoreFirebase = "firebase"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	WaveStore string `mapstructure:"WAVE_STORE"`
	MongoURI  string `mapstructure:"MONGO_URI"`
	MongoDB   string `mapstructure:"MONGO_DB"`

	FirebaseCredentials   string `mapstructure:"FIREBASE_CREDENTIALS"`
	FirebaseProjectID     string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseStorageBucket string `mapstructure:"FIREBASE_STORAGE_BUCKET"`

	ObjectStore      string `mapstructure:"OBJECT_STORE"`
	MediaDir         string `mapstructure:"MEDIA_DIR"`
	MediaPublicURL   string `mapstructure:"MEDIA_PUBLIC_URL"`
	MediaMaxUploadMB int    `mapstructure:"MEDIA_MAX_UPLOAD_MB"`
	DefaultAvatarURL string `mapstructure:"DEFAULT_AVATAR_URL"`

	AnimeAPIURL string  `mapstructure:"ANIME_API_URL"`
	AnimeAPIRPS float64 `mapstructure:"ANIME_API_RPS"`

	WriteMaxAttempts int `mapstructure:"WRITE_MAX_ATTEMPTS"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	// The base file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "wavely")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	v.SetDefault("FEATURE_FLAGS", "anime_metadata=on,following_feed=on")

	v.SetDefault("WAVE_STORE", StorePostgres)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "wavely")

	v.SetDefault("FIREBASE_CREDENTIALS", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_STORAGE_BUCKET", "")

	v.SetDefault("OBJECT_STORE", ObjectStoreLocal)
	v.SetDefault("MEDIA_DIR", "./media")
	v.SetDefault("MEDIA_PUBLIC_URL", "http://localhost:8375/media")
	v.SetDefault("MEDIA_MAX_UPLOAD_MB", 5)
	v.SetDefault("DEFAULT_AVATAR_URL", "https://www.gravatar.com/avatar/?d=mp")

	v.SetDefault("ANIME_API_URL", "https://graphql.anilist.co")
	v.SetDefault("ANIME_API_RPS", 1.0)

	v.SetDefault("WRITE_MAX_ATTEMPTS", 5)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// IsProduction reports whether strict production rules apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// RateLimitEnabled reports whether per-route limits are enforced. Local
// development and tests run without them.
func (c *Config) RateLimitEnabled() bool {
	switch c.Env {
	case "", "development", "test":
		return false
	}
	return true
}

// FirebaseEnabled reports whether Firebase credentials were supplied.
func (c *Config) FirebaseEnabled() bool {
	return strings.TrimSpace(c.FirebaseCredentials) != ""
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.WaveStore {
	case StorePostgres:
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when WAVE_STORE=mongo")
		}
	default:
		return fmt.Errorf("WAVE_STORE must be %q or %q, got %q", StorePostgres, StoreMongo, c.WaveStore)
	}

	switch c.ObjectStore {
	case ObjectStoreLocal:
		if c.MediaDir == "" {
			return errors.New("MEDIA_DIR is required when OBJECT_STORE=local")
		}
	case ObjectStoreFirebase:
		if !c.FirebaseEnabled() || c.FirebaseStorageBucket == "" {
			return errors.New("FIREBASE_CREDENTIALS and FIREBASE_STORAGE_BUCKET are required when OBJECT_STORE=firebase")
		}
	default:
		return fmt.Errorf("OBJECT_STORE must be %q or %q, got %q", ObjectStoreLocal, ObjectStoreFirebase, c.ObjectStore)
	}

	if c.MediaMaxUploadMB <= 0 {
		return errors.New("MEDIA_MAX_UPLOAD_MB must be positive")
	}
	if c.WriteMaxAttempts <= 0 {
		return errors.New("WRITE_MAX_ATTEMPTS must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
