package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:             "8375",
		JWTSecret:        "a-very-long-secret-value-that-is-long-enough",
		Env:              "development",
		WaveStore:        StorePostgres,
		ObjectStore:      ObjectStoreLocal,
		MediaDir:         "./media",
		MediaMaxUploadMB: 5,
		WriteMaxAttempts: 5,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "test-secret-that-is-at-least-32-chars")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8375", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.WaveStore)
	assert.Equal(t, ObjectStoreLocal, cfg.ObjectStore)
	assert.Equal(t, 5, cfg.MediaMaxUploadMB)
	assert.Equal(t, 5, cfg.WriteMaxAttempts)
	assert.Equal(t, "https://graphql.anilist.co", cfg.AnimeAPIURL)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("WAVE_STORE", "mongo")
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("WRITE_MAX_ATTEMPTS", "9")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.WaveStore)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoURI)
	assert.Equal(t, 9, cfg.WriteMaxAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"unknown store", func(c *Config) { c.WaveStore = "cassandra" }, "WAVE_STORE"},
		{"mongo without uri", func(c *Config) { c.WaveStore = StoreMongo; c.MongoURI = "" }, "MONGO_URI"},
		{"firebase bucket without creds", func(c *Config) { c.ObjectStore = ObjectStoreFirebase }, "FIREBASE_CREDENTIALS"},
		{"zero attempts", func(c *Config) { c.WriteMaxAttempts = 0 }, "WRITE_MAX_ATTEMPTS"},
		{"prod default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = defaultJWTSecret
		}, "changed from the default"},
		{"prod weak db password", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "password"
		}, "DB_PASSWORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
