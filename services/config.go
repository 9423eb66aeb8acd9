package services

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	OAuth    OAuthConfig
	LLM      LLMConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Client   ClientConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type JWTConfig struct {
	Secret string
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	DefaultModel   string
	EmbeddingModel string
}

type RedisConfig struct {
	Addr     string
	Password string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	MaxUploadSize int64
}

type ClientConfig struct {
	URL string
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("oauth.google_client_id", "")
	viper.SetDefault("oauth.google_client_secret", "")
	viper.SetDefault("oauth.redirect_url", "")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.default_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-large")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.access_key", "")
	viper.SetDefault("storage.secret_key", "")
	viper.SetDefault("storage.bucket", "sagebook-documents")
	viper.SetDefault("storage.use_ssl", "false")
	viper.SetDefault("storage.max_upload_size", "33554432")
	viper.SetDefault("client.url", "http://localhost:5173")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("oauth.google_client_id", "GOOGLE_CLIENT_ID")
	viper.BindEnv("oauth.google_client_secret", "GOOGLE_CLIENT_SECRET")
	viper.BindEnv("oauth.redirect_url", "OAUTH_REDIRECT_URL")
	viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	viper.BindEnv("llm.api_key", "LLM_API_KEY")
	viper.BindEnv("llm.default_model", "LLM_DEFAULT_MODEL")
	viper.BindEnv("llm.embedding_model", "LLM_EMBEDDING_MODEL")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	viper.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	viper.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	viper.BindEnv("storage.bucket", "STORAGE_BUCKET")
	viper.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	viper.BindEnv("storage.max_upload_size", "STORAGE_MAX_UPLOAD_SIZE")
	viper.BindEnv("client.url", "CLIENT_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     viper.GetString("oauth.google_client_id"),
			GoogleClientSecret: viper.GetString("oauth.google_client_secret"),
			RedirectURL:        viper.GetString("oauth.redirect_url"),
		},
		LLM: LLMConfig{
			BaseURL:        viper.GetString("llm.base_url"),
			APIKey:         viper.GetString("llm.api_key"),
			DefaultModel:   viper.GetString("llm.default_model"),
			EmbeddingModel: viper.GetString("llm.embedding_model"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
		},
		Storage: StorageConfig{
			Endpoint:      viper.GetString("storage.endpoint"),
			AccessKey:     viper.GetString("storage.access_key"),
			SecretKey:     viper.GetString("storage.secret_key"),
			Bucket:        viper.GetString("storage.bucket"),
			UseSSL:        viper.GetBool("storage.use_ssl"),
			MaxUploadSize: viper.GetInt64("storage.max_upload_size"),
		},
		Client: ClientConfig{
			URL: viper.GetString("client.url"),
		},
	}
}
