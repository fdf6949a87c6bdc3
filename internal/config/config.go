package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Sharing   SharingConfig   `mapstructure:"sharing"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PrivateBucket string `mapstructure:"private_bucket"`
	PublicBucket  string `mapstructure:"public_bucket"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SharingConfig struct {
	PortalURL        string        `mapstructure:"portal_url"`
	AllowPublicFiles bool          `mapstructure:"allow_public_files"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

type WatermarkConfig struct {
	MaxPages int   `mapstructure:"max_pages"`
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DSN builds the postgres connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// Load reads configuration from config.yaml and the environment. A .env file
// is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("auth.jwt_secret", "change-me")
	viper.SetDefault("auth.token_expiry", 24*time.Hour)
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "./data/sharing.db")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.ssl_mode", "disable")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("minio.endpoint", "localhost:9000")
	viper.SetDefault("minio.use_ssl", false)
	viper.SetDefault("minio.private_bucket", "shared-files-private")
	viper.SetDefault("minio.public_bucket", "shared-files-public")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from", "noreply@localhost")
	viper.SetDefault("sharing.portal_url", "http://localhost:8080")
	viper.SetDefault("sharing.allow_public_files", false)
	viper.SetDefault("sharing.sweep_interval", 24*time.Hour)
	viper.SetDefault("watermark.max_pages", 200)
	viper.SetDefault("watermark.max_bytes", 50<<20)
	viper.SetDefault("logging.level", "info")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/fileshare-gateway")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	setEnvOverrides()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &config, nil
}

func setEnvOverrides() {
	overrides := map[string]string{
		"SERVER_HOST":          "server.host",
		"SERVER_PORT":          "server.port",
		"SERVER_MODE":          "server.mode",
		"JWT_SECRET":           "auth.jwt_secret",
		"DATABASE_TYPE":        "database.type",
		"SQLITE_PATH":          "database.sqlite.path",
		"POSTGRES_HOST":        "database.postgres.host",
		"POSTGRES_USER":        "database.postgres.username",
		"POSTGRES_PASSWORD":    "database.postgres.password",
		"POSTGRES_DB":          "database.postgres.database",
		"REDIS_ADDRESS":        "redis.address",
		"REDIS_PASSWORD":       "redis.password",
		"MINIO_ENDPOINT":       "minio.endpoint",
		"MINIO_ACCESS_KEY":     "minio.access_key",
		"MINIO_SECRET_KEY":     "minio.secret_key",
		"MINIO_PRIVATE_BUCKET": "minio.private_bucket",
		"MINIO_PUBLIC_BUCKET":  "minio.public_bucket",
		"SMTP_HOST":            "smtp.host",
		"SMTP_USERNAME":        "smtp.username",
		"SMTP_PASSWORD":        "smtp.password",
		"SMTP_FROM":            "smtp.from",
		"PORTAL_URL":           "sharing.portal_url",
	}
	for env, key := range overrides {
		if v := os.Getenv(env); v != "" {
			viper.Set(key, v)
		}
	}
}
