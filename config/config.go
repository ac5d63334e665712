package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type EmailConfig struct {
	APIURL string
	APIKey string
	From   string
}

func (c EmailConfig) Enabled() bool {
	return c.APIURL != "" && c.APIKey != "" && c.From != ""
}

// Config holds settings read at startup and the clients main wires from them.
type Config struct {
	Env         string
	Port        string
	StoreKind   string
	MongoURI    string
	DBName      string
	RedisURL    string
	JWTSecret   string
	SnapshotTTL time.Duration
	CORSOrigins []string
	Cloudinary  CloudinaryConfig
	Email       EmailConfig

	Logger      *zap.Logger
	MongoClient *mongo.Client
	Redis       *redis.Client
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:       getEnv("APP_ENV", "production"),
		Port:      getEnv("PORT", "8080"),
		StoreKind: strings.ToLower(getEnv("STORE", StoreMongo)),
		MongoURI:  getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		DBName:    getEnv("DB_NAME", "farewell_fund"),
		RedisURL:  os.Getenv("REDIS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		},
		Email: EmailConfig{
			APIURL: os.Getenv("ZEPTO_API_URL"),
			APIKey: os.Getenv("ZEPTO_API_KEY"),
			From:   os.Getenv("EMAIL_FROM"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.StoreKind != StoreMongo && cfg.StoreKind != StoreMemory {
		return nil, fmt.Errorf("STORE must be %q or %q, got %q", StoreMongo, StoreMemory, cfg.StoreKind)
	}

	ttl, err := time.ParseDuration(getEnv("SNAPSHOT_CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("SNAPSHOT_CACHE_TTL: %w", err)
	}
	cfg.SnapshotTTL = ttl

	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	logger, err := newLogger(cfg.Env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger

	return cfg, nil
}

func newLogger(env, level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if env == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
