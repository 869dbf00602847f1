// Package config loads bridge settings from environment variables and an
// optional harness.yaml file. Only the HARNESS_BLENDER_* variables are
// consulted; unset sections leave their feature disabled.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a secret from a file path specified by an env var with
// _FILE suffix. If FOO is already set directly, the file is skipped. If
// FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Auth    AuthConfig
	Redis   RedisConfig
	Storage StorageConfig
	Worker  WorkerConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	LogRequests bool
}

// Addr is the host:port the server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL is the address clients use to reach this server.
func (s ServerConfig) BaseURL() string {
	return "http://" + s.Addr()
}

type EngineConfig struct {
	Binary string
}

type AuthConfig struct {
	Secret string // empty disables request authentication
}

type RedisConfig struct {
	Addr     string // empty disables the render queue
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
	Region          string
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKeyID != "" && s.SecretAccessKey != "" && s.Bucket != ""
}

type WorkerConfig struct {
	Concurrency int
}

// AuthSecret resolves the shared request-signing secret the same way
// Load does, including the *_FILE indirection, without pulling in the
// rest of the configuration.
func AuthSecret() string {
	readSecret("HARNESS_BLENDER_AUTH_SECRET")
	return os.Getenv("HARNESS_BLENDER_AUTH_SECRET")
}

// StateDir is where the bridge keeps its pid and url files. The
// directory is created on first use.
func StateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "harness-blender")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func Load() (*Config, error) {
	// Secrets may arrive as *_FILE paths (Docker secrets).
	readSecret("HARNESS_BLENDER_AUTH_SECRET")
	readSecret("HARNESS_BLENDER_REDIS_PASSWORD")
	readSecret("HARNESS_BLENDER_STORAGE_ACCESS_KEY_ID")
	readSecret("HARNESS_BLENDER_STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("harness")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if stateDir, err := StateDir(); err == nil {
		viper.AddConfigPath(stateDir)
	}

	// Environment variables
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.host", "HARNESS_BLENDER_HOST")
	_ = viper.BindEnv("server.port", "HARNESS_BLENDER_PORT")
	_ = viper.BindEnv("server.log_requests", "HARNESS_BLENDER_LOG_REQUESTS")
	_ = viper.BindEnv("engine.binary", "HARNESS_BLENDER_BIN")
	_ = viper.BindEnv("auth.secret", "HARNESS_BLENDER_AUTH_SECRET")
	_ = viper.BindEnv("redis.addr", "HARNESS_BLENDER_REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "HARNESS_BLENDER_REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "HARNESS_BLENDER_REDIS_DB")
	_ = viper.BindEnv("storage.endpoint", "HARNESS_BLENDER_STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.access_key_id", "HARNESS_BLENDER_STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "HARNESS_BLENDER_STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket", "HARNESS_BLENDER_STORAGE_BUCKET")
	_ = viper.BindEnv("storage.public_url", "HARNESS_BLENDER_STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("storage.region", "HARNESS_BLENDER_STORAGE_REGION")
	_ = viper.BindEnv("worker.concurrency", "HARNESS_BLENDER_WORKER_CONCURRENCY")

	// Defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 41749)
	viper.SetDefault("server.log_requests", true)
	viper.SetDefault("engine.binary", "")
	viper.SetDefault("auth.secret", "")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("worker.concurrency", 1)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("server.host"),
			Port:        viper.GetInt("server.port"),
			LogRequests: viper.GetBool("server.log_requests"),
		},
		Engine: EngineConfig{
			Binary: viper.GetString("engine.binary"),
		},
		Auth: AuthConfig{
			Secret: viper.GetString("auth.secret"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			Bucket:          viper.GetString("storage.bucket"),
			PublicURL:       viper.GetString("storage.public_url"),
			Region:          viper.GetString("storage.region"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
		},
	}

	return cfg, nil
}
