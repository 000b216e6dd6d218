package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr         string
	MySQLDSN           string
	JWTSecret          string
	JWTTTL             time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	RequestTimeout     time.Duration
	UserMinuteLimit    int
	UserDailyLimit     int
	BackendMinuteLimit int
	BackendDailyLimit  int
	QuotaFailOpen      bool
	MinImageBytes      int
	MaxUploadBytes     int64
	S3Endpoint         string
	S3Region           string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3PublicBaseURL    string
	S3UsePathStyle     bool
	S3OutputPrefix     string
	S3UploadPrefix     string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":3000"),
		JWTTTL:             time.Hour * time.Duration(getInt("JWT_TTL_HOURS", 24)),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		RequestTimeout:     time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		UserMinuteLimit:    getInt("USER_MINUTE_LIMIT", 5),
		UserDailyLimit:     getInt("USER_DAILY_LIMIT", 60),
		BackendMinuteLimit: getInt("BACKEND_MINUTE_LIMIT", 25),
		BackendDailyLimit:  getInt("BACKEND_DAILY_LIMIT", 300),
		QuotaFailOpen:      getBool("QUOTA_FAIL_OPEN", true),
		MinImageBytes:      getInt("MIN_IMAGE_BYTES", 750),
		MaxUploadBytes:     int64(getInt("MAX_UPLOAD_MB", 5)) * 1024 * 1024,
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:    os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3OutputPrefix:     getEnv("S3_OUTPUT_PREFIX", "generated"),
		S3UploadPrefix:     getEnv("S3_UPLOAD_PREFIX", "uploads"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	// Running without an env file is fine when the variables come from the
	// process environment (containers, CI).
	return nil
}
