package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environments recognised by APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Storage backends recognised by STORAGE_BACKEND.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// Config stores the application configuration. It is built once by Load
// and passed by pointer; nothing mutates it afterwards.
type Config struct {
	Env     string
	Port    int
	Version string

	JWTSecret    string
	JWTExpiresIn time.Duration
	BcryptRounds int
	CORSOrigins  []string

	DBDriver    string // mysql, postgres or sqlite
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DatabaseURL string // overrides the discrete DB_* settings

	StorageBackend string
	UploadDir      string // Base directory for all uploads; audio/ and artwork/ live below it
	UploadMaxSize  int64
	UploadTimeout  time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Redis配置 (RedisHost 为空时不启用缓存)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	StatCacheTTL  time.Duration

	AnalyticsWorkers int
	AnalyticsQueue   int
	AnalyticsTimeout time.Duration

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c *Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// IsProduction reports whether APP_ENV=production.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// RedisAddr returns host:port for the cache, or "" when the cache is disabled.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, value)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ParseDuration accepts Go durations ("90m") and day counts ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() (*Config, error) {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring unreadable .env file: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	intVar := func(key string, fallback int) int {
		n, err := getEnvInt(key, fallback)
		errs = append(errs, err)
		return n
	}
	boolVar := func(key string, fallback bool) bool {
		b, err := getEnvBool(key, fallback)
		errs = append(errs, err)
		return b
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		d, err := getEnvDuration(key, fallback)
		errs = append(errs, err)
		return d
	}

	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))

	cfg := &Config{
		Env:     env,
		Port:    intVar("PORT", 3333),
		Version: getEnv("APP_VERSION", "1.0.0"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTExpiresIn: durVar("JWT_EXPIRES_IN", 7*24*time.Hour),
		BcryptRounds: intVar("BCRYPT_ROUNDS", 12),

		DBDriver:    driver,
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      getEnv("DB_PORT", defaultDBPort(driver)),
		DBUser:      getEnv("DB_USER", "root"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnv("DB_NAME", "mixflow"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		UploadMaxSize:  int64(intVar("UPLOAD_MAX_SIZE", 100*1024*1024)),
		UploadTimeout:  durVar("UPLOAD_TIMEOUT", 10*time.Minute),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "mixflow"),
		MinioRegion:    os.Getenv("MINIO_REGION"),
		MinioUseSSL:    boolVar("MINIO_USE_SSL", false),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intVar("REDIS_DB", 0),
		StatCacheTTL:  durVar("STAT_CACHE_TTL", 5*time.Minute),

		AnalyticsWorkers: intVar("ANALYTICS_WORKERS", 4),
		AnalyticsQueue:   intVar("ANALYTICS_QUEUE", 1024),
		AnalyticsTimeout: durVar("ANALYTICS_TIMEOUT", 5*time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
		LogMaxSizeMB:  intVar("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: intVar("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: intVar("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   boolVar("LOG_COMPRESS", true),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	} else if env != EnvProduction {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:4200"}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultDBPort(driver string) string {
	if driver == "postgres" {
		return "5432"
	}
	return "3306"
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("APP_ENV: unknown environment %q", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT: %d out of range", c.Port)
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	switch c.StorageBackend {
	case StorageLocal, StorageMinio:
	default:
		return fmt.Errorf("STORAGE_BACKEND: unsupported backend %q", c.StorageBackend)
	}
	if c.UploadMaxSize <= 0 {
		return errors.New("UPLOAD_MAX_SIZE must be positive")
	}
	if c.BcryptRounds < 4 || c.BcryptRounds > 31 {
		return fmt.Errorf("BCRYPT_ROUNDS: %d out of range", c.BcryptRounds)
	}
	if c.AnalyticsWorkers < 1 || c.AnalyticsQueue < 0 {
		return errors.New("ANALYTICS_WORKERS must be >= 1 and ANALYTICS_QUEUE >= 0")
	}
	if c.JWTExpiresIn <= 0 {
		return errors.New("JWT_EXPIRES_IN must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in production")
		}
		if c.DatabaseURL == "" && c.DBDriver != "sqlite" && c.DBPassword == "" {
			return errors.New("DATABASE_URL or DB_PASSWORD is required in production")
		}
		if c.StorageBackend == StorageMinio && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
			return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required in production")
		}
	} else if c.JWTSecret == "" {
		// 开发环境随机生成, 重启后令牌失效
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate JWT secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(buf)
		log.Println("JWT_SECRET not set, using a random development secret")
	}
	return nil
}
