// Package config loads the application configuration from defaults,
// command line flags and environment variables, in that order of priority.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the service.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	ShortURLBase        string        `env:"BASE_URL" validate:"url"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" validate:"omitempty,filepath"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	RedisDSN            string        `env:"REDIS_DSN"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR"`
	DefaultCodeLength   int           `env:"DEFAULT_CODE_LENGTH" validate:"min=6"`
	RateLimitRPS        float64       `env:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `env:"RATE_LIMIT_BURST"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	ShortURLBase:        "http://localhost:8080",
	LogLevel:            "info",
	DBFileName:          "",
	DatabaseDSN:         "",
	RedisDSN:            "",
	DBConnectionTimeout: 10 * time.Second,
	MigrationsDir:       "cmd/shortener/migrations",
	DefaultCodeLength:   8,
	RateLimitRPS:        50,
	RateLimitBurst:      100,
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func (c *Config) validate() error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}

	if err := validate.RegisterValidation("filepath", validateFilePath); err != nil {
		return err
	}

	return validate.Struct(c)
}

// InitOption configures the behavior of New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips command line parsing; used by tests.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

func (c *Config) parseFlags() {
	flag.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flag.StringVar(&c.ShortURLBase, "b", c.ShortURLBase, "base address of the resulting shortened URL")
	flag.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flag.StringVar(&c.DBFileName, "f", c.DBFileName, "JSON file name with database")
	flag.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "a string with the database connection details")
	flag.StringVar(&c.RedisDSN, "r", c.RedisDSN, "a string with the redis connection details for the redirect cache")
	flag.StringVar(&c.MigrationsDir, "m", c.MigrationsDir, "directory with the goose migrations")
	flag.IntVar(&c.DefaultCodeLength, "c", c.DefaultCodeLength, "short key length used when the request does not specify one")
	flag.Parse()
}

func (c *Config) applyEnv() error {
	fromEnv := Config{}
	if err := env.Parse(&fromEnv); err != nil {
		return err
	}

	if fromEnv.RunAddr != "" {
		c.RunAddr = fromEnv.RunAddr
	}
	if fromEnv.ShortURLBase != "" {
		c.ShortURLBase = fromEnv.ShortURLBase
	}
	if fromEnv.LogLevel != "" {
		c.LogLevel = fromEnv.LogLevel
	}
	if fromEnv.DBFileName != "" {
		c.DBFileName = fromEnv.DBFileName
	}
	if fromEnv.DatabaseDSN != "" {
		c.DatabaseDSN = fromEnv.DatabaseDSN
	}
	if fromEnv.RedisDSN != "" {
		c.RedisDSN = fromEnv.RedisDSN
	}
	if fromEnv.DBConnectionTimeout != 0 {
		c.DBConnectionTimeout = fromEnv.DBConnectionTimeout
	}
	if fromEnv.MigrationsDir != "" {
		c.MigrationsDir = fromEnv.MigrationsDir
	}
	if fromEnv.DefaultCodeLength != 0 {
		c.DefaultCodeLength = fromEnv.DefaultCodeLength
	}
	if fromEnv.RateLimitRPS != 0 {
		c.RateLimitRPS = fromEnv.RateLimitRPS
	}
	if fromEnv.RateLimitBurst != 0 {
		c.RateLimitBurst = fromEnv.RateLimitBurst
	}

	return nil
}

// New builds a validated Config.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	cfg := defaultConfig

	if !options.disableFlagsParsing {
		cfg.parseFlags()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
