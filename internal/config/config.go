package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string
	StorageDriver     string
	DBURL             string
	DBAutoMigrate     bool
	JWTSecret         string
	TokenTTLMinutes   int
	BcryptCost        int
	LogLevel          string
	ReadTimeoutSecs   int
	WriteTimeoutSecs  int
	IdleTimeoutSecs   int
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
}

var defaults = map[string]any{
	"PORT":                        "8080",
	"STORAGE_DRIVER":              DriverPostgres,
	"DB_AUTO_MIGRATE":             true,
	"ACCESS_TOKEN_EXPIRE_MINUTES": 30,
	"BCRYPT_COST":                 10,
	"LOG_LEVEL":                   "info",
	"SERVER_READ_TIMEOUT":         15,
	"SERVER_WRITE_TIMEOUT":        15,
	"SERVER_IDLE_TIMEOUT":         60,
	"DB_MAX_CONNS":                20,
	"DB_MIN_CONNS":                2,
	"DB_MAX_CONN_IDLE_SECS":       300,
	"DB_MAX_CONN_LIFETIME_SECS":   3600,
	"DB_CONN_TIMEOUT_SECS":        10,
	"DB_STATEMENT_CACHE_CAPACITY": 256,
}

// Load reads configuration from the environment, applying defaults and
// validation. Variables in a .env file in the working directory are loaded
// first without overriding ones already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := Config{
		Port:              v.GetString("PORT"),
		StorageDriver:     strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		DBURL:             v.GetString("DB_URL"),
		DBAutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		TokenTTLMinutes:   v.GetInt("ACCESS_TOKEN_EXPIRE_MINUTES"),
		BcryptCost:        v.GetInt("BCRYPT_COST"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		ReadTimeoutSecs:   v.GetInt("SERVER_READ_TIMEOUT"),
		WriteTimeoutSecs:  v.GetInt("SERVER_WRITE_TIMEOUT"),
		IdleTimeoutSecs:   v.GetInt("SERVER_IDLE_TIMEOUT"),
		DBMaxConns:        v.GetInt("DB_MAX_CONNS"),
		DBMinConns:        v.GetInt("DB_MIN_CONNS"),
		DBMaxIdleSecs:     v.GetInt("DB_MAX_CONN_IDLE_SECS"),
		DBMaxLifeSecs:     v.GetInt("DB_MAX_CONN_LIFETIME_SECS"),
		DBConnTimeoutSecs: v.GetInt("DB_CONN_TIMEOUT_SECS"),
		DBStatementCache:  v.GetInt("DB_STATEMENT_CACHE_CAPACITY"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DBURL == "" {
			return fmt.Errorf("DB_URL is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.StorageDriver)
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.TokenTTLMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	return nil
}
