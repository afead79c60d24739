package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const EnvProduction = "production"

var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

type AppConfig struct {
	Port            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       int64
	CORSOrigins     []string
	// TrustedProxies may set the client address through forwarding headers.
	// Empty means the socket peer is always the client.
	TrustedProxies []netip.Prefix
}

func (a *AppConfig) IsProduction() bool {
	return a.Env == EnvProduction
}

type DbConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

type RateLimitConfig struct {
	Window          time.Duration
	MaxRequests     int
	AuthMaxRequests int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type HousekeepingConfig struct {
	ResetPurgeSchedule string
}

type Config struct {
	AppConfig          *AppConfig
	DbConfig           *DbConfig
	JWTConfig          *JWTConfig
	RateLimitConfig    *RateLimitConfig
	RedisConfig        *RedisConfig
	HousekeepingConfig *HousekeepingConfig
}

// LoadConfig reads the process environment, optionally seeded from a .env
// file in the working directory. A missing .env is not an error.
func LoadConfig(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded, using process environment", zap.Error(err))
	}

	/** app config */
	env := strings.ToLower(getenv("APP_ENV", "development"))
	readTimeout, err := getenvDuration("APP_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := getenvDuration("APP_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	idleTimeout, err := getenvDuration("APP_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getenvDuration("APP_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	bodyLimit, err := getenvInt("APP_BODY_LIMIT", 10<<20)
	if err != nil {
		return nil, err
	}

	trustedProxies, err := parsePrefixes(getenv("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	appConfig := &AppConfig{
		Port:            getenv("APP_PORT", "3000"),
		Env:             env,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
		BodyLimit:       int64(bodyLimit),
		CORSOrigins:     splitList(getenv("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")),
		TrustedProxies:  trustedProxies,
	}

	/** db config */
	maxOpenConns, err := getenvInt("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return nil, err
	}
	maxIdleConns, err := getenvInt("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	maxConnLifetime, err := getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	dbConfig := &DbConfig{
		DSN:             os.Getenv("POSTGRES_DSN"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		MaxConnLifetime: maxConnLifetime,
	}

	/** jwt config */
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, ErrMissingJWTSecret
	}
	accessTTL, err := getenvDuration("ACCESS_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := getenvDuration("REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	resetTTL, err := getenvDuration("RESET_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	jwtConfig := &JWTConfig{
		Secret:     secret,
		Issuer:     getenv("JWT_ISSUER", "lms"),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		ResetTTL:   resetTTL,
	}

	/** rate limit config */
	window, err := getenvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	maxRequests, err := getenvInt("RATE_LIMIT_MAX_REQUESTS", 100)
	if err != nil {
		return nil, err
	}
	authDefault := 50
	if appConfig.IsProduction() {
		authDefault = 5
	}
	authMaxRequests, err := getenvInt("AUTH_RATE_LIMIT_MAX", authDefault)
	if err != nil {
		return nil, err
	}

	rateLimitConfig := &RateLimitConfig{
		Window:          window,
		MaxRequests:     maxRequests,
		AuthMaxRequests: authMaxRequests,
	}

	/** redis config */
	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	redisConfig := &RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	return &Config{
		AppConfig:       appConfig,
		DbConfig:        dbConfig,
		JWTConfig:       jwtConfig,
		RateLimitConfig: rateLimitConfig,
		RedisConfig:     redisConfig,
		HousekeepingConfig: &HousekeepingConfig{
			ResetPurgeSchedule: getenv("RESET_PURGE_SCHEDULE", "@hourly"),
		},
	}, nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ParseDuration extends time.ParseDuration with a whole-day suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePrefixes accepts a comma list of CIDRs or single addresses.
func parsePrefixes(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range splitList(s) {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
