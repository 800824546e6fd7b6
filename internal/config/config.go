// Package config loads service configuration from .env, the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/and161185/riskguard/internal/kv"
	"github.com/and161185/riskguard/internal/limiter"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	GRPCTLSCert     string
	GRPCTLSKey      string
	DatabaseDSN     string
	FirestoreProj   string
	AnalysisColl    string
	AdminJWTKey     string
	LogLevel        string
	PolicyFile      string
	TrustProxy      bool
	Dev             bool
	ShutdownTimeout time.Duration

	KV     kv.Config
	Policy limiter.Policy
}

// Load reads .env (best effort), then the environment, then flags from args.
// Flags win over environment variables.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{Policy: limiter.DefaultPolicy()}

	fs := flag.NewFlagSet("riskguard", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", getString("HTTP_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", getString("GRPC_ADDR", ":9090"), "gRPC listen address (empty disables)")
	fs.StringVar(&cfg.GRPCTLSCert, "tls-cert", getString("GRPC_TLS_CERT", ""), "gRPC TLS certificate (PEM)")
	fs.StringVar(&cfg.GRPCTLSKey, "tls-key", getString("GRPC_TLS_KEY", ""), "gRPC TLS private key (PEM)")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", getString("DATABASE_DSN", ""), "PostgreSQL DSN for the analysis log")
	fs.StringVar(&cfg.FirestoreProj, "firestore-project", getString("FIRESTORE_PROJECT_ID", ""), "Firestore project for the analysis log")
	fs.StringVar(&cfg.AnalysisColl, "analysis-collection", getString("ANALYSIS_COLLECTION", "analyses"), "Firestore collection holding analysis runs")
	fs.StringVar(&cfg.AdminJWTKey, "admin-jwt-key", getString("ADMIN_JWT_KEY", ""), "HS256 key for admin tokens")
	fs.StringVar(&cfg.LogLevel, "log-level", getString("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.PolicyFile, "policy-file", getString("POLICY_FILE", ""), "YAML file overriding limiter policy")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", getBool("TRUST_PROXY", true), "derive client IP from X-Forwarded-For")
	fs.BoolVar(&cfg.Dev, "dev", getBool("DEV", false), "enable gRPC reflection")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getDuration("SHUTDOWN_TIMEOUT", 5*time.Second), "graceful shutdown timeout")

	fs.StringVar(&cfg.KV.RESTURL, "kv-url", getString("KV_REST_API_URL", ""), "REST key-value service URL")
	fs.StringVar(&cfg.KV.RESTToken, "kv-token", getString("KV_REST_API_TOKEN", ""), "REST key-value service token")
	fs.StringVar(&cfg.KV.RedisAddr, "redis-addr", getString("REDIS_ADDR", ""), "Redis address")
	fs.StringVar(&cfg.KV.RedisPassword, "redis-password", getString("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.KV.RedisDB, "redis-db", getInt("REDIS_DB", 0), "Redis database")
	fs.DurationVar(&cfg.KV.Timeout, "kv-timeout", getDuration("KV_TIMEOUT", 3*time.Second), "per-call key-value timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.PolicyFile != "" {
		if err := loadPolicy(cfg.PolicyFile, &cfg.Policy); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPolicy(path string, p *limiter.Policy) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http address is required")
	}
	if (c.GRPCTLSCert == "") != (c.GRPCTLSKey == "") {
		return errors.New("config: tls cert and key must be set together")
	}
	if c.KV.Timeout <= 0 {
		return errors.New("config: kv timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("config: shutdown timeout must be positive")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
