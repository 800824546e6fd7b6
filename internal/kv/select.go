package kv

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind names the backend chosen at startup.
type Kind string

const (
	KindREST   Kind = "rest"
	KindRedis  Kind = "redis"
	KindMemory Kind = "memory"
)

// Config selects and parameterises the backend.
type Config struct {
	RESTURL       string
	RESTToken     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Timeout       time.Duration
}

// Kind reports which backend New builds for c.
func (c Config) Kind() Kind {
	switch {
	case strings.TrimSpace(c.RESTURL) != "" && strings.TrimSpace(c.RESTToken) != "":
		return KindREST
	case strings.TrimSpace(c.RedisAddr) != "":
		return KindRedis
	default:
		return KindMemory
	}
}

// New builds the process-wide Store. A REST service wins when both its URL and token
// are set; otherwise Redis is used when an address is set; otherwise the in-process
// store. Missing remote configuration is not an error.
func New(cfg Config, log *zap.Logger) (Store, Kind) {
	if log == nil {
		log = zap.NewNop()
	}
	kind := cfg.Kind()
	switch kind {
	case KindREST:
		return NewREST(cfg.RESTURL, cfg.RESTToken, WithTimeout(cfg.Timeout), WithLogger(log)), kind
	case KindRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})
		return NewRedis(client, log), kind
	default:
		log.Warn("no remote key-value store configured; using in-process store (not shared across instances)")
		return NewMemory(), kind
	}
}
