package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	AdminAccount  string
	JWTSigningKey string
	DefaultFee    int

	PostgresURL  string
	Redis        RedisConfig
	KafkaBrokers []string
	AuditTopic   string
}

// RedisConfig holds connection settings for the record cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RecordTTL    time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("DATAMARKET_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	admin := os.Getenv("DATAMARKET_ADMIN_ACCOUNT")
	if admin == "" {
		// Deployer principal on the local devnet; override in production.
		admin = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	defaultFee := 5
	if raw := os.Getenv("DATAMARKET_DEFAULT_FEE"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			defaultFee = parsed
		}
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	auditTopic := os.Getenv("DATAMARKET_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "datamarket.registry.audit"
	}

	return Server{
		Addr:          addr,
		AdminAccount:  admin,
		JWTSigningKey: jwtSigningKey,
		DefaultFee:    defaultFee,
		PostgresURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			RecordTTL:    5 * time.Minute,
		},
		KafkaBrokers: brokers,
		AuditTopic:   auditTopic,
	}
}
