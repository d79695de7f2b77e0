// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	LockRedis     = "redis"
	LockZookeeper = "zookeeper"
	LockLocal     = "local"

	EventsKafka  = "kafka"
	EventsInline = "inline"
	EventsNone   = "none"
)

type Config struct {
	ServiceName     string        `yaml:"service_name"`
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	AdminToken      string        `yaml:"admin_token"`

	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Lock    LockConfig    `yaml:"lock"`
	Retry   RetryConfig   `yaml:"retry"`
	Events  EventsConfig  `yaml:"events"`
	Tracing TracingConfig `yaml:"tracing"`
}

type StorageConfig struct {
	Backend      string        `yaml:"backend"`
	MySQLDSN     string        `yaml:"mysql_dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
	AutoMigrate  bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"pool_size"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type LockConfig struct {
	Backend          string        `yaml:"backend"`
	Wait             time.Duration `yaml:"wait"`
	Lease            time.Duration `yaml:"lease"`
	ZKServers        []string      `yaml:"zk_servers"`
	ZKSessionTimeout time.Duration `yaml:"zk_session_timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type EventsConfig struct {
	Backend        string        `yaml:"backend"`
	KafkaBrokers   []string      `yaml:"kafka_brokers"`
	KafkaTopic     string        `yaml:"kafka_topic"`
	KafkaGroupID   string        `yaml:"kafka_group_id"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	SyncBatchSize  int           `yaml:"sync_batch_size"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func Default() Config {
	return Config{
		ServiceName:     "inventory-control",
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		Storage: StorageConfig{
			Backend:      StorageMySQL,
			MySQLDSN:     "root:root@tcp(localhost:3306)/inventory?parseTime=true",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
			ConnLifetime: 5 * time.Minute,
			AutoMigrate:  true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       100,
			IdempotencyTTL: 24 * time.Hour,
		},
		Lock: LockConfig{
			Backend:          LockRedis,
			Wait:             3 * time.Second,
			Lease:            10 * time.Second,
			ZKServers:        []string{"localhost:2181"},
			ZKSessionTimeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     5 * time.Millisecond,
		},
		Events: EventsConfig{
			Backend:        EventsInline,
			KafkaBrokers:   []string{"localhost:9092"},
			KafkaTopic:     "inventory.stock-changed",
			KafkaGroupID:   "inventory-counter-sync",
			ResyncInterval: 5 * time.Minute,
			SyncBatchSize:  500,
		},
		Tracing: TracingConfig{
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// Load starts from Default, applies CONFIG_FILE if set, then the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = getEnv("GRPC_ADDR", cfg.GRPCAddr)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.MySQLDSN = getEnv("MYSQL_DSN", cfg.Storage.MySQLDSN)
	cfg.Storage.MaxOpenConns = getInt("MYSQL_MAX_OPEN_CONNS", cfg.Storage.MaxOpenConns)
	cfg.Storage.MaxIdleConns = getInt("MYSQL_MAX_IDLE_CONNS", cfg.Storage.MaxIdleConns)
	cfg.Storage.AutoMigrate = getBool("AUTO_MIGRATE", cfg.Storage.AutoMigrate)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.IdempotencyTTL = getDuration("IDEMPOTENCY_TTL", cfg.Redis.IdempotencyTTL)

	cfg.Lock.Backend = getEnv("LOCK_BACKEND", cfg.Lock.Backend)
	cfg.Lock.Wait = getDuration("LOCK_WAIT", cfg.Lock.Wait)
	cfg.Lock.Lease = getDuration("LOCK_LEASE", cfg.Lock.Lease)
	cfg.Lock.ZKServers = getList("ZK_SERVERS", cfg.Lock.ZKServers)
	cfg.Lock.ZKSessionTimeout = getDuration("ZK_SESSION_TIMEOUT", cfg.Lock.ZKSessionTimeout)

	cfg.Retry.MaxAttempts = getInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.Backoff = getDuration("RETRY_BACKOFF", cfg.Retry.Backoff)

	cfg.Events.Backend = getEnv("EVENTS_BACKEND", cfg.Events.Backend)
	cfg.Events.KafkaBrokers = getList("KAFKA_BROKERS", cfg.Events.KafkaBrokers)
	cfg.Events.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Events.KafkaTopic)
	cfg.Events.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.Events.KafkaGroupID)
	cfg.Events.ResyncInterval = getDuration("COUNTER_RESYNC_INTERVAL", cfg.Events.ResyncInterval)

	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
}

func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageMySQL, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Lock.Backend {
	case LockRedis, LockLocal:
	case LockZookeeper:
		if len(c.Lock.ZKServers) == 0 {
			errs = append(errs, errors.New("zookeeper lock requires zk_servers"))
		}
		if c.Lock.Lease < c.Lock.ZKSessionTimeout {
			errs = append(errs, errors.New("lock lease must not be shorter than zk_session_timeout"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock backend %q", c.Lock.Backend))
	}
	switch c.Events.Backend {
	case EventsInline, EventsNone:
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka events require brokers and topic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events backend %q", c.Events.Backend))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max_attempts must be positive"))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("retry backoff must not be negative"))
	}
	if c.Lock.Wait <= 0 || c.Lock.Lease <= 0 {
		errs = append(errs, errors.New("lock wait and lease must be positive"))
	}
	if c.Storage.Backend == StorageMySQL && c.Storage.MySQLDSN == "" {
		errs = append(errs, errors.New("mysql storage requires a dsn"))
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getDuration accepts Go duration strings ("250ms", "3s").
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
