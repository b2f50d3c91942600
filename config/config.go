package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Elastic  ElasticsearchConfig
	Replen   ReplenConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

// StorageConfig selects the backing store. "memory" keeps everything in-process
// and is only meant for local runs and demos.
type StorageConfig struct {
	Driver      string
	AutoMigrate bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers        []string
	WarehouseTopic string
	EventsTopic    string
	GroupID        string
}

type ElasticsearchConfig struct {
	Addresses  []string
	Username   string
	Password   string
	AuditIndex string
}

type ReplenConfig struct {
	ScanInterval         time.Duration
	GenerateInterval     time.Duration
	WarehouseIDs         []int64
	DefaultMode          string
	InlineMaxUnits       int
	VelocityLookbackDays int
	LockTTL              time.Duration
	SettingsCacheTTL     time.Duration
	EventQueueSize       int
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			GRPCPort: getEnv("GRPC_PORT", ":8083"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Storage: StorageConfig{
			Driver:      getEnv("STORAGE_DRIVER", "postgres"),
			AutoMigrate: getEnvBool("STORAGE_AUTO_MIGRATE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_warehouse"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			WarehouseTopic: getEnv("KAFKA_TOPIC_WAREHOUSE", "warehouse.events"),
			EventsTopic:    getEnv("KAFKA_TOPIC_EVENTS", "inventory.events"),
			GroupID:        getEnv("KAFKA_GROUP_REPLENISHMENT", "replenishment"),
		},
		Elastic: ElasticsearchConfig{
			Addresses:  getEnvSlice("ELASTICSEARCH_ADDRESSES", []string{"http://localhost:9200"}),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "inventory-transactions"),
		},
		Replen: ReplenConfig{
			ScanInterval:         getEnvDuration("REPLEN_SCAN_INTERVAL", 5*time.Minute),
			GenerateInterval:     getEnvDuration("REPLEN_GENERATE_INTERVAL", time.Hour),
			WarehouseIDs:         getEnvInt64Slice("REPLEN_WAREHOUSE_IDS", nil),
			DefaultMode:          getEnv("REPLEN_DEFAULT_MODE", "hybrid"),
			InlineMaxUnits:       getEnvInt("REPLEN_INLINE_MAX_UNITS", 50),
			VelocityLookbackDays: getEnvInt("REPLEN_VELOCITY_LOOKBACK_DAYS", 14),
			LockTTL:              getEnvDuration("REPLEN_LOCK_TTL", 2*time.Minute),
			SettingsCacheTTL:     getEnvDuration("REPLEN_SETTINGS_CACHE_TTL", time.Minute),
			EventQueueSize:       getEnvInt("REPLEN_EVENT_QUEUE_SIZE", 1024),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvInt64Slice skips entries that are not valid integers.
func getEnvInt64Slice(key string, fallback []int64) []int64 {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []int64
	for _, part := range strings.Split(value, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
