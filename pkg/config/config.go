package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds the complete configuration for every binary
type AppConfig struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	ServiceName string          `mapstructure:"service_name"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	MongoDB     MongoConfig     `mapstructure:"mongodb"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Cache       CacheConfig     `mapstructure:"cache"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Postgres    PostgresConfig  `mapstructure:"postgres"`
	Watcher     WatcherConfig   `mapstructure:"watcher"`
	Projector   ProjectorConfig `mapstructure:"projector"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig is optional; an empty Addr keeps the cache and limiter in process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type CacheConfig struct {
	EventTTL      time.Duration `mapstructure:"event_ttl"`
	ScheduleTTL   time.Duration `mapstructure:"schedule_ttl"`
	MatchTTL      time.Duration `mapstructure:"match_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	MaxRequests   int           `mapstructure:"max_requests"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type PostgresConfig struct {
	URI      string `mapstructure:"uri"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

type WatcherConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	CheckpointKey  string `mapstructure:"checkpoint_key"`
}

type ProjectorConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	WorkerCount   int           `mapstructure:"worker_count"`
}

// RedisEnabled reports whether shared Redis backends should be used
func (c *AppConfig) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// Load reads .env, the optional config file at path and the environment.
// service is the service name used when none is configured.
func Load(path, service string) (*AppConfig, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()

	if service != "" {
		v.SetDefault("service_name", service)
	}
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_addr", ":9090")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.request_timeout", 15*time.Second)
	v.SetDefault("mongodb.database", "tournament")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("redis.prefix", "standings")
	v.SetDefault("cache.event_ttl", 5*time.Minute)
	v.SetDefault("cache.schedule_ttl", 2*time.Minute)
	v.SetDefault("cache.match_ttl", 1*time.Minute)
	v.SetDefault("cache.sweep_interval", 1*time.Minute)
	v.SetDefault("ratelimit.window", 1*time.Minute)
	v.SetDefault("ratelimit.max_requests", 100)
	v.SetDefault("ratelimit.sweep_interval", 5*time.Minute)
	v.SetDefault("kafka.topic", "match-results")
	v.SetDefault("kafka.group_id", "standings-projector")
	v.SetDefault("postgres.max_conns", 20)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("watcher.checkpoint_path", "resume_token.bin")
	v.SetDefault("projector.batch_size", 50)
	v.SetDefault("projector.flush_interval", 500*time.Millisecond)
	v.SetDefault("projector.worker_count", 4)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Unmarshal only sees env values for keys viper already knows about
	for key, env := range map[string]string{
		"service_name":             "SERVICE_NAME",
		"environment":              "ENVIRONMENT",
		"log_level":                "LOG_LEVEL",
		"http.addr":                "HTTP_ADDR",
		"http.metrics_addr":        "HTTP_METRICS_ADDR",
		"http.allowed_origins":     "HTTP_ALLOWED_ORIGINS",
		"mongodb.uri":              "MONGODB_URI",
		"mongodb.database":         "MONGODB_DATABASE",
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"redis.db":                 "REDIS_DB",
		"redis.prefix":             "REDIS_PREFIX",
		"cache.event_ttl":          "CACHE_EVENT_TTL",
		"cache.schedule_ttl":       "CACHE_SCHEDULE_TTL",
		"cache.match_ttl":          "CACHE_MATCH_TTL",
		"cache.sweep_interval":     "CACHE_SWEEP_INTERVAL",
		"ratelimit.window":         "RATELIMIT_WINDOW",
		"ratelimit.max_requests":   "RATELIMIT_MAX_REQUESTS",
		"ratelimit.sweep_interval": "RATELIMIT_SWEEP_INTERVAL",
		"kafka.brokers":            "KAFKA_BROKERS",
		"kafka.topic":              "KAFKA_TOPIC",
		"kafka.group_id":           "KAFKA_GROUP_ID",
		"postgres.uri":             "POSTGRES_URI",
		"postgres.max_conns":       "POSTGRES_MAX_CONNS",
		"postgres.min_conns":       "POSTGRES_MIN_CONNS",
		"watcher.checkpoint_path":  "WATCHER_CHECKPOINT_PATH",
		"watcher.checkpoint_key":   "WATCHER_CHECKPOINT_KEY",
		"projector.batch_size":     "PROJECTOR_BATCH_SIZE",
		"projector.flush_interval": "PROJECTOR_FLUSH_INTERVAL",
		"projector.worker_count":   "PROJECTOR_WORKER_COUNT",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// comma separated lists arrive from the environment as a single string
	config.Kafka.Brokers = splitList(config.Kafka.Brokers)
	config.HTTP.AllowedOrigins = splitList(config.HTTP.AllowedOrigins)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings every binary depends on
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.MongoDB.URI == "" {
		return errors.New("mongodb.uri is required")
	}
	if c.MongoDB.Database == "" {
		return errors.New("mongodb.database is required")
	}
	if c.Cache.EventTTL <= 0 || c.Cache.ScheduleTTL <= 0 || c.Cache.MatchTTL <= 0 {
		return errors.New("cache ttls must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("ratelimit.window must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("ratelimit.max_requests must be positive")
	}
	if c.Cache.SweepInterval <= 0 || c.RateLimit.SweepInterval <= 0 {
		return errors.New("cache.sweep_interval and ratelimit.sweep_interval must be positive")
	}
	return nil
}

// RequireKafka checks the settings of binaries that talk to Kafka
func (c *AppConfig) RequireKafka() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	return nil
}

// RequirePostgres checks the settings of the snapshot projector
func (c *AppConfig) RequirePostgres() error {
	if c.Postgres.URI == "" {
		return errors.New("postgres.uri is required")
	}
	if c.Projector.WorkerCount <= 0 || c.Projector.BatchSize <= 0 {
		return errors.New("projector.worker_count and projector.batch_size must be positive")
	}
	return nil
}
