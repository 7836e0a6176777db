package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Output store types.
const (
	StoreLocal    = "local"
	StoreFoundry  = "foundry"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
	StoreMongoDB  = "mongodb"
	StorePostgres = "postgres"
)

// Usage sink types.
const (
	SinkLog           = "log"
	SinkPrometheus    = "prometheus"
	SinkFoundryStream = "foundry-stream"
	SinkRabbitMQ      = "rabbitmq"
)

// DefaultInputPath is where the actor-style key-value store keeps its input record.
const DefaultInputPath = "storage/key_value_stores/default/INPUT.json"

// Config is the run configuration read from the environment.
type Config struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	RequestTimeout  time.Duration
	RateLimitRPS    float64

	InputPath string

	OutputStore string
	OutputKey   string

	UsageSinks []string
	UsageUnit  string

	// MetricsTextfile, when set, receives run metrics in Prometheus text format.
	MetricsTextfile string

	Local    LocalConfig
	Foundry  FoundryConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	MongoDB  MongoDBConfig
	Postgres PostgresConfig
	RabbitMQ RabbitMQConfig
}

type LocalConfig struct {
	Dir string
}

type FoundryConfig struct {
	OutputAlias string
	UsageAlias  string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

type DynamoDBConfig struct {
	Region   string
	Table    string
	Endpoint string
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
}

type PostgresConfig struct {
	DSN      string
	Table    string
	MaxConns int
}

type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// Load reads every setting, applying defaults, and validates the result.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		InputPath:       envString("INPUT_PATH", DefaultInputPath),
		OutputStore:     NormalizeStore(envString("OUTPUT_STORE", StoreLocal)),
		OutputKey:       envString("OUTPUT_KEY", "OUTPUT"),
		UsageSinks:      envList("USAGE_SINKS", []string{SinkLog}),
		UsageUnit:       envString("USAGE_UNIT_NAME", "ENRICHED_RECORDS"),
		MetricsTextfile: envString("METRICS_TEXTFILE", ""),
		Local: LocalConfig{
			Dir: envString("LOCAL_STORE_DIR", "storage/key_value_stores/default"),
		},
		Foundry: FoundryConfig{
			OutputAlias: envString("FOUNDRY_OUTPUT_ALIAS", "output"),
			UsageAlias:  envString("FOUNDRY_USAGE_ALIAS", "usage"),
		},
		Redis: RedisConfig{
			Addr:      envString("REDIS_ADDR", ""),
			Password:  envString("REDIS_PASSWORD", ""),
			KeyPrefix: envString("REDIS_KEY_PREFIX", "leads:kv:"),
		},
		DynamoDB: DynamoDBConfig{
			Region:   envString("AWS_REGION", "us-west-2"),
			Table:    envString("DYNAMODB_TABLE", "key_value_store"),
			Endpoint: envString("DYNAMODB_ENDPOINT", ""),
		},
		MongoDB: MongoDBConfig{
			URI:        envString("MONGODB_URI", ""),
			Database:   envString("MONGODB_DATABASE", "leads"),
			Collection: envString("MONGODB_COLLECTION", "key_value_store"),
		},
		Postgres: PostgresConfig{
			DSN:   envString("DATABASE_URL", ""),
			Table: envString("POSTGRES_TABLE", "key_value_store"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        envString("RABBITMQ_URL", ""),
			Exchange:   envString("RABBITMQ_EXCHANGE", "usage"),
			RoutingKey: envString("RABBITMQ_ROUTING_KEY", "usage.enriched_records"),
		},
	}

	var err error
	cfg.PollInterval, err = envDuration("POLL_INTERVAL", 10*time.Second)
	collect(err)
	cfg.PollMaxAttempts, err = envInt("POLL_MAX_ATTEMPTS", 60)
	collect(err)
	cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", 0)
	collect(err)
	cfg.Redis.DB, err = envInt("REDIS_DB", 0)
	collect(err)
	cfg.Redis.TTL, err = envDuration("REDIS_TTL", 0)
	collect(err)
	cfg.Postgres.MaxConns, err = envInt("DB_MAX_CONNS", 0)
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and that the selected backends have what they need.
func (c Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be > 0 (got %s)", c.PollInterval))
	}
	if c.PollMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("POLL_MAX_ATTEMPTS must be >= 1 (got %d)", c.PollMaxAttempts))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", c.RequestTimeout))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if strings.TrimSpace(c.OutputKey) == "" {
		errs = append(errs, fmt.Errorf("OUTPUT_KEY must not be empty"))
	}

	switch c.OutputStore {
	case StoreLocal, StoreFoundry:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR is required when OUTPUT_STORE=redis"))
		}
	case StoreDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, fmt.Errorf("DYNAMODB_TABLE is required when OUTPUT_STORE=dynamodb"))
		}
	case StoreMongoDB:
		if c.MongoDB.URI == "" {
			errs = append(errs, fmt.Errorf("MONGODB_URI is required when OUTPUT_STORE=mongodb"))
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when OUTPUT_STORE=postgres"))
		}
		if !validIdentifier(c.Postgres.Table) {
			errs = append(errs, fmt.Errorf("POSTGRES_TABLE %q is not a valid identifier", c.Postgres.Table))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported OUTPUT_STORE %q", c.OutputStore))
	}

	if len(c.UsageSinks) == 0 {
		errs = append(errs, fmt.Errorf("USAGE_SINKS must name at least one sink"))
	}
	var remote []string
	for _, s := range c.UsageSinks {
		if IsRemoteSink(s) {
			remote = append(remote, s)
		}
	}
	if len(remote) > 1 {
		errs = append(errs, fmt.Errorf("USAGE_SINKS may name at most one remote sink (got %s)", strings.Join(remote, ", ")))
	}
	for _, s := range c.UsageSinks {
		switch s {
		case SinkLog, SinkPrometheus, SinkFoundryStream:
		case SinkRabbitMQ:
			if c.RabbitMQ.URL == "" {
				errs = append(errs, fmt.Errorf("RABBITMQ_URL is required when USAGE_SINKS includes rabbitmq"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported usage sink %q", s))
		}
	}
	return errors.Join(errs...)
}

// NormalizeStore canonicalizes an OUTPUT_STORE value from env or flags.
func NormalizeStore(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsRemoteSink reports whether a usage sink charges an external system. A run may use at most one,
// so a failed charge never leaves another external system already charged.
func IsRemoteSink(sink string) bool {
	return sink == SinkFoundryStream || sink == SinkRabbitMQ
}

// NeedsFoundry reports whether Foundry credentials must be loaded.
func (c Config) NeedsFoundry() bool {
	if c.OutputStore == StoreFoundry {
		return true
	}
	for _, s := range c.UsageSinks {
		if s == SinkFoundryStream {
			return true
		}
	}
	return false
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
