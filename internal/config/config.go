package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Service holds process-level settings shared by the API and the worker.
type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	SecretKey   string `envconfig:"SERVICE_SECRET_KEY" required:"true"`
}

// Redis configures the queue/broadcast substrate.
type Redis struct {
	Addr          string `envconfig:"REDIS_ADDR" required:"true"`
	Password      string `envconfig:"REDIS_PASSWORD" default:""`
	DB            int    `envconfig:"REDIS_DB" default:"0"`
	StreamKey     string `envconfig:"REDIS_STREAM_KEY" default:"events:ingest"`
	ConsumerGroup string `envconfig:"REDIS_CONSUMER_GROUP" default:"event_workers"`
	StreamMaxLen  int64  `envconfig:"REDIS_STREAM_MAX_LEN" default:"1000000"`
}

// ClickHouse configures the system of record.
type ClickHouse struct {
	Host            string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port            string `envconfig:"CLICKHOUSE_PORT" required:"true"`
	Database        string `envconfig:"CLICKHOUSE_DB" required:"true"`
	User            string `envconfig:"CLICKHOUSE_USER" default:""`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	UseTLS          bool   `envconfig:"CLICKHOUSE_USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`
}

// Consumer configures the batch persister.
type Consumer struct {
	BatchSizeMax         int64  `envconfig:"CONSUMER_BATCH_SIZE_MAX" default:"200"`
	BatchTimeoutSec      int    `envconfig:"CONSUMER_BATCH_TIMEOUT_SEC" default:"10"`
	ClaimBlockMs         int    `envconfig:"CONSUMER_CLAIM_BLOCK_MS" default:"2000"`
	VisibilityTimeoutSec int    `envconfig:"CONSUMER_VISIBILITY_TIMEOUT_SEC" default:"30"`
	HealthCheckPort      string `envconfig:"CONSUMER_HEALTH_CHECK_PORT" default:"8081"`
}

// Aggregator configures the hourly rollup job.
type Aggregator struct {
	IntervalSec int `envconfig:"AGGREGATOR_INTERVAL_SEC" default:"60"`
}

// Auth holds the static credential material this service consumes. Key and
// token issuance live in the surrounding application, not here.
type Auth struct {
	// IngestKeys is a comma-separated list of apikey:project_id pairs.
	IngestKeys     string `envconfig:"AUTH_INGEST_KEYS" required:"true"`
	DashboardToken string `envconfig:"AUTH_DASHBOARD_TOKEN" required:"true"`
}

type Config struct {
	Service    Service
	Redis      Redis
	ClickHouse ClickHouse
	Consumer   Consumer
	Aggregator Aggregator
	Auth       Auth
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

// IngestKeyMap parses the apikey:project_id pairs into a lookup table.
func (a Auth) IngestKeyMap() (map[string]int64, error) {
	keys := make(map[string]int64)
	for _, pair := range strings.Split(a.IngestKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, idStr, ok := strings.Cut(pair, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed ingest key entry %q", pair)
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed project id in ingest key entry %q: %w", pair, err)
		}
		keys[key] = id
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no ingest keys configured")
	}
	return keys, nil
}
