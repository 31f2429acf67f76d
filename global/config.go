package global

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig is the environment-driven configuration for one gateway node.
// Every duration default mirrors the protocol defaults the clients assume.
type AppConfig struct {
	Port   int    `envconfig:"PORT" default:"8080"`
	WSPath string `envconfig:"WS_PATH" default:"/ws"`

	// NodeID names this gateway in the session registry and on the bridge.
	NodeID        string `envconfig:"NODE_ID" default:"gateway-1"`
	SnowflakeNode int64  `envconfig:"SNOWFLAKE_NODE" default:"1"`

	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatTimeout  time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"60s"`
	MaxPayloadSize    int64         `envconfig:"MAX_PAYLOAD_SIZE" default:"1048576"`

	// PresenceTTL is the staleness threshold: presence rows with an older
	// last_seen_at are treated as offline at read time.
	PresenceTTL  time.Duration `envconfig:"PRESENCE_TTL" default:"5m"`
	HistoryLimit int           `envconfig:"HISTORY_LIMIT" default:"100"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"2m"`

	// NatsURL enables the cross-node broadcast bridge; empty keeps the
	// node in single-process fan-out mode.
	NatsURL string `envconfig:"NATS_URL"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	FanoutWorkers int `envconfig:"FANOUT_WORKERS" default:"8"`
	FanoutQueue   int `envconfig:"FANOUT_QUEUE" default:"1024"`
	SendQueueSize int `envconfig:"SEND_QUEUE_SIZE" default:"256"`
}

func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("pulse", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
