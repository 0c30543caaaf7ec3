package config

import (
	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/tracing"
)

type AppConfig struct {
	RestHost string `env:"REST_HOST" envDefault:"0.0.0.0"`
	RestPort string `env:"REST_PORT" envDefault:"12222"`
	APIKey   string `env:"MAILSTACK_API_KEY,required"`

	RequestTimeoutSeconds int `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	ConnectTimeoutSeconds int `env:"CONNECT_TIMEOUT_SECONDS" envDefault:"10"`

	Logger  *logger.Config
	Tracing *tracing.JaegerConfig
}

// CacheConfig points at the single SQLite cache file (§4.3) and its
// derived sibling paths (accounts config, attachments, sync lock).
type CacheConfig struct {
	DatabaseURL    string `env:"CACHE_DATABASE_URL" envDefault:"data/email_cache.db"`
	DataDir        string `env:"MAILSTACK_DATA_DIR" envDefault:"data"`
	AccountsFile   string `env:"ACCOUNTS_CONFIG_FILE" envDefault:"data/accounts.json"`
	AttachmentsDir string `env:"ATTACHMENTS_DIR" envDefault:"data/attachments"`
	SyncLockFile   string `env:"SYNC_LOCK_FILE" envDefault:"data/.sync.lock"`
}

// SecurityConfig holds the process-wide credential encryption key. Missing
// key disables encryption with a warning, per §6.
type SecurityConfig struct {
	EncryptionMasterKey string `env:"ENCRYPTION_MASTER_KEY"`
}

// PoolConfig configures the per-account IMAP connection pool (§4.2).
type PoolConfig struct {
	MaxPerAccount       int `env:"IMAP_POOL_MAX_PER_ACCOUNT" envDefault:"8"`
	AcquireTimeoutSecs  int `env:"IMAP_POOL_ACQUIRE_TIMEOUT_SECONDS" envDefault:"10"`
	IdleTimeoutSeconds  int `env:"IMAP_POOL_IDLE_TIMEOUT_SECONDS" envDefault:"300"`
	ScrubIntervalSecs   int `env:"IMAP_POOL_SCRUB_INTERVAL_SECONDS" envDefault:"60"`
}

// RateLimitConfig mirrors the Rust original's rate_limit.rs env surface.
type RateLimitConfig struct {
	PerIPPerMinute int    `env:"RATE_LIMIT_PER_IP_MINUTE" envDefault:"60"`
	PerIPPerHour   int    `env:"RATE_LIMIT_PER_IP_HOUR" envDefault:"1000"`
	WhitelistIPs   string `env:"RATE_LIMIT_WHITELIST_IPS"`
}

// OutboxConfig configures the outbox worker polling interval (§4.6).
type OutboxConfig struct {
	WorkerIntervalSeconds int `env:"OUTBOX_WORKER_INTERVAL_SECONDS" envDefault:"5"`
	MaxRetries            int `env:"OUTBOX_MAX_RETRIES" envDefault:"5"`
}

// SyncConfig tunes the per-folder sync algorithm (§4.5). FetchBatchSize
// generalizes the teacher's INITIAL_SYNC_BATCH_SIZE=50 to the spec's 100;
// InitialSyncMaxTotal mirrors the teacher's INITIAL_SYNC_MAX_TOTAL cap.
type SyncConfig struct {
	FetchBatchSize      int `env:"SYNC_FETCH_BATCH_SIZE" envDefault:"100"`
	InitialSyncMaxTotal int `env:"SYNC_INITIAL_MAX_TOTAL" envDefault:"50000"`
	BatchPauseMillis    int `env:"SYNC_BATCH_PAUSE_MILLIS" envDefault:"100"`
	PollIntervalSeconds int `env:"SYNC_POLL_INTERVAL_SECONDS" envDefault:"30"`
}

// JobsConfig tunes the Background Job Store's restart reconciliation and
// terminal-job reaping (§4.11).
type JobsConfig struct {
	ReapAfterDays   int `env:"JOBS_REAP_AFTER_DAYS" envDefault:"30"`
	ReapIntervalMin int `env:"JOBS_REAP_INTERVAL_MINUTES" envDefault:"60"`
}

// MCPConfig configures the MCP stdio proxy's upstream HTTP backend.
type MCPConfig struct {
	BackendURL     string `env:"MCP_BACKEND_URL" envDefault:"http://127.0.0.1:12222"`
	TimeoutSeconds int    `env:"MCP_TIMEOUT" envDefault:"30"`
	SessionIdleTimeoutSeconds int `env:"MCP_SESSION_IDLE_TIMEOUT_SECONDS" envDefault:"1800"`
}

// DefaultIMAPConfig seeds the initial account when IMAP_* env vars are
// present, matching the source's single-account bootstrap path.
type DefaultIMAPConfig struct {
	Host string `env:"IMAP_HOST"`
	Port int    `env:"IMAP_PORT" envDefault:"993"`
	User string `env:"IMAP_USER"`
	Pass string `env:"IMAP_PASS"`
}
