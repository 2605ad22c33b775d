// Package config loads process configuration from the environment, with an
// optional YAML overlay for the compilation-identifier grammar and a few
// other policy knobs that are more comfortably expressed as a small file
// than as one more env var.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration surface. CLI flags in cmd/
// override individual fields after Load returns.
type Config struct {
	// DatabaseURL is the canonical Postgres DSN. See firstNonEmpty below for
	// the legacy-name fallback chain this resolves (Open Question a).
	DatabaseURL string

	PipelineVersion string
	SchemaVersion   string
	AgencyRef       string
	HeartbeatPath   string

	UseNormalizedTextForLLM    bool
	HardValidateMode           string // off | report | enforce
	EnableDeterministicSignals bool
	UseDeterministicTime       bool
	EnablePostalCodeEstimated  bool

	Extraction  ExtractionConfig
	Recovery    RecoveryConfig
	Circuit     CircuitConfig
	Compilation CompilationConfig

	EnableBroadcast bool
	EnableDMs       bool

	Oneshot bool
	MaxJobs int

	LLM      LLMConfig
	Geocoder GeocoderConfig
	Source   SourceConfig

	EnableKafkaFanout        bool
	KafkaBrokers             []string
	KafkaFanoutTopic         string
	EnableGeocoderRedisCache bool
	ChannelCacheBackend      string // memory | redis
	RedisAddr                string

	RawArchiveS3Bucket string
	AWSRegion          string
	S3                 S3Config

	ClickHouseMetricsDSN string

	LogLevel string
	LogPath  string
}

// ExtractionConfig configures the Extraction Worker's claim/retry loop.
type ExtractionConfig struct {
	ClaimBatchSize         int
	IdleSleepSeconds       float64
	MaxAttempts            int
	BackoffBaseSeconds     float64
	BackoffMaxSeconds      float64
	StaleProcessingSeconds int
}

// RecoveryConfig configures the catchup loop (§4.9).
type RecoveryConfig struct {
	TargetLagMinutes   int
	OverlapMinutes     int
	ChunkHours         int
	QueueLowWatermark  int
	MaxAttempts        int
	BaseBackoffSeconds float64
}

// CircuitConfig configures the LLM Extractor's circuit breaker.
type CircuitConfig struct {
	FailureThreshold int
	TimeoutSeconds   int
}

// CompilationConfig configures compilation detection thresholds and the
// identifier grammar (Open Question c).
type CompilationConfig struct {
	CodeHits          int
	LabelHits         int
	PostalHits        int
	URLHits           int
	BlockCount        int
	IdentifierPattern string
}

// LLMConfig configures the extractor's HTTP client.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	TimeoutSecs int
}

// GeocoderConfig configures the optional postal-code-estimation fallback.
type GeocoderConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
}

// SourceConfig configures the source channel client.
type SourceConfig struct {
	APIID       int
	APIHash     string
	SessionPath string
	PhoneNumber string
}

// S3Config configures the raw-message archive's object storage backend,
// mirroring objectstore.NewS3Store's field surface.
type S3Config struct {
	Bucket                string
	Region                string
	Prefix                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// S3SSEConfig configures server-side encryption for archived objects.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

func parseInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads Config from the environment, applies defaults, loads the
// optional YAML overlay, and validates required fields.
func Load() (Config, error) {
	var c Config

	// Open Question (a): DATABASE_URL is canonical; the three legacy
	// Supabase-style names are accepted in this order for deployments
	// carried over from the original system.
	c.DatabaseURL = firstNonEmpty(
		getenv("DATABASE_URL"),
		getenv("SUPABASE_URL_HOST"),
		getenv("SUPABASE_URL_DOCKER"),
		getenv("SUPABASE_URL"),
	)

	c.PipelineVersion = firstNonEmpty(getenv("EXTRACTION_PIPELINE_VERSION"), "2026-01-02_det_time_v1")
	c.SchemaVersion = firstNonEmpty(getenv("SCHEMA_VERSION"), "v1")
	c.AgencyRef = getenv("AGENCY_REF")
	c.HeartbeatPath = firstNonEmpty(getenv("HEARTBEAT_PATH"), "/tmp/tutordex-collector.heartbeat")

	c.UseNormalizedTextForLLM = truthy(getenv("USE_NORMALIZED_TEXT_FOR_LLM"))
	c.HardValidateMode = firstNonEmpty(getenv("HARD_VALIDATE_MODE"), "report")
	c.EnableDeterministicSignals = envBoolDefault("ENABLE_DETERMINISTIC_SIGNALS", true)
	c.UseDeterministicTime = envBoolDefault("USE_DETERMINISTIC_TIME", true)
	c.EnablePostalCodeEstimated = envBoolDefault("ENABLE_POSTAL_CODE_ESTIMATED", true)

	c.Extraction = ExtractionConfig{
		ClaimBatchSize:         parseInt(getenv("EXTRACTION_CLAIM_BATCH_SIZE"), 10),
		IdleSleepSeconds:       parseFloat(getenv("EXTRACTION_IDLE_SLEEP_SECONDS"), 2.0),
		MaxAttempts:            parseInt(getenv("EXTRACTION_MAX_ATTEMPTS"), 3),
		BackoffBaseSeconds:     parseFloat(getenv("EXTRACTION_BACKOFF_BASE_SECONDS"), 1.5),
		BackoffMaxSeconds:      parseFloat(getenv("EXTRACTION_BACKOFF_MAX_SECONDS"), 60.0),
		StaleProcessingSeconds: parseInt(getenv("EXTRACTION_STALE_PROCESSING_SECONDS"), 900),
	}

	c.Recovery = RecoveryConfig{
		TargetLagMinutes:   parseInt(getenv("RECOVERY_TARGET_LAG_MINUTES"), 15),
		OverlapMinutes:     parseInt(getenv("RECOVERY_OVERLAP_MINUTES"), 5),
		ChunkHours:         parseInt(getenv("RECOVERY_CHUNK_HOURS"), 6),
		QueueLowWatermark:  parseInt(getenv("RECOVERY_QUEUE_LOW_WATERMARK"), 500),
		MaxAttempts:        parseInt(getenv("RECOVERY_MAX_ATTEMPTS"), 5),
		BaseBackoffSeconds: parseFloat(getenv("RECOVERY_BASE_BACKOFF_SECONDS"), 2.0),
	}

	c.Circuit = CircuitConfig{
		FailureThreshold: parseInt(getenv("CIRCUIT_FAILURE_THRESHOLD"), 5),
		TimeoutSeconds:   parseInt(getenv("CIRCUIT_TIMEOUT_SECONDS"), 60),
	}

	c.Compilation = CompilationConfig{
		CodeHits:          parseInt(getenv("COMPILATION_CODE_HITS"), 3),
		LabelHits:         parseInt(getenv("COMPILATION_LABEL_HITS"), 3),
		PostalHits:        parseInt(getenv("COMPILATION_POSTAL_HITS"), 2),
		URLHits:           parseInt(getenv("COMPILATION_URL_HITS"), 2),
		BlockCount:        parseInt(getenv("COMPILATION_BLOCK_COUNT"), 2),
		IdentifierPattern: firstNonEmpty(getenv("COMPILATION_IDENTIFIER_PATTERN"), `^[A-Za-z]{1,4}\d{3,8}[A-Za-z]?$`),
	}

	c.EnableBroadcast = envBoolDefault("ENABLE_BROADCAST", true)
	c.EnableDMs = envBoolDefault("ENABLE_DMS", true)

	c.Oneshot = truthy(getenv("EXTRACTION_WORKER_ONESHOT"))
	c.MaxJobs = parseInt(getenv("EXTRACTION_WORKER_MAX_JOBS"), 0)
	if c.MaxJobs < 0 {
		c.MaxJobs = 0
	}

	c.LLM = LLMConfig{
		BaseURL:     firstNonEmpty(getenv("LLM_BASE_URL"), "https://api.openai.com/v1"),
		APIKey:      getenv("LLM_API_KEY"),
		Model:       firstNonEmpty(getenv("LLM_MODEL"), "gpt-4o-mini"),
		MaxTokens:   parseInt(getenv("LLM_MAX_TOKENS"), 2048),
		TimeoutSecs: parseInt(getenv("LLM_TIMEOUT_SECONDS"), 30),
	}

	c.Geocoder = GeocoderConfig{
		Enabled: envBoolDefault("ENABLE_POSTAL_CODE_ESTIMATED", true),
		BaseURL: getenv("GEOCODER_BASE_URL"),
		APIKey:  getenv("GEOCODER_API_KEY"),
	}

	c.Source = SourceConfig{
		APIID:       parseInt(getenv("SOURCE_API_ID"), 0),
		APIHash:     getenv("SOURCE_API_HASH"),
		SessionPath: firstNonEmpty(getenv("SOURCE_SESSION_PATH"), "./session.json"),
		PhoneNumber: getenv("SOURCE_PHONE_NUMBER"),
	}

	c.EnableKafkaFanout = truthy(getenv("ENABLE_KAFKA_FANOUT"))
	c.KafkaBrokers = parseList(getenv("KAFKA_BROKERS"))
	c.KafkaFanoutTopic = firstNonEmpty(getenv("KAFKA_FANOUT_TOPIC"), "tutordex.assignments")
	c.EnableGeocoderRedisCache = truthy(getenv("ENABLE_GEOCODER_REDIS_CACHE"))
	c.ChannelCacheBackend = firstNonEmpty(getenv("CHANNEL_CACHE_BACKEND"), "memory")
	c.RedisAddr = firstNonEmpty(getenv("REDIS_ADDR"), "localhost:6379")

	c.RawArchiveS3Bucket = getenv("RAW_ARCHIVE_S3_BUCKET")
	c.AWSRegion = firstNonEmpty(getenv("AWS_REGION"), "us-east-1")
	c.S3 = S3Config{
		Bucket:                c.RawArchiveS3Bucket,
		Region:                c.AWSRegion,
		Prefix:                firstNonEmpty(getenv("RAW_ARCHIVE_S3_PREFIX"), "raw"),
		Endpoint:              getenv("RAW_ARCHIVE_S3_ENDPOINT"),
		AccessKey:             getenv("AWS_ACCESS_KEY_ID"),
		SecretKey:             getenv("AWS_SECRET_ACCESS_KEY"),
		UsePathStyle:          truthy(getenv("RAW_ARCHIVE_S3_PATH_STYLE")),
		TLSInsecureSkipVerify: truthy(getenv("RAW_ARCHIVE_S3_TLS_INSECURE_SKIP_VERIFY")),
		SSE: S3SSEConfig{
			Mode:     getenv("RAW_ARCHIVE_S3_SSE_MODE"),
			KMSKeyID: getenv("RAW_ARCHIVE_S3_SSE_KMS_KEY_ID"),
		},
	}

	c.ClickHouseMetricsDSN = getenv("EXTRACTION_METRICS_CLICKHOUSE_DSN")

	c.LogLevel = firstNonEmpty(getenv("LOG_LEVEL"), "info")
	c.LogPath = getenv("LOG_PATH")

	if err := c.loadOverlay(); err != nil {
		return c, err
	}

	return c, c.validate()
}

func envBoolDefault(key string, def bool) bool {
	v := getenv(key)
	if v == "" {
		return def
	}
	return truthy(v)
}

// overlayFile is an optional YAML file that can override the compilation
// identifier grammar and circuit breaker thresholds without redeploying env
// vars. It is entirely optional; absence is not an error.
type overlayFile struct {
	Compilation *struct {
		IdentifierPattern string `yaml:"identifier_pattern"`
	} `yaml:"compilation"`
	Circuit *struct {
		FailureThreshold int `yaml:"failure_threshold"`
		TimeoutSeconds   int `yaml:"timeout_seconds"`
	} `yaml:"circuit"`
}

func (c *Config) loadOverlay() error {
	if truthy(getenv("DISABLE_CONFIG_OVERLAY")) {
		return nil
	}
	path := firstNonEmpty(getenv("CONFIG_OVERLAY_PATH"), "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config overlay %q: %w", path, err)
	}
	var ov overlayFile
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("parse config overlay %q: %w", path, err)
	}
	if ov.Compilation != nil && ov.Compilation.IdentifierPattern != "" {
		c.Compilation.IdentifierPattern = ov.Compilation.IdentifierPattern
	}
	if ov.Circuit != nil {
		if ov.Circuit.FailureThreshold > 0 {
			c.Circuit.FailureThreshold = ov.Circuit.FailureThreshold
		}
		if ov.Circuit.TimeoutSeconds > 0 {
			c.Circuit.TimeoutSeconds = ov.Circuit.TimeoutSeconds
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL (or a legacy SUPABASE_URL* variant) is required")
	}
	switch c.HardValidateMode {
	case "off", "report", "enforce":
	default:
		return fmt.Errorf("config: HARD_VALIDATE_MODE must be one of off|report|enforce, got %q", c.HardValidateMode)
	}
	if c.Extraction.ClaimBatchSize <= 0 {
		return fmt.Errorf("config: EXTRACTION_CLAIM_BATCH_SIZE must be positive")
	}
	return nil
}

// IdleSleep returns the extraction worker's idle sleep as a time.Duration.
func (c Config) IdleSleep() time.Duration {
	return time.Duration(c.Extraction.IdleSleepSeconds * float64(time.Second))
}

// StaleThreshold returns the processing-row staleness threshold.
func (c Config) StaleThreshold() time.Duration {
	return time.Duration(c.Extraction.StaleProcessingSeconds) * time.Second
}
