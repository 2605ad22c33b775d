package main

import (
	"context"
	"fmt"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/tutordex/core/internal/archive"
	"github.com/tutordex/core/internal/cache"
	"github.com/tutordex/core/internal/collector"
	"github.com/tutordex/core/internal/config"
	"github.com/tutordex/core/internal/enrich"
	"github.com/tutordex/core/internal/fanout"
	"github.com/tutordex/core/internal/filters"
	"github.com/tutordex/core/internal/geocode"
	"github.com/tutordex/core/internal/llmextract"
	"github.com/tutordex/core/internal/metrics"
	"github.com/tutordex/core/internal/observability"
	"github.com/tutordex/core/internal/persist"
	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/rawstore"
	"github.com/tutordex/core/internal/recovery"
	"github.com/tutordex/core/internal/source"
	"github.com/tutordex/core/internal/worker"

	"github.com/gotd/td/session"
)

// loadEnv loads config and sets up logging. Every subcommand calls this
// first, before building its own slice of the dependency graph.
func loadEnv() (config.Config, context.Context, context.CancelFunc, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("%w: load config: %w", errUsage, err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = observability.WithPipelineVersion(ctx, cfg.PipelineVersion)
	return cfg, ctx, cancel, nil
}

// openRawStore resolves the Raw Store (Postgres, falling back to JSONL when
// DatabaseURL is empty) per rawstore.New's own backend-switch convention.
func openRawStore(ctx context.Context, cfg config.Config) (rawstore.Store, func(), error) {
	return rawstore.New(ctx, cfg.DatabaseURL, "raw_messages.jsonl")
}

// openPool opens the shared pgxpool.Pool the Work Queue and Persister sit
// on top of. Unlike the Raw Store, the queue has no JSONL fallback: a
// Postgres DSN is required for collector enqueue/worker/reprocess-recent.
func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is required for this command (the work queue has no JSONL fallback)", errUsage)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// buildSourceClient builds the production gotd/td source client from
// config.SourceConfig. Session material is persisted to SourceConfig.SessionPath
// via gotd/td's own file-backed session.Storage.
func buildSourceClient(cfg config.Config) source.Client {
	return source.NewGotdClient(source.GotdConfig{
		AppID:          cfg.Source.APIID,
		AppHash:        cfg.Source.APIHash,
		SessionStorage: &session.FileStorage{Path: cfg.Source.SessionPath},
		MaxFloodWait:   5 * time.Minute,
	})
}

// buildGeocoder wires the postal-code estimation fallback: an HTTP client
// over config.Geocoder, optionally wrapped in a Redis cache-aside layer when
// EnableGeocoderRedisCache is set. Returns nil when the geocoder is disabled,
// matching enrich.FillPostalCodes' documented nil-safe contract.
func buildGeocoder(ctx context.Context, cfg config.Config) (enrich.Geocoder, error) {
	if !cfg.Geocoder.Enabled {
		return nil, nil
	}
	var g enrich.Geocoder = geocode.New(cfg.Geocoder)
	if cfg.EnableGeocoderRedisCache {
		cached, err := cache.NewRedisGeocoderCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr}, g, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("init redis geocoder cache: %w", err)
		}
		g = cached
	}
	return g, nil
}

// buildArchiver wires the durable raw-payload archive to S3 when a bucket is
// configured; otherwise returns nil (archiving is a best-effort add-on, not
// load-bearing for the rest of the pipeline).
func buildArchiver(ctx context.Context, cfg config.Config) (archive.Archiver, error) {
	if cfg.S3.Bucket == "" {
		return nil, nil
	}
	a, err := archive.NewS3FromConfig(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("init s3 archiver: %w", err)
	}
	return a, nil
}

// buildMetricsSink wires the ClickHouse job-outcome sink when a DSN is
// configured. NewClickHouseSink itself returns a nil *ClickHouseSink (not an
// error) for an empty DSN; metrics.NoopSink{} covers that case uniformly so
// callers never have to nil-check the sink before use.
func buildMetricsSink(ctx context.Context, cfg config.Config) (metrics.Sink, error) {
	sink, err := metrics.NewClickHouseSink(ctx, metrics.ClickHouseConfig{DSN: cfg.ClickHouseMetricsDSN})
	if err != nil {
		return nil, fmt.Errorf("init clickhouse metrics sink: %w", err)
	}
	if sink == nil {
		return metrics.NoopSink{}, nil
	}
	return sink, nil
}

// buildFanout wires the Kafka broadcast/DM fanout when enabled. The core
// carries one configured topic name (KafkaFanoutTopic); the DM variant rides
// a ".dm" suffix off it when EnableDMs is set.
func buildFanout(cfg config.Config) (*fanout.KafkaFanout, error) {
	if !cfg.EnableKafkaFanout {
		return nil, nil
	}
	dmTopic := ""
	if cfg.EnableDMs {
		dmTopic = cfg.KafkaFanoutTopic + ".dm"
	}
	f, err := fanout.NewKafkaFanout(cfg.KafkaBrokers, cfg.KafkaFanoutTopic, dmTopic)
	if err != nil {
		return nil, fmt.Errorf("init kafka fanout: %w", err)
	}
	return f, nil
}

// buildWorkerConfig translates config.Config's env-shaped settings
// (float seconds, pattern strings) into worker.Config's runtime shape
// (time.Duration, compiled regexps), as documented on worker.Config itself.
func buildWorkerConfig(cfg config.Config) (worker.Config, error) {
	identifierPattern, err := regexp.Compile(cfg.Compilation.IdentifierPattern)
	if err != nil {
		return worker.Config{}, fmt.Errorf("compile COMPILATION_IDENTIFIER_PATTERN %q: %w", cfg.Compilation.IdentifierPattern, err)
	}

	return worker.Config{
		PipelineVersion: cfg.PipelineVersion,
		ClaimBatchSize:  cfg.Extraction.ClaimBatchSize,
		IdleSleep:       cfg.IdleSleep(),
		StaleAfter:      cfg.StaleThreshold(),
		MaxAttempts:     cfg.Extraction.MaxAttempts,
		BackoffBase:     time.Duration(cfg.Extraction.BackoffBaseSeconds * float64(time.Second)),
		BackoffMax:      time.Duration(cfg.Extraction.BackoffMaxSeconds * float64(time.Second)),

		Oneshot: cfg.Oneshot,
		MaxJobs: cfg.MaxJobs,

		UseNormalizedTextForLLM:    cfg.UseNormalizedTextForLLM,
		EnableDeterministicSignals: cfg.EnableDeterministicSignals,
		UseDeterministicTime:       cfg.UseDeterministicTime,
		EnablePostalCodeEstimated:  cfg.EnablePostalCodeEstimated,
		HardValidateMode:           enrich.HardValidateMode(cfg.HardValidateMode),

		EnableBroadcast: cfg.EnableBroadcast,
		EnableDMs:       cfg.EnableDMs,

		CompilationThresholds: filters.CompilationThresholds{
			CodeHits:   cfg.Compilation.CodeHits,
			LabelHits:  cfg.Compilation.LabelHits,
			PostalHits: cfg.Compilation.PostalHits,
			URLHits:    cfg.Compilation.URLHits,
			BlockCount: cfg.Compilation.BlockCount,
		},
		AssignmentCodePattern: filters.DefaultAssignmentCodePattern,
		IdentifierPattern:     identifierPattern,
	}, nil
}

// buildRecoveryConfig translates config.RecoveryConfig's minute/hour ints
// into recovery.Config's time.Duration shape.
func buildRecoveryConfig(cfg config.Config) recovery.Config {
	return recovery.Config{
		TargetLag:         time.Duration(cfg.Recovery.TargetLagMinutes) * time.Minute,
		Overlap:           time.Duration(cfg.Recovery.OverlapMinutes) * time.Minute,
		ChunkHours:        time.Duration(cfg.Recovery.ChunkHours) * time.Hour,
		QueueLowWatermark: cfg.Recovery.QueueLowWatermark,
		MaxAttempts:       cfg.Recovery.MaxAttempts,
		BaseBackoff:       time.Duration(cfg.Recovery.BaseBackoffSeconds * float64(time.Second)),
		CheckInterval:     30 * time.Second,
		DefaultLookback:   7 * 24 * time.Hour,
		PipelineVersion:   cfg.PipelineVersion,
	}
}

func buildCollector(ctx context.Context, client source.Client, store rawstore.Store, q queue.Queue, cfg config.Config) (*collector.Collector, error) {
	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &collector.Collector{
		Client:          client,
		Store:           store,
		Queue:           q,
		PipelineVersion: cfg.PipelineVersion,
		BatchSize:       cfg.Extraction.ClaimBatchSize,
		Heartbeat:       collector.NewHeartbeat(cfg.HeartbeatPath, cfg.PipelineVersion),
		Archiver:        archiver,
	}, nil
}

// runWithSource threads fn through the source client's connection
// lifecycle: GotdClient must be Run so its dispatcher is live before
// ResolveChannel/Backfill/Subscribe can be called, so fn runs as Run's
// ready callback and Run's return value is what the caller sees.
func runWithSource(ctx context.Context, client source.Client, fn func(ctx context.Context) error) error {
	if gc, ok := client.(*source.GotdClient); ok {
		return gc.Run(ctx, fn)
	}
	return fn(ctx)
}

func buildLLMClient(cfg config.Config) *llmextract.Client {
	return llmextract.New(cfg.LLM, cfg.Circuit)
}

func buildWorker(ctx context.Context, q queue.Queue, rawStore rawstore.Store, store persist.Store, llm *llmextract.Client, geocoder enrich.Geocoder, cfg config.Config, wcfg worker.Config) (*worker.Worker, error) {
	w := worker.New(q, rawStore, store, llm, geocoder, cfg.AgencyRef, wcfg)
	fo, err := buildFanout(cfg)
	if err != nil {
		return nil, err
	}
	if fo != nil {
		if cfg.EnableBroadcast {
			w.Broadcaster = fo
		}
		if cfg.EnableDMs {
			w.DMs = fo
		}
	}
	sink, err := buildMetricsSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	w.Metrics = sink
	return w, nil
}
