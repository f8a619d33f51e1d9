// auditgate fits the retrieval engine from the evidence corpus, runs the
// configured audit queries through fusion, confidence, and parity, and
// exits non-zero when any parity check fails. It is a batch gate, not a
// serving process: the only listener is the metrics/health sidecar.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/esglens/retrieval-engine/internal/parity"
	"github.com/esglens/retrieval-engine/internal/pipeline/audit"
	"github.com/esglens/retrieval-engine/internal/pipeline/cache"
	"github.com/esglens/retrieval-engine/internal/pipeline/corpus"
	"github.com/esglens/retrieval-engine/internal/retrieval"
	"github.com/esglens/retrieval-engine/pkg/config"
	"github.com/esglens/retrieval-engine/pkg/health"
	"github.com/esglens/retrieval-engine/pkg/kafka"
	"github.com/esglens/retrieval-engine/pkg/logger"
	"github.com/esglens/retrieval-engine/pkg/metrics"
	"github.com/esglens/retrieval-engine/pkg/postgres"
	pkgredis "github.com/esglens/retrieval-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	// Deferred cleanup (producer flush, connection close) must run before
	// the process exits, so the exit code travels out of run.
	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting audit gate",
		"queries", len(cfg.Audit.Queries),
		"embedding_dim", cfg.Engine.EmbeddingDim,
		"alpha", cfg.Engine.Alpha,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		return 1
	}
	defer pgClient.Close()

	var rankingCache *cache.RankingCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, ranking cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		rankingCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("ranking cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	parityProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ParityReports)
	defer parityProducer.Close()
	posteriorProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Posteriors)
	defer posteriorProducer.Close()
	publisher := audit.NewPublisher(parityProducer, posteriorProducer, 1024, m)
	publisher.Start(ctx)
	defer publisher.Close()

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
		sidecar := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			if err := sidecar.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics sidecar error", "error", err)
			}
		}()
		defer sidecar.Close()
		slog.Info("metrics sidecar listening", "addr", sidecar.Addr)
	}

	engine, err := retrieval.NewEngine(cfg.Engine, m)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		return 1
	}

	provider := corpus.NewProvider(pgClient)
	docs, err := provider.LoadChunks(ctx)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		return 1
	}
	if err := engine.Fit(ctx, docs); err != nil {
		slog.Error("failed to fit engine", "error", err)
		return 1
	}
	if rankingCache != nil {
		// A fresh fit invalidates every ranking cached from earlier runs.
		if _, err := rankingCache.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation failed", "error", err)
		}
	}

	batch := runAuditQueries(ctx, cfg, engine, rankingCache, publisher, m)

	slog.Info("audit gate finished",
		"total", batch.Total,
		"passed", batch.Passed,
		"failed", batch.Failed,
	)
	if batch.Failed > 0 {
		return 2
	}
	return 0
}

func runAuditQueries(
	ctx context.Context,
	cfg *config.Config,
	engine *retrieval.Engine,
	rankingCache *cache.RankingCache,
	publisher *audit.Publisher,
	m *metrics.Metrics,
) parity.BatchReport {
	inputs := make([]parity.BatchInput, 0, len(cfg.Audit.Queries))
	for i, aq := range cfg.Audit.Queries {
		k := aq.K
		if k <= 0 {
			k = cfg.Engine.DefaultK
		}
		qctx := logger.WithQueryID(ctx, fmt.Sprintf("audit-%03d", i))
		log := logger.FromContext(qctx).With("query", aq.Query)
		compute := func() (*retrieval.Result, error) {
			return engine.Query(qctx, aq.Query, retrieval.Options{K: k})
		}
		var result *retrieval.Result
		var err error
		if rankingCache != nil {
			result, err = rankingCache.GetOrCompute(qctx, aq.Query, cfg.Engine.Alpha, k, compute)
		} else {
			result, err = compute()
		}
		if err != nil {
			log.Error("audit query failed", "error", err)
			continue
		}

		scores := make([]float64, len(result.Ranking))
		for i, doc := range result.Ranking {
			scores[i] = doc.Score
		}
		estimate, err := engine.Confidence(scores, aq.Theme)
		if err != nil {
			log.Error("confidence estimation failed", "theme", aq.Theme, "error", err)
		} else {
			publisher.ReportPosterior(aq.Theme, estimate)
			log.Info("posterior estimated",
				"theme", aq.Theme,
				"mean", estimate.Mean,
				"interval_width", estimate.IntervalWidth,
			)
		}

		inputs = append(inputs, parity.BatchInput{
			Query:       aq.Query,
			EvidenceIDs: aq.EvidenceIDs,
			FusedTopK:   result.Ranking,
			K:           k,
		})
	}

	batch := parity.CheckBatch(inputs)
	for _, report := range batch.Reports {
		m.ParityChecksTotal.WithLabelValues(string(report.Verdict)).Inc()
		publisher.ReportParity(report)
		if report.Verdict == parity.VerdictFail {
			slog.Warn("parity check failed",
				"query", report.Query,
				"missing_evidence", report.MissingEvidence,
				"k", report.K,
			)
		}
	}
	return batch
}
