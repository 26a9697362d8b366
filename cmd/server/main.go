package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	identityhandler "intake/internal/identity/handler"
	"intake/internal/identity/mailer"
	identityservice "intake/internal/identity/service"
	identitystore "intake/internal/identity/store"
	"intake/internal/platform/config"
	"intake/internal/platform/httpserver"
	"intake/internal/platform/logger"
	"intake/internal/platform/metrics"
	platformredis "intake/internal/platform/redis"
	ratelimitmw "intake/internal/ratelimit/middleware"
	ratelimitstore "intake/internal/ratelimit/store"
	recordhandler "intake/internal/record/handler"
	recordservice "intake/internal/record/service"
	recordstore "intake/internal/record/store"
	reviewerhandler "intake/internal/reviewer/handler"
	reviewerservice "intake/internal/reviewer/service"
	reviewerstore "intake/internal/reviewer/store"
	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/audit/publisher"
	auditmemory "intake/pkg/platform/audit/store/memory"
	auditpostgres "intake/pkg/platform/audit/store/postgres"
	"intake/pkg/platform/circuit"
	"intake/pkg/platform/middleware/admin"
	"intake/pkg/platform/middleware/auth"
	"intake/pkg/platform/middleware/metadata"
	"intake/pkg/platform/middleware/request"
	"intake/pkg/platform/middleware/requesttime"
)

// sessionSweepInterval is how often expired in-memory sessions and idle rate
// limit buckets are dropped.
const sessionSweepInterval = time.Minute

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// storage is the persistence chosen at startup.
type storage struct {
	records   recordservice.Store
	tx        recordservice.TxRunner
	reviewers reviewerservice.Store
	audit     audit.Store
	onDeleted func(recordIDs ...id.RecordID)
	close     func() error
}

func run(ctx context.Context, log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}()

	mail, err := openMailer(ctx, cfg, log)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	sessions, buckets := openEphemeral(gctx, redisClient, g, log)

	pub := publisher.NewPublisher(st.audit,
		publisher.WithLogger(log),
		publisher.WithFailureCounter(m.AuditFailureCounter()),
	)
	registry := reviewerservice.New(st.reviewers,
		reviewerservice.WithLogger(log),
		reviewerservice.WithMetrics(m),
	)
	engineOpts := []recordservice.Option{
		recordservice.WithLogger(log),
		recordservice.WithMetrics(m),
	}
	if st.onDeleted != nil {
		engineOpts = append(engineOpts, recordservice.WithDeleteHook(st.onDeleted))
	}
	engine := recordservice.New(st.records, st.tx, registry, pub, engineOpts...)
	identity := identityservice.New(st.records, st.tx, engine, sessions, mail, pub,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithSessionTTL(cfg.SessionTTL),
		identityservice.WithChallengeTTL(cfg.ChallengeTTL),
	)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	records := recordhandler.New(engine, log)
	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireReviewer(registry, log))
		records.RegisterReviewer(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		records.RegisterAdmin(r)
		reviewerhandler.New(registry, log).Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		limiter := ratelimitmw.New(buckets, log,
			ratelimitmw.WithDisabled(cfg.RateLimitOff),
			ratelimitmw.WithMetrics(m),
		)
		identityhandler.New(identity, log, cfg.CookieSecure, identityhandler.WithRateLimiter(limiter)).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)
	g.Go(func() error {
		log.Info("starting intake", "addr", cfg.Addr, "postgres", cfg.DatabaseURL != "", "redis", cfg.Redis.URL != "")
		return httpserver.Run(gctx, srv)
	})
	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Server, log *slog.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		records := recordstore.NewInMemory()
		auditLog := auditmemory.NewInMemoryStore()
		return &storage{
			records:   records,
			tx:        recordservice.NewShardedTx(records),
			reviewers: reviewerstore.NewInMemory(),
			audit:     auditLog,
			onDeleted: auditLog.Purge,
			close:     func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.Migrate {
		if err := recordstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("database schema applied")
	}

	records := recordstore.NewPostgres(db)
	return &storage{
		records:   records,
		tx:        recordservice.NewPostgresTx(db, records),
		reviewers: reviewerstore.NewPostgres(db),
		audit:     auditpostgres.New(db),
		close:     db.Close,
	}, nil
}

// openEphemeral picks Redis for sessions and rate-limit buckets when it is
// configured. The in-memory stores get a sweeper running in g.
func openEphemeral(ctx context.Context, client *platformredis.Client, g *errgroup.Group, log *slog.Logger) (identityservice.SessionStore, ratelimitmw.BucketStore) {
	if client != nil {
		buckets := ratelimitstore.NewFallbackStore(
			ratelimitstore.NewRedisBucketStore(client.Client),
			ratelimitstore.NewInMemoryBucketStore(),
			circuit.New("ratelimit-redis"),
			log,
		)
		return identitystore.NewRedis(client.Client), buckets
	}

	log.Warn("REDIS_URL not set, applicant sessions and rate limits are kept in memory")
	sessions := identitystore.NewInMemory()
	buckets := ratelimitstore.NewInMemoryBucketStore()
	g.Go(func() error {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.Sweep(); n > 0 {
					log.Debug("swept expired sessions", "count", n)
				}
				if n := buckets.Sweep(); n > 0 {
					log.Debug("swept idle rate limit buckets", "count", n)
				}
			}
		}
	})
	return sessions, buckets
}

func openMailer(ctx context.Context, cfg config.Server, log *slog.Logger) (mailer.Mailer, error) {
	if cfg.Mail.Backend != config.MailBackendSES {
		return mailer.NewLog(log), nil
	}
	ses, err := mailer.NewSES(ctx, cfg.Mail.Region, cfg.Mail.From)
	if err != nil {
		return nil, fmt.Errorf("configure ses: %w", err)
	}
	return ses, nil
}
