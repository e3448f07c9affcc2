package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"outbreak/internal/admin"
	jwttoken "outbreak/internal/jwt_token"
	"outbreak/internal/platform/config"
	"outbreak/internal/platform/httpserver"
	"outbreak/internal/platform/logger"
	httpmetrics "outbreak/internal/platform/metrics"
	mongoconn "outbreak/internal/platform/mongo"
	"outbreak/internal/platform/otel"
	pgconn "outbreak/internal/platform/postgres"
	redisconn "outbreak/internal/platform/redis"
	rlmetrics "outbreak/internal/ratelimit/metrics"
	rlmw "outbreak/internal/ratelimit/middleware"
	rlmodels "outbreak/internal/ratelimit/models"
	"outbreak/internal/ratelimit/store/bucket"
	"outbreak/internal/registration/handler"
	regmetrics "outbreak/internal/registration/metrics"
	"outbreak/internal/registration/screenshot"
	"outbreak/internal/registration/service"
	"outbreak/internal/registration/store"
	"outbreak/internal/registration/store/memory"
	mongostore "outbreak/internal/registration/store/mongo"
	pgstore "outbreak/internal/registration/store/postgres"
	redisstore "outbreak/internal/registration/store/redis"
	audit "outbreak/pkg/platform/audit"
	"outbreak/pkg/platform/audit/outbox"
	"outbreak/pkg/platform/audit/publisher"
	kafkastore "outbreak/pkg/platform/audit/store/kafka"
	auditmemory "outbreak/pkg/platform/audit/store/memory"
	auditpg "outbreak/pkg/platform/audit/store/postgres"
	"outbreak/pkg/platform/middleware/metadata"
	request "outbreak/pkg/platform/middleware/request"
	"outbreak/pkg/platform/middleware/requesttime"
)

const serviceName = "outbreak"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// infra collects the connections opened during startup so they close in one place.
type infra struct {
	closers []func() error
	dbs     map[string]*sql.DB
}

func (in *infra) postgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if db, ok := in.dbs[dsn]; ok {
		return db, nil
	}
	db, err := pgconn.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if in.dbs == nil {
		in.dbs = make(map[string]*sql.DB)
	}
	in.dbs[dsn] = db
	in.closers = append(in.closers, db.Close)
	return db, nil
}

func (in *infra) close(log *slog.Logger) {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var in infra
	defer in.close(log)

	redisClient, err := redisconn.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		in.closers = append(in.closers, redisClient.Close)
	}

	regStore, err := buildRegistrationStore(ctx, cfg, &in, redisClient)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	auditStore, err := buildAuditStore(ctx, cfg, &in, log, g, gctx)
	if err != nil {
		return err
	}
	pub := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(log),
	)
	defer pub.Close()

	svc := service.New(regStore, screenshot.New(),
		service.WithLogger(log),
		service.WithMetrics(regmetrics.New()),
		service.WithAuditPublisher(pub),
	)

	if cfg.Admin.AccessKeyHash == "" {
		log.Warn("OUTBREAK_ADMIN_KEY_HASH not set; admin sessions are disabled")
	}
	jwtService := jwttoken.NewJWTService(cfg.Admin.JWTSigningKey, cfg.Admin.JWTIssuer, cfg.Admin.JWTAudience)
	adminService := admin.NewService(svc, jwtService, cfg.Admin.AccessKeyHash,
		admin.WithLogger(log),
		admin.WithAuditPublisher(pub),
		admin.WithSessionTTL(cfg.Admin.SessionTTL),
	)

	var buckets rlmw.BucketStore
	if cfg.RateLimit.UseRedis {
		buckets = bucket.NewRedisBucketStore(redisClient.Client)
	} else {
		local := bucket.NewInMemoryBucketStore()
		g.Go(func() error {
			local.RunSweeper(gctx, cfg.RateLimit.Window)
			return nil
		})
		buckets = local
	}
	limiter := rlmw.New(buckets, log,
		rlmw.WithDisabled(cfg.RateLimit.Disabled),
		rlmw.WithPolicy(rlmodels.ClassLookup, cfg.RateLimit.LookupLimit, cfg.RateLimit.Window),
		rlmw.WithPolicy(rlmodels.ClassSubmit, cfg.RateLimit.SubmitLimit, cfg.RateLimit.Window),
		rlmw.WithPolicy(rlmodels.ClassAdmin, cfg.RateLimit.AdminLimit, cfg.RateLimit.Window),
		rlmw.WithMetrics(rlmetrics.New()),
	)

	registrationHandler := handler.New(svc, log, cfg.MaxUploadBytes)
	adminHandler := admin.NewHandler(adminService, jwttoken.NewJWTServiceAdapter(jwtService), log)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(log))
	r.Use(request.Timeout(cfg.RequestTimeout))
	r.Use(request.LatencyMiddleware(httpmetrics.New()))

	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(limiter.RateLimit(rlmodels.ClassLookup))
		registrationHandler.RegisterLookups(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(limiter.RateLimit(rlmodels.ClassSubmit))
		registrationHandler.RegisterSubmit(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(limiter.RateLimit(rlmodels.ClassAdmin))
		r.Use(request.ContentTypeJSON)
		adminHandler.Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	g.Go(func() error {
		log.Info("starting outbreak registration server", "addr", cfg.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildRegistrationStore(ctx context.Context, cfg config.Server, in *infra, redisClient *redisconn.Client) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := in.postgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st := pgstore.NewPostgres(db)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("registration schema: %w", err)
		}
		return st, nil
	case config.StoreMongo:
		client, err := mongoconn.Connect(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, func() error { return client.Disconnect(context.Background()) })
		st := mongostore.NewMongo(client, cfg.Store.MongoDatabase)
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("registration indexes: %w", err)
		}
		return st, nil
	case config.StoreRedis:
		return redisstore.NewRedis(redisClient.Client), nil
	default:
		return memory.NewInMemory(), nil
	}
}

// buildAuditStore keeps events in memory unless Kafka is configured, in which
// case they land in a Postgres outbox and a relay forwards them to the topic.
func buildAuditStore(ctx context.Context, cfg config.Server, in *infra, log *slog.Logger, g *errgroup.Group, gctx context.Context) (audit.Store, error) {
	if !cfg.KafkaEnabled() {
		return auditmemory.NewInMemoryStore(), nil
	}

	db, err := in.postgres(ctx, cfg.Audit.OutboxDSN)
	if err != nil {
		return nil, err
	}
	outboxStore := auditpg.New(db)
	if err := outboxStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("audit outbox schema: %w", err)
	}

	client, err := kafkastore.NewClient(cfg.Audit.KafkaBrokers)
	if err != nil {
		return nil, err
	}
	in.closers = append(in.closers, func() error { client.Close(); return nil })
	sink := kafkastore.New(client, cfg.Audit.KafkaTopic)
	if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
		log.Warn("could not ensure audit topic", "topic", sink.Topic(), "error", err)
	}

	relay := outbox.NewRelay(outboxStore, sink,
		outbox.WithInterval(cfg.Audit.RelayInterval),
		outbox.WithLogger(log),
	)
	g.Go(func() error {
		if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return outboxStore, nil
}
