package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tiqr/internal/api"
	"tiqr/internal/audit"
	challengemetrics "tiqr/internal/challenge/metrics"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/service"
	"tiqr/internal/identity/migrations"
	idservice "tiqr/internal/identity/service"
	"tiqr/internal/identity/store"
	"tiqr/internal/notification"
	notificationstore "tiqr/internal/notification/store"
	"tiqr/internal/platform/config"
	"tiqr/internal/platform/metrics"
	redisclient "tiqr/internal/platform/redis"
	"tiqr/internal/platform/sqlite"
	"tiqr/internal/platform/worker"
	"tiqr/internal/secret"
	secretstore "tiqr/internal/secret/store"
)

const auditQueueSize = 64

// app holds every wired component. Commands receive it fully built.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      io.Writer
	registry *prometheus.Registry

	identityDB *sql.DB
	secretsDB  *sql.DB
	migrator   *migrations.Migrator
	identities *store.Store
	secrets    *secret.Service
	resolver   *service.Resolver
	manager    *idservice.Service

	auditQueue  *audit.AsyncPublisher
	auditWorker *audit.Worker

	redis *redisclient.Client
	cache *notification.Cache
	push  *notification.Handler

	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, out: out, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	storeMetrics := metrics.New(a.registry)

	a.identityDB, err = sqlite.Open(cfg.DatabasePath, "")
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	a.migrator = migrations.New(a.identityDB, migrations.WithLogger(logger), migrations.WithMetrics(storeMetrics))
	version, err := a.migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate identity store: %w", err)
	}
	logger.DebugContext(ctx, "identity store ready", "version", version)
	a.identities = store.New(a.identityDB, store.WithLogger(logger), store.WithMetrics(storeMetrics))

	a.secretsDB, err = sqlite.Open(cfg.SecretsPath, cfg.SecretsPassword)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	keys, err := secretstore.NewSQLite(ctx, a.secretsDB)
	if err != nil {
		return nil, err
	}
	a.secrets = secret.NewService(keys, secret.NewFileKeyHandle(cfg.DeviceKeyPath),
		secret.WithLogger(logger),
		secret.WithKDFParams(secret.KDFParams{
			Time:     cfg.KDFTime,
			MemoryKB: cfg.KDFMemoryKB,
			Threads:  secret.DefaultKDFParams.Threads,
		}),
	)

	auditLog := audit.NewPublisher(audit.NewInMemoryStore(), audit.WithPublisherLogger(logger))
	a.auditQueue = audit.NewAsyncPublisher(auditQueueSize, logger)
	a.auditWorker = audit.NewWorker(auditLog, a.auditQueue.Inbox(), logger)
	go func() {
		_ = a.auditWorker.Run(context.WithoutCancel(ctx))
	}()

	client := api.New(
		api.WithTimeout(cfg.Timeout()),
		api.WithLogger(logger),
		api.WithProtocolVersion(cfg.ProtocolVersion),
	)
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(challengemetrics.New(a.registry)),
		service.WithAuditPublisher(a.auditQueue),
		service.WithPool(worker.New(cfg.Workers)),
	}
	enrollment, err := service.NewEnrollmentService(challengeConfig(cfg), a.identities, a.secrets, client, opts...)
	if err != nil {
		return nil, err
	}
	authentication, err := service.NewAuthenticationService(challengeConfig(cfg), a.identities, a.secrets, client, opts...)
	if err != nil {
		return nil, err
	}
	a.resolver = service.NewResolver(enrollment, authentication)

	a.manager, err = idservice.New(a.identities, a.secrets,
		idservice.WithLogger(logger),
		idservice.WithAuditPublisher(a.auditQueue),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// challengeConfig projects the settings the challenge components read.
func challengeConfig(cfg *config.Config) models.Config {
	return models.Config{
		ProtocolVersion:     cfg.ProtocolVersion,
		CompatibilityMode:   cfg.ProtocolCompatibilityMode,
		EnforcedHosts:       cfg.EnforcedHosts(),
		EnrollPathParam:     cfg.EnrollPathParam,
		AuthPathParam:       cfg.AuthPathParam,
		EnrollScheme:        cfg.EnrollScheme,
		AuthScheme:          cfg.AuthScheme,
		Language:            cfg.Language,
		NotificationType:    cfg.NotificationType,
		NotificationAddress: cfg.NotificationAddress,
	}
}

// notifications connects the notification cache on first use. Redis is used
// when configured, otherwise the slot lives for this process only.
func (a *app) notifications(ctx context.Context) (*notification.Handler, *notification.Cache, error) {
	if a.push != nil {
		return a.push, a.cache, nil
	}

	var slot notification.SlotStore = notificationstore.NewInMemory()
	if a.cfg.RedisURL != "" {
		client, err := redisclient.New(ctx, a.cfg.RedisURL, redisclient.WithLogger(a.logger))
		if err != nil {
			return nil, nil, fmt.Errorf("connect notification cache: %w", err)
		}
		a.redis = client
		slot = notificationstore.NewRedis(client.Client)
	}

	notifier := &terminalNotifier{out: a.out}
	a.cache = notification.NewCache(slot, notifier, notification.WithLogger(a.logger))
	a.push = notification.NewHandler(a.cache, notifier)
	return a.push, a.cache, nil
}

// close drains the audit queue, exports metrics and releases connections.
// Later calls do nothing.
func (a *app) close() {
	a.closeOnce.Do(a.shutdown)
}

func (a *app) shutdown() {
	if a.auditQueue != nil {
		a.auditQueue.Close()
		select {
		case <-a.auditWorker.Done():
		case <-time.After(2 * time.Second):
			a.logger.Warn("audit worker did not drain in time")
		}
	}
	if a.cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsTextfile, a.registry); err != nil {
			a.logger.Warn("writing metrics textfile", "path", a.cfg.MetricsTextfile, "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.secretsDB != nil {
		_ = a.secretsDB.Close()
	}
	if a.identityDB != nil {
		_ = a.identityDB.Close()
	}
}

// terminalNotifier prints notifications instead of handing them to a platform.
type terminalNotifier struct {
	out io.Writer
}

func (n *terminalNotifier) Show(_ context.Context, msg notification.Notification) error {
	_, err := fmt.Fprintf(n.out, "notification %d: %s\n", msg.ID, msg.Text)
	return err
}

func (n *terminalNotifier) Cancel(_ context.Context, id int32) error {
	_, err := fmt.Fprintf(n.out, "notification %d cancelled\n", id)
	return err
}
