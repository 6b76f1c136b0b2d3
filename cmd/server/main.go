package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/TalkDocInc/agentic-talkdoc-platform/internal/routing"
	"github.com/TalkDocInc/agentic-talkdoc-platform/internal/server"
	execpersistence "github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/infrastructure/persistence"
	execservices "github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/services"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/tasks/insuranceverify"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/infrastructure/dbrouter"
	tenancypersistence "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/infrastructure/persistence"
	tenancyservices "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/services"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/authz"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfgPath, err := server.DefaultConfigPath()
	if err != nil {
		return err
	}
	cfg, err := server.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	zlog, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platformPool, err := pgxpool.New(ctx, cfg.DB.PlatformDSN)
	if err != nil {
		return err
	}
	defer platformPool.Close()

	tenantStore := tenancypersistence.NewTenantPGStore(platformPool)
	cache := tenancyservices.NewConfigCache(tenantStore,
		tenancyservices.WithCacheTTL(cfg.CacheTTL()),
		tenancyservices.WithCacheLogger(zlog))
	resolver := tenancyservices.NewResolver(cfg.BaseDomain)
	provisioning := tenancyservices.NewProvisioningService(tenantStore, cache,
		tenancyservices.WithProvisioningLogger(zlog))

	dbRouter := dbrouter.New(dbrouter.Config{
		DSNFor:         cfg.TenantDSN,
		MaxPerTenant:   cfg.DB.MaxPerTenant,
		AcquireTimeout: cfg.AcquireTimeout(),
		IdleAfter:      cfg.IdleAfter(),
		Logger:         zlog,
	})
	defer dbRouter.Close()

	registry := execservices.NewRegistry()
	execservices.Register[insuranceverify.Input, insuranceverify.Output](registry, insuranceverify.New())

	auditStore := execpersistence.NewAuditPGStore(dbRouter)
	executor := execservices.NewExecutor(registry, auditStore,
		execservices.WithExecutorLogger(zlog),
		execservices.WithMaxRetries(cfg.Executor.MaxRetries),
		execservices.WithTaskTimeout(cfg.TaskTimeout()),
		execservices.WithBackoff(cfg.BackoffBase(), cfg.BackoffCap()),
		execservices.WithUsageRecorder(tenantStore))
	auditLog := execservices.NewAuditLogService(auditStore,
		execservices.WithAuditLogLogger(zlog))

	var classifier *routing.Classifier
	if cfg.AllowlistPath != "" {
		allowlist, err := routing.LoadAllowlist(cfg.AllowlistPath)
		if err != nil {
			return err
		}
		classifier, err = routing.NewClassifier(allowlist, "server")
		if err != nil {
			return err
		}
	}

	var authorizer *authz.Authorizer
	if cfg.AuthzModelPath != "" {
		mode, err := authz.ModeFromEnv()
		if err != nil {
			return err
		}
		authorizer, err = authz.NewAuthorizer(cfg.AuthzModelPath, cfg.AuthzPolicyPath, mode)
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHandlerWithOptions(server.HandlerOptions{
		Classifier:   classifier,
		Resolver:     resolver,
		Cache:        cache,
		DBRouter:     dbRouter,
		Executor:     executor,
		Audit:        auditLog,
		Provisioning: provisioning,
		TenantStore:  tenantStore,
		Authorizer:   authorizer,
		Logger:       zlog,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server_listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	zlog.Info("server_stopped")
	return nil
}
