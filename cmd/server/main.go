package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-gin-lucky-draw/config"
	"go-gin-lucky-draw/internal/database"
	"go-gin-lucky-draw/internal/draw"
	"go-gin-lucky-draw/internal/handler"
	"go-gin-lucky-draw/internal/job"
	"go-gin-lucky-draw/internal/locale"
	"go-gin-lucky-draw/internal/queue"
	"go-gin-lucky-draw/internal/repository"
	"go-gin-lucky-draw/internal/service"
	"go-gin-lucky-draw/internal/telemetry"
	"go-gin-lucky-draw/internal/worker"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	defer logger.Sync()
	log := logger.WithComponent("main")

	cfg := config.LoadConfig()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warn("invalid LOG_LEVEL, keeping info", zap.String("level", cfg.LogLevel))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	catalog, err := config.LoadCatalog(cfg.Draw.CatalogFile)
	if err != nil {
		return err
	}

	backend, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	// redis 後端時待補發隊列也放在 redis，多個實例共用
	var pending queue.IssueQueue
	if backend.Redis != nil {
		pending, err = queue.NewRedisStreamIssueQueue(ctx, backend.Redis, "", nil)
		if err != nil {
			return err
		}
	} else {
		pending = queue.NewIssueQueue(cfg.Draw.QueueBuffer)
	}

	store := backend.Store
	inventory := repository.NewInventoryRepository(store, catalog)
	svc := service.NewLuckyDrawService(
		store,
		repository.NewReceiptRepository(store),
		inventory,
		repository.NewTicketRepository(store, repository.WithMaxCodeAttempts(cfg.Draw.MaxCodeAttempts)),
		draw.NewAllocator(inventory, catalog, draw.WithMaxAttempts(cfg.Draw.MaxDrawAttempts)),
		pending,
	)

	durable, err := svc.Init(ctx)
	if err != nil {
		return err
	}
	log.Info("lucky draw initialized",
		zap.String("backend", backend.Name),
		zap.Bool("durable", durable),
		zap.Int("prizes", len(catalog)),
	)

	issueWorker := worker.NewIssueWorker(svc, pending)
	if err := issueWorker.Start(ctx); err != nil {
		return err
	}

	scheduler, err := job.NewScheduler(cfg.Audit.Schedule, job.NewInventoryAuditJob(svc))
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	translator, err := locale.NewTranslator()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(cfg, svc, translator),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)

	// 等 worker 處理完手上的訊息再關閉儲存
	select {
	case <-issueWorker.Done():
	case <-sctx.Done():
		log.Warn("issue worker did not stop before shutdown timeout")
	}
	stats := issueWorker.Stats()
	log.Info("issue worker stopped", zap.Int64("issued", stats.Issued), zap.Int64("retried", stats.Retried))
	return err
}
