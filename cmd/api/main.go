package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-workflow/internal/api/http"
	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/notify"
	"github.com/spec-kit/ticket-workflow/internal/notify/channel"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/realtime"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/watcher"
	"github.com/spec-kit/ticket-workflow/internal/worker"
)

type stores struct {
	tickets       repository.TicketRepository
	messages      repository.TicketMessageRepository
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository
	users         repository.UserRepository
	uow           repository.UnitOfWork
	feed          repository.TicketFeed
	locker        repository.Locker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	policy, err := cfg.SLA.Policy()
	if err != nil {
		logger.Fatal("invalid sla policy", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	st := buildStores(cfg, pg, logger)
	metrics := observability.NewMetrics()

	var broker realtime.Broker = realtime.NewLocalBroker()
	if redis.Enabled() {
		broker = realtime.NewRedisBroker(redis.Client, cfg.Redis.ChannelPrefix, logger.Named("realtime"))
	}
	registry := realtime.NewRegistry(broker, logger.Named("realtime"))

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: st.tickets,
		OutboxRepo: st.outbox,
		UnitOfWork: st.uow,
		SLAPolicy:  policy,
		Logger:     logger.Named("workflow"),
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo: st.tickets,
		UserRepo:   st.users,
		OutboxRepo: st.outbox,
		UnitOfWork: st.uow,
		Logger:     logger.Named("workflow"),
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		TicketRepo:  st.tickets,
		MessageRepo: st.messages,
		OutboxRepo:  st.outbox,
		UnitOfWork:  st.uow,
		Logger:      logger.Named("messages"),
	})
	notificationService := service.NewNotificationService(st.notifications, nil)

	bus := events.NewInMemoryDispatcher()
	dispatcher := notify.NewDispatcher(notify.Dependencies{
		Users:         st.users,
		Notifications: st.notifications,
		Channels: []channel.Channel{
			channel.NewInApp(broker),
			channel.NewSystemAlert(broker),
			channel.NewAudio(broker),
			channel.NewEmail(cfg.Notification, logger.Named("email")),
		},
		Metrics:     metrics,
		Logger:      logger.Named("notify"),
		Concurrency: cfg.Notification.DeliveryConcurrency,
	})
	dispatcher.Register(bus)

	var workers sync.WaitGroup
	relay := worker.NewOutboxRelay(cfg.Outbox, st.outbox, st.locker, bus, logger.Named("outbox"))
	workers.Add(1)
	go func() {
		defer workers.Done()
		relay.Run(ctx)
	}()

	var ticketWatcher *watcher.Watcher
	if cfg.Feed.Enabled {
		ticketWatcher = watcher.New(st.feed, bus, logger.Named("watcher"))
		if err := ticketWatcher.Start(ctx); err != nil {
			logger.Fatal("failed to start ticket watcher", zap.Error(err))
		}
	}

	slaMonitor, err := worker.NewSLAMonitor(cfg.SLA, ticketService, st.locker, logger.Named("sla"))
	if err != nil {
		logger.Fatal("failed to schedule sla sweep", zap.Error(err))
	}
	slaMonitor.Start()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	authMiddleware := auth.NewAuthMiddleware(tokens, st.users)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	notificationsHandler := handlers.NewNotificationsHandler(notificationService, registry, logger.Named("stream"))
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService, escalationService, messageService),
		Notifications:  notificationsHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	notificationsHandler.Close()
	registry.StopAll()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	slaMonitor.Stop()
	if ticketWatcher != nil {
		ticketWatcher.Stop()
	}
	cancel()
	workers.Wait()
}

// buildStores selects Postgres repositories when a pool is configured and the
// in-memory store otherwise.
func buildStores(cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) stores {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		tickets := repository.NewTicketRepository(pool)
		return stores{
			tickets:       tickets,
			messages:      repository.NewTicketMessageRepository(pool),
			notifications: repository.NewNotificationRepository(pool),
			outbox:        repository.NewOutboxRepository(pool),
			users:         repository.NewUserRepository(pool),
			uow:           repository.NewUnitOfWork(pool),
			feed:          repository.NewTicketFeed(pool, tickets, logger.Named("feed"), cfg.Feed.SnapshotLimit, cfg.Feed.ReconnectDelay()),
			locker:        repository.NewAdvisoryLocker(pool),
		}
	}

	users, err := cfg.Directory.Users()
	if err != nil {
		logger.Fatal("failed to load user directory", zap.Error(err))
	}
	if len(users) == 0 {
		logger.Warn("in-memory store has no users; set USER_DIRECTORY_FILE")
	}
	repos := memstore.New(users...).Repositories()
	return stores{
		tickets:       repos.Tickets,
		messages:      repos.Messages,
		notifications: repos.Notifications,
		outbox:        repos.Outbox,
		users:         repos.Users,
		uow:           repos.UnitOfWork,
		feed:          repos.Feed,
		locker:        repos.Locker,
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
