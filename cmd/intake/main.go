package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/intake-pipeline/internal/api/http"
	"github.com/spec-kit/intake-pipeline/internal/api/http/handlers"
	"github.com/spec-kit/intake-pipeline/internal/auth"
	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/channel"
	"github.com/spec-kit/intake-pipeline/internal/config"
	"github.com/spec-kit/intake-pipeline/internal/dashboard"
	"github.com/spec-kit/intake-pipeline/internal/dialog"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/glpi"
	"github.com/spec-kit/intake-pipeline/internal/observability"
	"github.com/spec-kit/intake-pipeline/internal/persistence"
	"github.com/spec-kit/intake-pipeline/internal/repository"
	"github.com/spec-kit/intake-pipeline/internal/session"
	"github.com/spec-kit/intake-pipeline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	technicianRepo := repository.NewTechnicianRepository(pool)
	alertRepo := repository.NewAlertRepository(pool)

	brokerClient, err := broker.NewClient(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("failed to init broker client", zap.Error(err))
	}
	defer brokerClient.Close()

	ticketing := glpi.NewClient(cfg.GLPI, glpi.NewRedisTokenStore(redis.Client), logger)

	connector := channel.NewConnector(cfg.Gateway, redis.Client, metrics, logger)
	go connector.Run(ctx)
	go pumpInbound(ctx, connector, brokerClient, metrics, logger)

	sessions := session.NewRedisStore(redis.Client)
	machine := dialog.NewMachine(sessions, ticketRepo, brokerClient, cfg.Dialog, metrics, logger)

	hub := dashboard.NewHub(logger)
	intakeWorker := worker.NewIntakeWorker(ticketRepo, ticketing, brokerClient, metrics, logger)
	outboundWorker := worker.NewOutboundWorker(connector, logger)
	fanout := worker.NewNotificationFanout(technicianRepo, alertRepo, hub, connector, metrics, logger)
	monitor := worker.NewEscalationMonitor(ticketRepo, technicianRepo, alertRepo, ticketing,
		brokerClient, cfg.SLA.PollInterval(), metrics, logger)

	group := cfg.Kafka.ConsumerGroup
	go brokerClient.Consume(ctx, broker.QueueIncoming, group, func(ctx context.Context, payload []byte) error {
		metrics.Inc(observability.MetricMessagesConsumed)
		return handleIncoming(ctx, machine, payload)
	})
	go brokerClient.Consume(ctx, broker.QueueCreateTicket, group, intakeWorker.Handle)
	go brokerClient.Consume(ctx, broker.QueueOutgoing, group, outboundWorker.Handle)
	go brokerClient.Consume(ctx, broker.QueueNotifications, group, fanout.Handle)
	go monitor.Run(ctx)

	dashboardServer := &http.Server{Addr: cfg.Dashboard.Addr, Handler: dashboardMux(hub)}
	go func() {
		logger.Info("dashboard listener started", zap.String("addr", cfg.Dashboard.Addr))
		if err := dashboardServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("dashboard listen", zap.Error(err))
		}
	}()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Intake:         handlers.NewIntakeHandler(brokerClient),
		Gateway:        handlers.NewGatewayHandler(connector, alertRepo),
		AuthMiddleware: auth.NewMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = dashboardServer.Close()
	_ = app.Shutdown()
}

// pumpInbound forwards connector events onto the incoming queue, where the
// dialog consumer picks them up in delivery order.
func pumpInbound(ctx context.Context, connector *channel.Connector, publisher broker.Publisher, metrics *observability.Metrics, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-connector.Events():
			msg := domain.IncomingMessage{
				From:      event.From,
				Name:      event.PushName,
				Text:      event.Text,
				Timestamp: event.Timestamp,
			}
			if err := publisher.Publish(ctx, broker.QueueIncoming, msg); err != nil {
				metrics.Inc(observability.MetricMessagesDropped)
				logger.Error("publish inbound message", zap.Error(err), zap.String("from", event.From))
			}
		}
	}
}

func handleIncoming(ctx context.Context, machine *dialog.Machine, payload []byte) error {
	msg, err := dialog.DecodeIncoming(payload)
	if err != nil {
		return err
	}
	return machine.HandleIncoming(ctx, msg)
}

func dashboardMux(hub *dashboard.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/dashboard/ws", hub)
	return mux
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
