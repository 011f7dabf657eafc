package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project_associa/internal/config"
	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/interfaces"
	httpapi "project_associa/internal/interfaces/http"
	"project_associa/internal/repository"
	"project_associa/internal/usecases"

	"github.com/gin-gonic/gin"
	"go.mau.fi/whatsmeow/types/events"
)

// stores groups the persistence ports so main can pick Postgres or memory once.
type stores struct {
	associations  interfaces.AssociationStore
	patients      interfaces.PatientStore
	conversations interfaces.ConversationStore
	users         interfaces.UserStore
	configs       interfaces.ConfigStore
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := infrastructure.NewMetrics()

	// Persistence
	var st stores
	if cfg.DatabaseURL != "" {
		pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()
		if err := pgClient.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		st = stores{
			associations:  repository.NewAssociationRepository(pgClient.Pool),
			patients:      repository.NewPatientRepository(pgClient.Pool),
			conversations: repository.NewConversationRepository(pgClient.Pool),
			users:         repository.NewUserRepository(pgClient.Pool),
			configs:       repository.NewConfigRepository(pgClient.Pool),
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		mem := repository.NewMemoryStore()
		st = stores{
			associations:  mem.Associations(),
			patients:      mem.Patients(),
			conversations: mem.Conversations(),
			users:         mem.Users(),
			configs:       mem.Configs(),
		}
	}

	// Notification hub and its sinks
	hub := infrastructure.NewHub(logger, metrics)
	defer hub.Close()

	var cache interfaces.Cache = infrastructure.NewMemoryCache()
	if cfg.RedisURL != "" {
		rdb, err := infrastructure.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-process tenant cache", "error", err)
		} else {
			defer rdb.Close()
			cache = infrastructure.NewRedisCache(rdb, "associa:")
			hub.Attach("redis", infrastructure.NewRedisEventSink(rdb, "associa:"), 256, 2*time.Second)
			logger.Info("redis connected")
		}
	}

	if cfg.TelegramBotToken != "" {
		notifier, err := infrastructure.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramAttendantChatID)
		if err != nil {
			logger.Warn("telegram notifier disabled", "error", err)
		} else {
			hub.Attach("telegram", notifier, 64, 5*time.Second)
			logger.Info("telegram notifier connected", "bot", notifier.Bot.Self.UserName)
		}
	}

	// Usecases
	directory := infrastructure.NewWordPressDirectory(cfg.DirectoryTimeout, logger, metrics)
	tenants := usecases.NewTenantResolver(st.associations, cache, cfg.TenantCacheTTL, logger)
	reconciler := usecases.NewReconciliationEngine(st.patients, directory, cfg.SyncStaleness, logger, metrics)
	machine := usecases.NewConversationMachine(st.conversations, hub, logger, metrics)

	var messenger interfaces.Messenger
	var waManager *infrastructure.WhatsAppManager
	switch cfg.GatewayMode {
	case config.GatewayModeWhatsmeow:
		waManager = infrastructure.NewWhatsAppManager(cfg.WhatsAppDevicesDir, logger)
		messenger = waManager
	default:
		messenger = infrastructure.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	}
	throttled := infrastructure.NewThrottledMessenger(messenger, cfg.SendRate, cfg.SendBurst)
	defer throttled.Close()
	messenger = throttled

	router := usecases.NewMessageRouter(usecases.RouterDeps{
		Secret:        cfg.WebhookSecret,
		Tenants:       tenants,
		Reconciler:    reconciler,
		Machine:       machine,
		Conversations: st.conversations,
		Configs:       st.configs,
		Responder:     usecases.NewRuleResponder(st.configs, logger),
		Escalation:    usecases.NewKeywordPolicy(cfg.EscalationKeywords),
		Messenger:     messenger,
		Publisher:     hub,
		Locks:         infrastructure.NewPatientLocks(),
		Logger:        logger,
		Metrics:       metrics,
	})
	attendants := usecases.NewAttendantService(machine, st.conversations, st.patients, st.associations, messenger, logger, metrics)
	dashboard := usecases.NewDashboardUsecase(st.associations, st.configs, tenants, logger)
	auth := usecases.NewAuthUsecase(st.users, st.associations, cfg.JWTSecret)

	if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Warn("admin user not ensured", "error", err)
	}

	if waManager != nil {
		// device messages take the same ingestion path as gateway webhooks, one worker per session
		inbound := infrastructure.NewInboundQueue(ctx, 64, cfg.WebhookTimeout, func(ctx context.Context, evt entities.InboundEvent) error {
			_, err := router.HandleInbound(ctx, evt)
			return err
		}, logger)
		defer inbound.Wait()
		waManager.HandlerFactory = func(session string) func(interface{}) {
			return func(evt interface{}) {
				msg, ok := evt.(*events.Message)
				if !ok {
					return
				}
				inbound.Enqueue(infrastructure.ToInboundEvent(session, msg))
			}
		}
		reconnectDevices(ctx, st.associations, waManager, logger)
		defer waManager.DisconnectAll()
	}

	monitor := usecases.NewQueueMonitor(st.conversations, hub, cfg.QueueMonitorInterval, cfg.QueueTimeout, logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	// HTTP server
	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	middleware := httpapi.NewMiddleware(cfg.JWTSecret, tenants)
	httpapi.SetupRoutes(r, httpapi.Deps{
		Router:         router,
		Reconciler:     reconciler,
		Tenants:        tenants,
		Attendants:     attendants,
		Dashboard:      dashboard,
		Auth:           auth,
		Hub:            hub,
		WhatsApp:       waManager,
		Metrics:        metrics,
		Logger:         logger,
		WebhookTimeout: cfg.WebhookTimeout,
	}, middleware)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "gateway_mode", cfg.GatewayMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// reconnectDevices reconnects the already paired device of every association session.
func reconnectDevices(ctx context.Context, associations interfaces.AssociationStore, wa *infrastructure.WhatsAppManager, logger *slog.Logger) {
	list, err := associations.List(ctx)
	if err != nil {
		logger.Warn("could not list associations for device reconnect", "error", err)
		return
	}
	for _, a := range list {
		if a.GatewaySession == "" || !a.Active {
			continue
		}
		client, err := wa.GetOrCreateClient(context.Background(), a.GatewaySession)
		if err != nil {
			logger.Warn("device client unavailable", "session", a.GatewaySession, "error", err)
			continue
		}
		if !client.IsLoggedIn() {
			continue
		}
		if err := client.Connect(context.Background()); err != nil {
			logger.Warn("device reconnect failed", "session", a.GatewaySession, "error", err)
		}
	}
}
