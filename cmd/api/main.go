package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/tidynest/api/internal/handlers"
	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/platform/config"
	pfirestore "github.com/tidynest/api/internal/platform/firestore"
	"github.com/tidynest/api/internal/platform/idempotency"
	"github.com/tidynest/api/internal/platform/jobs"
	"github.com/tidynest/api/internal/platform/observability"
	firestoreRepo "github.com/tidynest/api/internal/repositories/firestore"
	"github.com/tidynest/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	serviceRepo, err := firestoreRepo.NewServiceRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise service repository", zap.Error(err))
	}
	providerRepo, err := firestoreRepo.NewProviderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise provider repository", zap.Error(err))
	}
	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}
	reservationRepo, err := firestoreRepo.NewReservationRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise reservation repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	paymentsLogger := logger.Named("payments")
	paypalProvider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
		BaseURL:  cfg.Payments.PayPalBaseURL,
		ClientID: cfg.Payments.PayPalClientID,
		Secret:   cfg.Payments.PayPalSecret,
		Clock:    time.Now,
		Logger:   eventLogger(paymentsLogger.Named("paypal")),
	})
	if err != nil {
		logger.Fatal("failed to initialise paypal provider", zap.Error(err))
	}

	var cardProvider payments.Provider
	if cfg.Payments.CardProvider == "stripe" {
		stripeProvider, err := payments.NewStripeCardProvider(payments.StripeCardProviderConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Clock:  time.Now,
			Logger: eventLogger(paymentsLogger.Named("stripe")),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe card provider", zap.Error(err))
		}
		cardProvider = stripeProvider
	} else {
		cardProvider = payments.NewSimulatedCardProvider(payments.SimulatedCardProviderConfig{Clock: time.Now})
	}

	paymentManager, err := payments.NewManager(
		map[string]payments.Provider{
			"paypal": paypalProvider,
			"card":   cardProvider,
		},
		payments.WithDefaultProvider("paypal"),
		payments.WithMethodRoutes(map[string]string{
			"paypal": "paypal",
			"card":   "card",
		}),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Services:  serviceRepo,
		Providers: providerRepo,
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:   cartRepo,
		Catalog: catalogService,
		Clock:   time.Now,
		Logger:  eventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	scheduleService, err := services.NewScheduleService(services.ScheduleServiceDeps{
		Reservations:   reservationRepo,
		ReservationTTL: cfg.Schedule.ReservationTTL,
		Clock:          time.Now,
		Logger:         eventLogger(logger.Named("schedule")),
	})
	if err != nil {
		logger.Fatal("failed to initialise schedule service", zap.Error(err))
	}

	userService, err := services.NewUserService(services.UserServiceDeps{
		Users:  userRepo,
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("users")),
	})
	if err != nil {
		logger.Fatal("failed to initialise user service", zap.Error(err))
	}

	var notifier services.NotificationService
	if cfg.Email.SendGridAPIKey != "" && cfg.Email.FromAddress != "" {
		notifier, err = services.NewNotificationService(services.NotificationServiceDeps{
			APIKey:      cfg.Email.SendGridAPIKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      eventLogger(logger.Named("notifications")),
		})
		if err != nil {
			logger.Fatal("failed to initialise notification service", zap.Error(err))
		}
	} else {
		logger.Info("email not configured; transactional mail disabled")
	}

	var publisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.PubSub.OrderEventsTopic != "" {
		projectID := cfg.PubSub.ProjectID
		if projectID == "" {
			projectID = cfg.Firestore.ProjectID
		}
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err = jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Services:  serviceRepo,
		Providers: providerRepo,
		Counters:  counterRepo,
		Users:     userRepo,
		Schedule:  scheduleService,
		Notifier:  notifier,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	adminService, err := services.NewAdminService(services.AdminServiceDeps{
		Orders:    orderRepo,
		Users:     userRepo,
		Providers: providerRepo,
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("admin")),
	})
	if err != nil {
		logger.Fatal("failed to initialise admin service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:     cartService,
		Orders:   orderService,
		Schedule: scheduleService,
		Payments: paymentManager,
		Users:    userRepo,
		Notifier: notifier,
		Currency: cfg.Payments.Currency,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	profileLogger := logger.Named("auth")
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithUserGetter(firebaseVerifier),
		auth.WithPostAuthHook(func(ctx context.Context, identity *auth.Identity) {
			if identity == nil || identity.UID == "" {
				return
			}
			cmd := services.EnsureProfileCommand{
				UserID: identity.UID,
				Email:  identity.Email,
				Roles:  identity.Roles,
			}
			go func() {
				mirrorCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := userService.EnsureProfile(mirrorCtx, cmd); err != nil {
					profileLogger.Warn("profile mirror failed", zap.String("uid", cmd.UserID), zap.Error(err))
				}
			}()
		}),
	)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost, http.MethodPut),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	adminHandlers := handlers.NewAdminHandlers(authenticator, catalogService, orderService, userService, adminService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
		handlers.WithHealthCheck("firestore", func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMiddlewares(idempotencyMiddleware),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tidynest api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// eventLogger adapts a zap logger to the event/fields callback the services take.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}
