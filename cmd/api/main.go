package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/background"
	"github.com/BradenHooton/riskgate/internal/config"
	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/handlers"
	"github.com/BradenHooton/riskgate/internal/location"
	middlewareCustom "github.com/BradenHooton/riskgate/internal/middleware"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/BradenHooton/riskgate/internal/routes"
	"github.com/BradenHooton/riskgate/internal/services"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// otpKeyPrefix namespaces one-time codes in a shared Redis
const otpKeyPrefix = "riskgate:"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	pingers := map[string]handlers.Pinger{"postgres": db}

	// One-time codes live in Redis when configured, Postgres otherwise
	otpRepo := repositories.NewOTPRepository(db)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		otpRepo = repositories.NewRedisOTPRepository(client, otpKeyPrefix)
		pingers["redis"] = redisPinger{client: client}
		logger.Info("one-time codes stored in redis", slog.String("addr", cfg.Redis.Addr))
	}

	resolver, err := newLocationResolver(cfg.Risk, logger)
	if err != nil {
		logger.Error("failed to load location map", slog.Any("error", err))
		os.Exit(1)
	}

	notifier, err := newNotifier(cfg.Notification, logger)
	if err != nil {
		logger.Error("failed to initialize notification channels", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize security primitives
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenIssuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.TimingBaseDelay,
		RandomDelay: cfg.Auth.TimingRandomDelay,
	})

	hasher, err := pkgauth.NewHasher(pkgauth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize password hasher", slog.Any("error", err))
		os.Exit(1)
	}

	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.EncryptionKey, cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	throttle := services.NewOTPThrottle(cfg.TwoFactor.OTPResendInterval, cfg.TwoFactor.OTPResendBurst)
	accountService := services.NewAccountService(accountRepo, hasher, logger)
	ledgerService := services.NewLedgerService(attemptRepo, resolver, logger)
	riskService := services.NewRiskService(ledgerService, cfg.Risk, logger)
	twoFactorService := services.NewTwoFactorService(twoFactorRepo, otpRepo, totpManager, notifier, throttle, logger, auditLogger)
	sessionService := services.NewSessionService(sessionRepo, tokenManager, cfg.Auth.SessionTTL, logger)
	orchestrator := services.NewLoginOrchestrator(accountService, ledgerService, riskService, twoFactorService, sessionService, logger, auditLogger)
	flowRegistry := services.NewFlowRegistry(orchestrator, cfg.Auth.LoginFlowTTL)

	// Initialize handlers
	accountHandler := handlers.NewAccountHandler(accountService, sessionService, logger)
	loginHandler := handlers.NewLoginHandler(flowRegistry, timingDelay, ipConfig, logger)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, logger)
	healthHandler := handlers.NewHealthHandler(pingers, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(
		router,
		accountHandler,
		loginHandler,
		twoFactorHandler,
		healthHandler,
		tokenManager,
		sessionService,
		ipConfig,
		middlewareCustom.AuthRateLimit(cfg.Auth.LoginRateLimitPerMinute),
	)

	// Background cleanup
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	throttleIdle := cfg.TwoFactor.OTPResendInterval * time.Duration(max(cfg.TwoFactor.OTPResendBurst, 1))
	cleanupManager := background.NewCleanupManager(logger,
		background.ExpiredCodesTask(otpRepo, time.Now),
		background.StaleEnrollmentsTask(twoFactorRepo, cfg.TwoFactor.EnrollmentTTL, time.Now),
		background.ExpiredSessionsTask(sessionRepo, time.Now),
		background.SweepTask("login_flows", flowRegistry.Sweep),
		background.SweepTask("otp_throttle", func() int {
			return throttle.Sweep(time.Now().Add(-throttleIdle))
		}),
	)
	if err := cleanupManager.Start(cleanupCtx, cfg.Auth.CleanupSchedule); err != nil {
		logger.Error("failed to start cleanup", slog.Any("error", err))
		os.Exit(1)
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newLocationResolver loads the configured location map. Without one every
// address resolves to the default home region, which leaves the unusual
// location signal quiet until a map is deployed.
func newLocationResolver(cfg config.RiskConfig, logger *slog.Logger) (location.Resolver, error) {
	if cfg.LocationMapFile != "" {
		return location.LoadStaticResolver(cfg.LocationMapFile)
	}
	logger.Warn("LOCATION_MAP_FILE not set, all addresses resolve to the default home region",
		slog.String("home_region", cfg.DefaultHomeRegion))
	return location.NewStaticResolver(nil, cfg.DefaultHomeRegion)
}

// newNotifier builds the out-of-band code channels for the configured mode
func newNotifier(cfg config.NotificationConfig, logger *slog.Logger) (services.NotificationChannel, error) {
	if cfg.Mode != "live" {
		logger.Warn("NOTIFICATION_MODE=log, one-time codes are written to the log")
		logSender := services.NewLogCodeSender(logger)
		return services.NewChannelRouter(map[models.Channel]services.CodeSender{
			models.ChannelSMS:   logSender,
			models.ChannelEmail: logSender,
		}), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	email, err := services.NewAWSSESEmailService(ctx, cfg.AWSRegion, cfg.EmailFromAddress, logger)
	if err != nil {
		return nil, err
	}
	sms := services.NewSMSGatewayService(&http.Client{Timeout: 10 * time.Second}, cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.SMSSenderID, logger)

	return services.NewChannelRouter(map[models.Channel]services.CodeSender{
		models.ChannelSMS:   sms,
		models.ChannelEmail: email,
	}), nil
}

// redisPinger adapts a Redis client to the health check
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
