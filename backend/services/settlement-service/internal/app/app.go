package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	libredis "coursepay/backend/libs/redis"
	"coursepay/backend/services/settlement-service/internal/clients"
	"coursepay/backend/services/settlement-service/internal/config"
	"coursepay/backend/services/settlement-service/internal/db"
	httpserver "coursepay/backend/services/settlement-service/internal/http"
	"coursepay/backend/services/settlement-service/internal/http/handlers"
	"coursepay/backend/services/settlement-service/internal/http/middleware"
	"coursepay/backend/services/settlement-service/internal/memstore"
	"coursepay/backend/services/settlement-service/internal/models"
	redisstore "coursepay/backend/services/settlement-service/internal/redis"
	"coursepay/backend/services/settlement-service/internal/repository"
	"coursepay/backend/services/settlement-service/internal/service"
	"coursepay/backend/services/settlement-service/internal/ws"
)

const (
	createRetryDelay = 500 * time.Millisecond
	statusRetryDelay = time.Second
	writeRetryDelay  = 200 * time.Millisecond
	writeAttempts    = 3
)

// stores groups the persistence ports for one driver.
type stores struct {
	transactions service.TransactionStore
	enrollments  service.EnrollmentStore
	courses      service.CourseStore
	users        service.UserStore
	ledger       service.LedgerStore
	orders       service.OrderStore
	captures     clients.CaptureStore
}

// App wires settlement service dependencies.
type App struct {
	server  *httpserver.Server
	handler http.Handler
	alerts  *ws.Manager
	db      *sql.DB
	redis   *goredis.Client
	logger  *zap.Logger
}

// New constructs application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	st, err := a.openStores(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	pricer := service.NewPricer(service.PricingConfig{
		SettlementCurrency: cfg.Pricing.SettlementCurrency,
		ListedCurrency:     cfg.Pricing.ListedCurrency,
		ExchangeRate:       decimal.NewFromFloat(cfg.Pricing.ExchangeRate),
		FeeRate:            decimal.NewFromFloat(cfg.Pricing.FeeRate),
		CommissionRate:     decimal.NewFromFloat(cfg.Pricing.CommissionRate),
	})

	gateway := clients.NewGatewayClient(clients.GatewayConfig{
		BaseURL:  cfg.Gateway.BaseURL,
		ClientID: cfg.Gateway.ClientID,
		Secret:   cfg.Gateway.Secret,
		Timeout:  cfg.GatewayTimeout(),
	}, clients.NewDefaultHTTPClient(cfg.GatewayTimeout()), st.captures, logger)

	email := clients.NewEmailClient(clients.EmailConfig{
		BaseURL:     cfg.Email.BaseURL,
		ServiceID:   cfg.Email.ServiceID,
		PublicKey:   cfg.Email.PublicKey,
		AccessToken: cfg.Email.AccessToken,
		Timeout:     cfg.EmailTimeout(),
		Templates: map[models.NotificationKind]string{
			models.NotificationPayout:         cfg.Email.Templates.Payout,
			models.NotificationCoursePurchase: cfg.Email.Templates.CoursePurchase,
			models.NotificationMonthlyReport:  cfg.Email.Templates.MonthlyReport,
			models.NotificationWelcome:        cfg.Email.Templates.Welcome,
			models.NotificationTest:           cfg.Email.Templates.Test,
		},
	}, clients.NewDefaultHTTPClient(cfg.EmailTimeout()), logger)
	if !email.Configured() {
		logger.Warn("email provider not configured, notifications fall back to dashboard alerts")
	}

	a.alerts = ws.NewManager(cfg.AlertPingInterval())
	alertServer := ws.NewServer(a.alerts, func(r *http.Request) string {
		userID, _ := middleware.UserIDFromContext(r.Context())
		return userID
	}, cfg.AlertWriteTimeout(), logger)

	writeRetry := service.RetryPolicy{Attempts: writeAttempts, Delay: writeRetryDelay}
	notifier := service.NewNotifier(email, a.alerts, st.users, logger)
	settlement := service.NewSettlementService(service.SettlementDeps{
		Pricer:      pricer,
		Gateway:     gateway,
		Orders:      st.orders,
		Courses:     st.courses,
		Users:       st.users,
		Recorder:    service.NewRecorder(st.transactions, writeRetry, logger),
		Enrollments: service.NewEnrollmentService(st.enrollments, writeRetry, logger),
		Earnings:    service.NewEarningsService(st.courses, st.ledger, pricer, writeRetry, logger),
		Notifier:    notifier,
		CreateRetry: service.RetryPolicy{Attempts: cfg.Gateway.CreateAttempts, Delay: createRetryDelay},
		StatusRetry: service.RetryPolicy{Attempts: cfg.Gateway.StatusAttempts, Delay: statusRetryDelay},
	}, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		PurchaseHandlers:     handlers.NewPurchaseHandlers(settlement, logger),
		NotificationHandlers: handlers.NewNotificationHandlers(notifier, logger),
		AlertsHandler:        alertServer.HandleWS,
		HealthHandler:        handlers.NewHealthHandler(a.healthChecks()...),
		MetricsHandler:       promhttp.Handler(),
	}, middleware.AuthMiddleware(cfg.JWT.Secret), middleware.InternalAuthMiddleware(cfg.Internal.Token))
	if cfg.Internal.Token == "" {
		logger.Warn("internal token not set, /internal routes are disabled")
	}

	a.handler = router
	a.server = httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

func (a *App) openStores(cfg *config.Config) (*stores, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		a.logger.Warn("using in-memory store, data is lost on restart")
		mem := memstore.New(cfg.OrderTTL(), cfg.CaptureTTL())
		if path := strings.TrimSpace(cfg.Store.SeedFile); path != "" {
			users, courses, err := mem.LoadSeedFile(path)
			if err != nil {
				return nil, err
			}
			a.logger.Info("memory store seeded", zap.String("file", path), zap.Int("users", users), zap.Int("courses", courses))
		}
		return &stores{
			transactions: mem,
			enrollments:  mem,
			courses:      mem,
			users:        mem,
			ledger:       mem,
			orders:       mem,
			captures:     mem,
		}, nil
	}

	database, err := db.NewPostgres(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.db = database

	client, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = client

	orders := redisstore.NewOrderStore(client, cfg.OrderTTL(), cfg.CaptureTTL())
	return &stores{
		transactions: repository.NewTransactionRepository(database),
		enrollments:  repository.NewEnrollmentRepository(database),
		courses:      repository.NewCourseRepository(database),
		users:        repository.NewUserRepository(database),
		ledger:       repository.NewEarningsRepository(database),
		orders:       orders,
		captures:     orders,
	}, nil
}

func (a *App) healthChecks() []handlers.HealthCheck {
	var checks []handlers.HealthCheck
	if a.db != nil {
		checks = append(checks, handlers.HealthCheck{Name: "postgres", Check: a.db.PingContext})
	}
	if a.redis != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Run starts serving HTTP traffic.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases database and redis connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close postgres", zap.Error(err))
		}
	}
}
