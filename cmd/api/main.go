package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/medstore/internal/auth"
	"github.com/joao-fontenele/medstore/internal/cart"
	"github.com/joao-fontenele/medstore/internal/category"
	"github.com/joao-fontenele/medstore/internal/config"
	"github.com/joao-fontenele/medstore/internal/database"
	"github.com/joao-fontenele/medstore/internal/inventory"
	"github.com/joao-fontenele/medstore/internal/messaging"
	"github.com/joao-fontenele/medstore/internal/middleware"
	"github.com/joao-fontenele/medstore/internal/orders"
	"github.com/joao-fontenele/medstore/internal/storage"
	"github.com/joao-fontenele/medstore/internal/telemetry"
	"github.com/joao-fontenele/medstore/internal/users"
)

const serviceName = "medstore-api"

const devJWTSecret = "medstore-dev-secret"

func main() {
	ctx := context.Background()
	cfg := config.Load()
	logger := telemetry.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			logger.Error("JWT_SECRET environment variable is required in production")
			os.Exit(1)
		}
		logger.Warn("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = devJWTSecret
	}

	var shutdowns []telemetry.ShutdownFunc
	metricsHandler := http.NotFoundHandler()
	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		h, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
		if err != nil {
			logger.Error("failed to initialize meter", "error", err)
			os.Exit(1)
		}
		metricsHandler = h
		shutdowns = append(shutdowns, shutdownTracer, shutdownMeter)
	}
	shutdownTelemetry := telemetry.JoinShutdown(shutdowns...)

	db, err := database.Open(ctx, cfg.PostgresURL, database.Options{
		SearchPath:      cfg.DBSearchPath,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	txm := database.NewTxManager(db,
		database.WithStatementTimeout(cfg.StatementTimeout),
		database.WithLockTimeout(cfg.LockTimeout),
	)

	orderOpts := []orders.Option{}
	if cfg.StrictRestock {
		orderOpts = append(orderOpts, orders.WithRestockPolicy(orders.RestockStrict))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		orderOpts = append(orderOpts, orders.WithEventPublisher(producer))
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events disabled")
	}

	productRepo := inventory.NewRepository(db)
	orderService, err := orders.NewService(txm, productRepo, orders.NewRepository(db), logger, orderOpts...)
	if err != nil {
		logger.Error("failed to create order service", "error", err)
		os.Exit(1)
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authn := auth.NewMiddleware(issuer, logger)
	userService := users.NewService(users.NewRepository(db), issuer, logger)
	cartService := cart.NewService(cart.NewRepository(db), orderService, logger)

	objects, err := objectStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to prepare upload storage", "error", err)
		os.Exit(1)
	}
	uploads := storage.NewUploads(objects, cfg.MaxUploadBytes)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go limiter.Run(limiterCtx)

	productHandler := inventory.NewHandler(productRepo, logger)
	categoryHandler := category.NewHandler(category.NewRepository(db), logger)
	userHandler := users.NewHandler(userService, cfg.IsProduction(), logger)
	cartHandler := cart.NewHandler(cartService, logger)
	orderHandler := orders.NewHandler(orderService, orders.Policy{OwnerOnlyRead: cfg.OwnerOnlyOrderGet}, logger)
	uploadHandler := storage.NewHandler(uploads, cfg.MaxUploadBytes, logger)

	route := telemetry.WithHTTPRoute
	public := func(h http.HandlerFunc) http.Handler { return route(h) }
	user := func(h http.HandlerFunc) http.Handler { return authn.Authenticate(route(h)) }
	staff := func(h http.HandlerFunc) http.Handler { return authn.Staff(route(h)) }

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", public(healthHandler(db, logger)))
	mux.Handle("GET /metrics", metricsHandler)

	mux.Handle("GET /products", public(productHandler.HandleListProducts))
	mux.Handle("GET /products/{id}", public(productHandler.HandleGetProduct))
	mux.Handle("POST /products", staff(productHandler.HandleCreateProduct))
	mux.Handle("PUT /products/{id}", staff(productHandler.HandleUpdateProduct))
	mux.Handle("DELETE /products/{id}", staff(productHandler.HandleDeleteProduct))

	mux.Handle("GET /categories", public(categoryHandler.HandleList))
	mux.Handle("GET /categories/{id}", public(categoryHandler.HandleGet))
	mux.Handle("POST /categories", staff(categoryHandler.HandleCreate))

	mux.Handle("POST /auth/register", limiter.Limit(public(userHandler.HandleRegister)))
	mux.Handle("POST /auth/login", limiter.Limit(public(userHandler.HandleLogin)))
	mux.Handle("POST /auth/logout", public(userHandler.HandleLogout))
	mux.Handle("GET /auth/me", user(userHandler.HandleMe))
	mux.Handle("GET /users/me", user(userHandler.HandleMe))
	mux.Handle("PATCH /users/me", user(userHandler.HandleUpdateProfile))

	mux.Handle("GET /cart", user(cartHandler.HandleGet))
	mux.Handle("POST /cart/items", user(cartHandler.HandleAddItem))
	mux.Handle("PATCH /cart/items/{productId}", user(cartHandler.HandleUpdateItem))
	mux.Handle("DELETE /cart/items/{productId}", user(cartHandler.HandleRemoveItem))
	mux.Handle("POST /cart/sync", user(cartHandler.HandleSync))
	mux.Handle("POST /cart/checkout", authn.Authenticate(limiter.Limit(route(cartHandler.HandleCheckout))))

	mux.Handle("POST /orders", authn.Authenticate(limiter.Limit(route(orderHandler.HandleCreate))))
	mux.Handle("GET /orders", staff(orderHandler.HandleList))
	mux.Handle("GET /orders/my", user(orderHandler.HandleListMine))
	mux.Handle("GET /orders/{id}", user(orderHandler.HandleGet))
	mux.Handle("PATCH /orders/{id}/status", staff(orderHandler.HandleUpdateStatus))

	mux.Handle("POST /upload/image", user(uploadHandler.HandleUploadImage))
	mux.Handle("GET /upload/file/{key}", user(uploadHandler.HandleGetFile))

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(middleware.Logging(logger, mux), serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting api", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopLimiter()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
}

func healthHandler(db *sql.DB, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// objectStore uses the S3 bucket when an endpoint is configured and the
// uploads directory otherwise.
func objectStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.S3Endpoint == "" {
		logger.Info("storing uploads on disk", "dir", cfg.UploadsDir)
		return storage.NewLocal(cfg.UploadsDir)
	}

	s3, err := storage.NewS3(storage.S3Options{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("storing uploads in object storage", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	return s3, nil
}
