package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/tomasrv/tienda-backend/internal/app"
	"github.com/tomasrv/tienda-backend/internal/app/handlers"
	"github.com/tomasrv/tienda-backend/internal/auth/jwtmiddleware"
	"github.com/tomasrv/tienda-backend/internal/config"
	"github.com/tomasrv/tienda-backend/internal/gateway/webpay"
	"github.com/tomasrv/tienda-backend/internal/lib/logger"
	"github.com/tomasrv/tienda-backend/internal/lib/logger/handlers/urllog"
	"github.com/tomasrv/tienda-backend/internal/service"
	"github.com/tomasrv/tienda-backend/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	userRepo := storage.NewUserRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	discountRepo := storage.NewDiscountRepository(application.DB)

	// Explicitly constructed clients so tests can substitute doubles.
	gateway := webpay.New(webpay.Config{
		Environment:  cfg.Webpay.Environment,
		CommerceCode: cfg.Webpay.CommerceCode,
		APIKey:       cfg.Webpay.APIKey,
	})
	mailer := service.NewResendMailer(cfg.Notify.ResendAPIKey, cfg.Notify.From)
	notifier := service.NewNotifyService(log, mailer, cfg.Notify.OwnerEmail)

	authService := service.NewAuthService(log, userRepo, cfg.JWT.Secret, time.Duration(cfg.JWT.TokenTTL)*time.Minute)
	orderService := service.NewOrderService(log, orderRepo, discountRepo)
	webpayService := service.NewWebpayService(log, orderRepo, gateway, notifier,
		cfg.URLs.Backend+"/api/webpay/return")

	router.Post("/api/auth", handlers.AuthHandler(log, authService))

	// Gateway-facing endpoints carry no bearer token: the browser arrives
	// from the payment page.
	router.Route("/api/webpay", func(r chi.Router) {
		r.Post("/create", handlers.CreateWebpayHandler(log, webpayService))
		r.Post("/return", handlers.ReturnWebpayHandler(log, cfg.URLs.Frontend))
		r.Get("/return", handlers.ReturnWebpayHandler(log, cfg.URLs.Frontend))
		r.Post("/commit", handlers.CommitWebpayHandler(log, webpayService))
	})

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.New(cfg.JWT.Secret))
		r.Post("/api/transactions", handlers.CreateOrderHandler(log, orderService))
		r.Get("/api/transactions", handlers.ListOrdersHandler(log, orderService))
		r.Get("/api/transactions/{orderID}", handlers.GetOrderHandler(log, orderService))
		r.Patch("/api/transactions/{orderID}/status", handlers.UpdateStatusHandler(log, orderService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
