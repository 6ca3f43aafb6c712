package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/medstore/internal/config"
	"github.com/joao-fontenele/medstore/internal/email"
	"github.com/joao-fontenele/medstore/internal/middleware"
	"github.com/joao-fontenele/medstore/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	handler := email.NewHandler(logger, 200*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", handler.HandleSend)
	mux.HandleFunc("GET /messages", handler.HandleList)

	port := os.Getenv("EMAIL_PORT")
	if port == "" {
		port = "8084"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      middleware.Logging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting email service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
