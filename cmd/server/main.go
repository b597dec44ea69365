package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voiceorder/printspool/internal/api/handlers"
	"github.com/voiceorder/printspool/internal/api/middleware"
	"github.com/voiceorder/printspool/internal/config"
	"github.com/voiceorder/printspool/internal/db"
	"github.com/voiceorder/printspool/internal/pipeline"
	"github.com/voiceorder/printspool/internal/printer"
)

func main() {
	configFile := flag.String("config", "printspool.yaml", "path to config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		log.Printf("[server] fatal: %v", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(db.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[server] database connected (%s)", cfg.Database.Driver)

	jobStore := db.NewSQLJobStore(conn, cfg.Database.Driver)
	orderStore := db.NewSQLOrderStore(conn)

	provider, queueMode := buildProvider(cfg.Printer)
	pipe := pipeline.New(jobStore, provider, queueMode)

	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.AdminPasswordHash, cfg.Auth.AgentTokens)
	orderHandler := handlers.NewOrderHandler(orderStore, pipe)
	agentHandler := handlers.NewAgentHandler(jobStore)
	adminHandler := handlers.NewAdminHandler(jobStore, orderStore, pipe)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/auth/login", auth.LoginHandler)

	api := r.Group("/api", auth.RequireAgent())
	{
		api.POST("/orders/confirmed", orderHandler.OrderConfirmed)
		api.GET("/agent/print-jobs/next", agentHandler.ClaimNext)
		api.POST("/agent/print-jobs/report", agentHandler.ReportStatus)
	}

	admin := r.Group("/api/admin/orgs/:org", auth.RequireAdmin())
	{
		admin.GET("/print-jobs", adminHandler.ListJobs)
		admin.GET("/print-jobs/:id", adminHandler.GetJob)
		admin.POST("/print-jobs/:id/retry", adminHandler.RetryJob)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on :%d (printer mode %s)", cfg.Server.Port, cfg.Printer.Mode)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("[server] shutdown signal: %v", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Printf("[server] stopped")
	return nil
}

// buildProvider resolves the delivery path once per process. In agent_poll
// mode jobs wait in the store for the polling agent, so the provider is
// never invoked for new orders.
func buildProvider(cfg config.PrinterConfig) (printer.Provider, bool) {
	switch cfg.Mode {
	case config.PrinterModeAgentPush:
		return printer.NewAgentPushProvider(printer.AgentPushConfig{
			BaseURL:   cfg.AgentURL,
			AuthToken: cfg.AgentToken,
			Timeout:   cfg.SendTimeout,
		}), false
	case config.PrinterModeAgentPoll:
		return printer.NewMockProvider(""), true
	default:
		return printer.NewMockProvider(cfg.MockOutputPath), false
	}
}
