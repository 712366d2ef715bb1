package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	internalhttp "github.com/2026musik-code/autoscrip/internal/api/http"
	"github.com/2026musik-code/autoscrip/internal/auth"
	grpcserver "github.com/2026musik-code/autoscrip/internal/grpc/server"
	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/secretbox"
	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/2026musik-code/autoscrip/internal/sweeper"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 2 * time.Minute
)

var AppVersion = "dev"

func main() {
	InitConfig()
	slog.Info("Starting autoscrip server", "version", AppVersion)

	cipher, err := secretbox.NewCipher(config.Crypto.Secret)
	if err != nil {
		slog.Error("Failed to initialize credential cipher, set CRYPTO_SECRET", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, config.Store)
	if err != nil {
		slog.Error("Failed to open store", "driver", config.Store.Driver, "error", err)
		os.Exit(1)
	}
	slog.Info("Store opened", "driver", config.Store.Driver)

	if config.SSH.ConnectTimeout <= 0 {
		config.SSH.ConnectTimeout = config.Provisioning.ConnectTimeout
	}
	dialer, err := remote.NewSSHDialer(config.SSH)
	if err != nil {
		slog.Error("Failed to initialize SSH dialer", "error", err)
		os.Exit(1)
	}

	ledger := license.NewLedger(st)
	sessions := session.NewRegistry()

	engine, err := provisioning.NewEngine(config.Provisioning, nil, dialer, st, ledger, cipher, sessions)
	if err != nil {
		slog.Error("Failed to initialize provisioning engine", "error", err)
		os.Exit(1)
	}

	var sw *sweeper.Sweeper
	if config.Sweeper.Enabled {
		sw = sweeper.New(config.Sweeper, st, dialer, cipher)
		sw.Start(ctx)
	}

	authService := auth.NewService(config.Http.AdminAPIKey, config.Auth)
	if !authService.Enabled() && config.Http.AdminAPIKey == "" {
		slog.Warn("No admin credentials configured, admin endpoints are disabled")
	}

	services := &internalhttp.Services{
		Store:    st,
		Engine:   engine,
		Ledger:   ledger,
		Sessions: sessions,
		HostOps:  hostops.NewService(config.Hostops, st, dialer, cipher),
		Auth:     authService,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(cors.New(corsConfig(config.Http.AllowedOrigins)))
	router.Use(gin.Recovery())
	internalhttp.SetupRoute(router, services, config.Http)

	// Cancelling the base context ends open event streams on shutdown.
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", config.Http.Port),
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	var grpcSrv *grpcserver.Server
	if config.Grpc.Enabled {
		grpcSrv = grpcserver.NewServer(config.Grpc)
	}

	errChan := make(chan error, 2)

	go func() {
		slog.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if grpcSrv != nil {
		go func() {
			slog.Info("gRPC server starting", "port", config.Grpc.Port)
			if err := grpcSrv.Start(); err != nil {
				errChan <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down servers...")
	if grpcSrv != nil {
		grpcSrv.SetServing(false)
	}
	cancelBase()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced to shutdown", "error", err)
		} else {
			slog.Info("HTTP server stopped gracefully")
		}
	}()

	if grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcSrv.StopWithTimeout(shutdownTimeout); err != nil {
				slog.Error("gRPC server forced to shutdown", "error", err)
			} else {
				slog.Info("gRPC server stopped gracefully")
			}
		}()
	}

	if sw != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sw.Stop()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := engine.Shutdown(drainCtx); err != nil {
			slog.Error("Provisioning runs still in flight at shutdown", "error", err)
		} else {
			slog.Info("Provisioning runs drained")
		}
	}()

	wg.Wait()

	if err := st.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
	slog.Info("Server exited")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-ID", "X-Session-ID", "X-Socket-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
