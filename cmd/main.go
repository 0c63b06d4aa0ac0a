package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/ngo-portal/event-chat/config"
	"github.com/ngo-portal/event-chat/internal/auth"
	"github.com/ngo-portal/event-chat/internal/badgerdb"
	"github.com/ngo-portal/event-chat/internal/postgres"
	"github.com/ngo-portal/event-chat/internal/service"
	grpcx "github.com/ngo-portal/event-chat/internal/transport/grpc"
	httpx "github.com/ngo-portal/event-chat/internal/transport/http"
	"github.com/ngo-portal/event-chat/internal/transport/ws"
	"github.com/ngo-portal/event-chat/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("event-chat stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

// repositories is what the chat needs from a storage driver.
type repositories struct {
	events   service.EventReader
	users    auth.UserReader
	messages service.MessageRepository
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.Storage.Driver {
	case "badger":
		store, err := badgerdb.Open(cfg.Storage.BadgerPath, badgerdb.WithLogger(slog.Default().With("component", "badger")))
		if err != nil {
			return nil, err
		}
		if cfg.Storage.SeedFile != "" {
			if err := store.LoadSeedFile(ctx, cfg.Storage.SeedFile); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		return &repositories{
			events:   store,
			users:    store,
			messages: store,
			close: func() {
				if err := store.Close(); err != nil {
					slog.Warn("badger close failed", "err", err)
				}
			},
		}, nil

	default:
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			return nil, err
		}
		return &repositories{
			events:   postgres.NewEventRepository(db.Pool),
			users:    postgres.NewUserRepository(db.Pool),
			messages: postgres.NewMessageRepository(db.Pool),
			close:    db.Close,
		}, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting event-chat",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	// --- storage ---
	repos, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer repos.close()

	// --- services ---
	membership := service.NewMembershipService(repos.events)
	chatSvc := service.NewChatService(membership, repos.messages,
		service.WithHistoryLimit(cfg.Chat.HistoryLimit),
		service.WithMaxContentLength(cfg.Chat.MaxContentLength),
	)
	resolver := auth.NewResolver(
		auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.ClockSkew),
		repos.users,
	)

	// --- WS Hub & Server ---
	hub := ws.NewHub(slog.Default().With("component", "ws"))
	wsServer := ws.NewServer(hub, resolver, chatSvc, ws.Config{
		PingInterval: cfg.Chat.PingInterval,
		WriteTimeout: cfg.Chat.WriteTimeout,
		ReadLimit:    cfg.Chat.ReadLimit,
		SendBuffer:   cfg.Chat.SendBuffer,
	}, slog.Default().With("component", "ws"))

	// --- HTTP ---
	var ready atomic.Bool
	ready.Store(true)
	router := httpx.NewRouter(httpx.NewHandler(chatSvc), resolver, wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Ready:          ready.Load,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(cfg.GRPC.CallTimeout)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	go func() {
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	// --- graceful shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case runErr = <-errCh:
		slog.Error("server error", "err", runErr)
	}

	ready.Store(false)
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	grpcSrv.Shutdown(ctxShutdown)
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	// hijacked websocket connections are not covered by http.Server.Shutdown
	if err := wsServer.Close(ctxShutdown); err != nil {
		slog.Warn("ws shutdown", "err", err, "open", hub.Connections())
	}

	return runErr
}
