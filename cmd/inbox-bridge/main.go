package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clippy-oss/homie/inbox-bridge/internal/api"
	"github.com/clippy-oss/homie/inbox-bridge/internal/auth"
	"github.com/clippy-oss/homie/inbox-bridge/internal/binding"
	"github.com/clippy-oss/homie/inbox-bridge/internal/cli"
	"github.com/clippy-oss/homie/inbox-bridge/internal/config"
	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
	"github.com/clippy-oss/homie/inbox-bridge/internal/service"
	grpcTransport "github.com/clippy-oss/homie/inbox-bridge/internal/transport/grpc"
	mcpTransport "github.com/clippy-oss/homie/inbox-bridge/internal/transport/mcp"
	"github.com/clippy-oss/homie/inbox-bridge/internal/transport/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Keep CLI modes quiet unless asked otherwise
	level := cfg.LogLevel
	if cfg.Mode != config.ModeServer && level == "info" {
		level = "error"
	}
	logger.Init(level)
	log := logger.Module("main")

	eventBus := domain.NewEventBus()

	registry := stream.NewRegistry(stream.Config{URL: cfg.StreamURL})
	defer registry.CloseAll()

	apiCfg := api.ClientConfig{
		BaseURL:           cfg.APIURL,
		ConversationsPath: cfg.ConversationsPath,
		Timeout:           cfg.FetchTimeout,
	}
	sources := func(id domain.Identity) (service.ConversationSource, error) {
		client, err := api.NewClient(apiCfg, id.Token)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	manager := service.NewSessionManager(registry, sources, eventBus, service.SessionManagerConfig{
		FetchTimeout: cfg.FetchTimeout,
		QueueSize:    cfg.QueueSize,
	})
	defer manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	if cfg.Token != "" {
		identity, err := auth.ResolveIdentity(cfg.Token, cfg.UserID)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid startup identity")
		}
		if err := manager.SetIdentity(ctx, identity); err != nil {
			log.Warn().Err(err).Str("user_id", identity.UserID).Msg("initial conversation load failed, will retry on resync")
		}
	}

	list := binding.NewConversationList(manager, eventBus)
	defer list.Close()
	badge := binding.NewBadge(manager, eventBus, cfg.BadgeCap)
	defer badge.Close()

	switch cfg.Mode {
	case config.ModeInteractive:
		handler := cli.NewCommandHandler(manager, list, badge, eventBus)
		if err := cli.NewInteractiveCLI(handler).Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("CLI error")
		}
	case config.ModeHeadless:
		handler := cli.NewCommandHandler(manager, list, badge, eventBus)
		if err := cli.NewHeadlessCLI(handler).Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("CLI error")
		}
	default:
		runServerMode(ctx, cfg, manager, eventBus)
	}
}

func runServerMode(ctx context.Context, cfg *config.Config, manager *service.SessionManager, eventBus domain.EventBus) {
	log := logger.Module("main")
	log.Info().
		Str("api_url", cfg.APIURL).
		Str("stream_url", cfg.StreamURL).
		Str("grpc_address", cfg.GRPCAddress).
		Str("mcp_address", cfg.MCPAddress).
		Msg("inbox bridge starting")

	grpcServer := grpcTransport.NewServer(eventBus, manager, grpcTransport.ServerConfig{
		Address: cfg.GRPCAddress,
	})
	mcpServer := mcpTransport.NewServer(manager, mcpTransport.ServerConfig{
		Address:  cfg.MCPAddress,
		BadgeCap: cfg.BadgeCap,
	})

	// Error channel for server errors
	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("address", cfg.GRPCAddress).Msg("starting gRPC health server")
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		log.Info().Str("address", cfg.MCPAddress).Msg("starting MCP SSE server")
		if err := mcpServer.Start(); err != nil {
			errCh <- fmt.Errorf("MCP server error: %w", err)
		}
	}()

	if manager.Identity().IsZero() {
		log.Info().Msg("no token configured, starting logged out")
	}

	// Print ready message for subprocess coordination
	fmt.Println("ready")

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping gRPC server")
	grpcServer.Stop()

	log.Info().Msg("stopping MCP server")
	if err := mcpServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("MCP server stop error")
	}

	log.Info().Msg("shutdown complete")
}
