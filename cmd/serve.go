package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crimestats-chat/internal/handler"
	"crimestats-chat/internal/model"
	"crimestats-chat/internal/service"
	"crimestats-chat/pkg/logger"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			chatModel, err := model.NewChatModel(ctx, cfg)
			if err != nil {
				return err
			}

			store, err := service.NewStorage(cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			chatService := service.NewChatService(store, service.NewResponder(chatModel, cfg.Agent), cfg)
			chatService.StartCleanup(ctx)

			router := handler.NewRouter(cfg, handler.NewChatHandler(chatService, cfg.Server))

			server := &http.Server{
				Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:        router,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Infof("Server listening on port %d (provider: %s)", cfg.Server.Port, cfg.Model.Provider)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Server shutdown failed: %v", err)
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "监听端口，覆盖配置文件")
	return cmd
}
