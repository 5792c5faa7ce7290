package main

import (
	"fmt"
	"io"

	"crimestats-chat/internal/config"
	"crimestats-chat/pkg/logger"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crimestats-chat",
		Short:         "Chat assistant for the crime statistics dashboards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径（为空时只使用默认值和环境变量）")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	return root
}

// loadConfig 加载配置并初始化日志
func loadConfig(logOutput io.Writer) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithOutput(cfg.Log.Level, cfg.Log.Format, logOutput); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
