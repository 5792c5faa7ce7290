package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"crimestats-chat/internal/client"
	"crimestats-chat/internal/render"
	"crimestats-chat/internal/service"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	commandNew  = "/new"
	commandQuit = "/quit"
)

func newChatCmd() *cobra.Command {
	var (
		endpoint string
		plain    bool
		width    int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a running backend from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 日志写 stderr，不和对话输出混在一起
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Widget.Endpoint = endpoint
			}

			styled := !plain && isatty.IsTerminal(os.Stdout.Fd())
			display, err := render.NewTerminalDisplay(cmd.OutOrStdout(), width, styled)
			if err != nil {
				return err
			}

			conversation := service.NewConversation(
				client.NewStreamClient(cfg.Widget.Endpoint, cfg.Widget.RequestTimeout),
				display,
				&cfg.Widget,
			)

			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s. Type %s to start over, %s to exit.\n",
				cfg.Widget.Endpoint, commandNew, commandQuit)
			return runChat(cmd.Context(), cmd.InOrStdin(), conversation)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "流式接口地址，覆盖 widget.endpoint")
	cmd.Flags().BoolVar(&plain, "plain", false, "不输出 ANSI 样式")
	cmd.Flags().IntVar(&width, "width", 80, "markdown 换行宽度")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, conversation *service.Conversation) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case commandQuit:
			return nil
		case commandNew:
			conversation.Reset()
			continue
		}

		conversation.Submit(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}
