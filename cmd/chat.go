package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatvk/chatvk/internal/chatview"
	"github.com/chatvk/chatvk/internal/route"
	"github.com/chatvk/chatvk/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the chat screen (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, runChat)
		},
	}
}

// runChat starts the interactive chat mode.
func runChat(cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return a.chatLoop(ctx, useTUI)
}

// chatLoop renders screens until the user quits: the chat screen when a
// session exists, the login prompt otherwise. Leaving the chat screen for
// the login route (logout or an expired token) loops back to the prompt.
func (a *app) chatLoop(ctx context.Context, fullScreen bool) error {
	next := route.Resolve(string(route.Root), a.auth)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		switch next {
		case route.Login, route.Signup:
			if err := a.login(ctx, next == route.Signup); err != nil {
				return err
			}
			next = route.Resolve(string(route.Chat), a.auth)
		case route.Chat:
			r, err := a.chatScreen(ctx, fullScreen)
			if err != nil {
				return err
			}
			if r == "" {
				return nil
			}
			a.logger.Info("leaving chat screen", zap.String("to", string(r)))
			if r == route.Login && a.auth.Authenticated() {
				fmt.Fprintln(a.out, "Session rejected by the server, please log in again.")
			}
			next = r
		default:
			next = route.Resolve(string(next), a.auth)
		}
	}
}

// chatScreen runs one chat view until it quits or navigates away.
func (a *app) chatScreen(ctx context.Context, fullScreen bool) (route.Route, error) {
	view := chatview.New(a.client, a.auth, a.bridge, chatview.WithLogger(a.logger.Named("chat")))

	if fullScreen {
		return tui.Run(ctx, view, a.bridge, tui.Config{
			Version:     displayVersion(),
			BaseURL:     a.cfg.BaseURL,
			Markdown:    a.cfg.UI.Markdown,
			ShowWelcome: a.cfg.UI.ShowWelcome,
		})
	}
	return tui.NewPlain(view, a.bridge, a.in, a.out).Run(ctx)
}
