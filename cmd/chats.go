package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatvk/chatvk/internal/chatview"
	"github.com/chatvk/chatvk/internal/route"
	"github.com/chatvk/chatvk/internal/tui"
	"github.com/spf13/cobra"
)

func newChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.listChats(cmd.Context())
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Create an empty conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.newChat(cmd.Context())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.deleteChat(cmd.Context(), id)
			})
		},
	})
	return cmd
}

func newMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.printMessages(cmd.Context(), id)
			})
		},
	}
}

func newSendCmd() *cobra.Command {
	var (
		chatID  int64
		message string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and print the reply",
		Example: `  chatvk send -m "what is a goroutine?"
  chatvk send --chat 12 -m "and a channel?"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("--message / -m is required")
			}
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.sendOnce(cmd.Context(), chatID, message)
			})
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat", 0, "conversation id (default: create a new one)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "the message to send")
	cmd.MarkFlagRequired("message")

	return cmd
}

// oneShotView builds a chat view for a single command. The bridge has no
// program attached, so navigation is only recorded.
func (a *app) oneShotView() *chatview.View {
	a.bridge.Reset()
	return chatview.New(a.client, a.auth, a.bridge, chatview.WithLogger(a.logger.Named("chat")))
}

// sessionErr maps a recorded redirect to login onto an error.
func (a *app) sessionErr(err error) error {
	if a.bridge.Next() == route.Login {
		return errors.New("session expired or rejected (run `chatvk login`)")
	}
	return err
}

// selectChat loads the conversation list and makes id active. Ids the
// server does not list are rejected.
func (a *app) selectChat(ctx context.Context, view *chatview.View, id int64) error {
	if err := view.LoadConversations(ctx); err != nil {
		return a.sessionErr(err)
	}
	if err := view.Select(ctx, id); err != nil {
		return a.sessionErr(err)
	}
	return nil
}

func (a *app) listChats(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	view := a.oneShotView()
	if err := view.LoadConversations(ctx); err != nil {
		return a.sessionErr(err)
	}
	snap := view.Snapshot()
	if len(snap.Conversations) == 0 {
		fmt.Fprintln(a.out, "No conversations.")
		return nil
	}
	tui.PrintConversations(a.out, snap.Conversations, 0)
	return nil
}

func (a *app) newChat(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	conv, err := a.oneShotView().NewConversation(ctx)
	if err != nil {
		return a.sessionErr(err)
	}
	fmt.Fprintf(a.out, "Created conversation %d.\n", conv.ID)
	return nil
}

func (a *app) deleteChat(ctx context.Context, id int64) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.oneShotView().Delete(ctx, id); err != nil {
		return a.sessionErr(err)
	}
	fmt.Fprintf(a.out, "Deleted conversation %d.\n", id)
	return nil
}

func (a *app) printMessages(ctx context.Context, id int64) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	view := a.oneShotView()
	if err := a.selectChat(ctx, view, id); err != nil {
		return err
	}
	msgs := view.Snapshot().Messages
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "No messages.")
		return nil
	}
	tui.PrintMessages(a.out, msgs)
	return nil
}

// sendOnce runs the chat screen's send flow once: select (or auto-create)
// the conversation, send, then print the reconciled message list.
func (a *app) sendOnce(ctx context.Context, chatID int64, text string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	view := a.oneShotView()
	if chatID > 0 {
		if err := a.selectChat(ctx, view, chatID); err != nil {
			return err
		}
	}

	view.SetInput(text)
	if _, err := view.Submit(ctx); err != nil {
		if alert := view.Snapshot().Alert; alert != "" {
			return a.sessionErr(errors.New(alert))
		}
		return a.sessionErr(err)
	}

	snap := view.Snapshot()
	fmt.Fprintf(a.out, "── %s (#%d) ──\n", snap.Title(), snap.ActiveID)
	tui.PrintMessages(a.out, snap.Messages)
	return nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}
