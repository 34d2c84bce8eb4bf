package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/chatvk/chatvk/internal/chatview"
	"github.com/chatvk/chatvk/internal/route"
)

// Plain drives the chat view from lines of text. It is used when stdin is
// not a terminal or the full-screen UI is disabled.
type Plain struct {
	view   *chatview.View
	bridge *Bridge
	in     *bufio.Reader
	out    io.Writer
}

// NewPlain creates a line-mode chat on in and out. A *bufio.Reader is used
// as is, so a caller sharing it with other prompts loses no buffered input.
func NewPlain(view *chatview.View, bridge *Bridge, in io.Reader, out io.Writer) *Plain {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}
	return &Plain{view: view, bridge: bridge, in: br, out: out}
}

// Run reads commands until EOF, /quit, or a navigation away from the chat
// screen. It returns the requested route, or "" when the user quit.
func (p *Plain) Run(ctx context.Context) (route.Route, error) {
	p.bridge.Reset()

	if err := p.view.Mount(ctx); err != nil && !chatapi.IsUnauthorized(err) {
		fmt.Fprintf(p.out, "error: %v\n", err)
	}
	if next := p.bridge.Next(); next != "" {
		return next, nil
	}
	snap := p.view.Snapshot()
	fmt.Fprintf(p.out, "Signed in as %s. %d conversations. Type /help for commands.\n", snap.UserName, len(snap.Conversations))

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(p.out, "\n> ")
		raw, err := p.in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || raw == "") {
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			return "", err
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		quit, err := p.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(p.out, "error: %v\n", err)
		}
		if next := p.bridge.Next(); next != "" {
			return next, nil
		}
		if quit {
			return "", nil
		}
	}
}

func (p *Plain) handle(ctx context.Context, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return false, p.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(p.out, renderHelp(commands()))
	case "/new":
		conv, err := p.view.NewConversation(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(p.out, "Created conversation %d.\n", conv.ID)
	case "/list":
		p.printConversations()
	case "/open":
		id, err := parseID(arg)
		if err != nil {
			return false, err
		}
		if err := p.view.Select(ctx, id); err != nil {
			return false, err
		}
		snap := p.view.Snapshot()
		fmt.Fprintf(p.out, "── %s ──\n", snap.Title())
		PrintMessages(p.out, snap.Messages)
	case "/delete":
		id, err := parseID(arg)
		if err != nil {
			return false, err
		}
		if err := p.view.Delete(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(p.out, "Deleted conversation %d.\n", id)
	case "/whoami":
		fmt.Fprintln(p.out, p.view.Snapshot().UserName)
	case "/logout":
		return false, p.view.Logout()
	default:
		return false, unknownCommand(cmd)
	}
	return false, nil
}

func (p *Plain) send(ctx context.Context, text string) error {
	p.view.SetInput(text)
	fmt.Fprintln(p.out, "Thinking…")
	pending, err := p.view.Submit(ctx)
	if err != nil {
		if alert := p.view.Snapshot().Alert; alert != "" {
			p.view.DismissAlert()
			return errors.New(alert)
		}
		return err
	}
	if pending == nil {
		return nil
	}

	// Print the server's view of the turn: everything after the last
	// user message.
	msgs := p.view.Snapshot().Messages
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chatapi.RoleUser {
			start = i + 1
			break
		}
	}
	PrintMessages(p.out, msgs[start:])
	return nil
}

func (p *Plain) printConversations() {
	snap := p.view.Snapshot()
	if len(snap.Conversations) == 0 {
		fmt.Fprintln(p.out, "No conversations.")
		return
	}
	PrintConversations(p.out, snap.Conversations, snap.ActiveID)
}

// PrintConversations writes one line per conversation, marking active.
func PrintConversations(w io.Writer, convs []chatapi.Conversation, active int64) {
	for _, c := range convs {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		title := c.Title
		if strings.TrimSpace(title) == "" {
			title = "New Chat"
		}
		created := ""
		if !c.CreatedAt.IsZero() {
			created = c.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s %5d  %-16s  %s\n", marker, c.ID, created, truncateTitle(title, 60))
	}
}

// PrintMessages writes messages as "role: content" blocks.
func PrintMessages(w io.Writer, items []chatview.Item) {
	for _, it := range items {
		label := "You"
		if it.Role == chatapi.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(w, "%s: %s\n", label, it.Content)
	}
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("missing conversation id")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}
