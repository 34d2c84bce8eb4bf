package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/chatvk/chatvk/internal/chatview"
	"github.com/chatvk/chatvk/internal/route"
)

// Config carries what the chat screen shows besides the view state.
type Config struct {
	Version     string
	BaseURL     string
	Markdown    bool
	ShowWelcome bool
}

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

const (
	maxSidebarWidth = 32
	minMainWidth    = 30
	maxPreviewLines = 4
)

// ---------- messages from view commands ----------

type opDoneMsg struct {
	op  string
	err error
}

type submitDoneMsg struct {
	pending *chatview.PendingSend
	err     error
}

type copiedMsg struct {
	n   int
	err error
}

// ---------- Model ----------

// Model is the bubbletea model for the chat screen. Conversation and
// message state lives in the chatview.View; the model keeps a snapshot of it
// plus purely visual state.
type Model struct {
	ctx  context.Context
	view *chatview.View
	cfg  Config
	snap chatview.Snapshot

	textinput textinput.Model
	spinner   spinner.Model
	viewport  viewport.Model

	width  int
	height int

	focus      focusArea
	cursor     int
	submitting bool
	spinning   bool
	notice     string
	quitting   bool

	lastCount int
	md        *markdownCache
}

// NewModel creates the chat screen model for view.
func NewModel(ctx context.Context, view *chatview.View, cfg Config) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.Placeholder = "Type your message..."
	ti.CharLimit = 8192
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = thinkingSpinner
	sp.Style = spinnerStyle

	return Model{
		ctx:       ctx,
		view:      view,
		cfg:       cfg,
		snap:      view.Snapshot(),
		textinput: ti,
		spinner:   sp,
		viewport:  viewport.New(0, 0),
		lastCount: -1,
		md:        &markdownCache{entries: map[string]string{}},
	}
}

func (m Model) Init() tea.Cmd {
	v, ctx := m.view, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "load", err: v.Mount(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if m.submitting || m.snap.Loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		} else {
			m.spinning = false
		}

	case refreshMsg, opDoneMsg:
		m.refresh()

	case submitDoneMsg:
		m.submitting = false
		m.refresh()
		// Auto-create failed before anything was shown: the text is still
		// in the view's buffer.
		if msg.pending == nil && msg.err != nil && m.textinput.Value() == "" {
			m.textinput.SetValue(m.snap.Input)
			m.textinput.CursorEnd()
		}

	case copiedMsg:
		switch {
		case msg.err != nil:
			m.notice = "copy failed: " + msg.err.Error()
		case msg.n == 0:
			m.notice = "no reply to copy"
		default:
			m.notice = fmt.Sprintf("copied %d characters", msg.n)
		}

	case navigateMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)
		if m.quitting {
			return m, tea.Batch(cmds...)
		}
	}

	if (m.submitting || m.snap.Loading) && !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	m.layout()
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	s := msg.String()
	if isTerminalNoiseKey(s) {
		return m, nil
	}

	switch s {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "ctrl+n":
		m.setFocus(focusInput)
		return m, m.run("new", func(ctx context.Context) error {
			_, err := m.view.NewConversation(ctx)
			return err
		})
	case "ctrl+l":
		return m, m.run("logout", func(context.Context) error {
			return m.view.Logout()
		})
	case "ctrl+y":
		return m, copyLastReply(m.snap)
	case "ctrl+d":
		id := m.snap.ActiveID
		if m.focus == focusSidebar {
			id = m.cursorID()
		}
		if id == 0 {
			return m, nil
		}
		return m, m.run("delete", func(ctx context.Context) error {
			return m.view.Delete(ctx, id)
		})
	case "tab", "shift+tab":
		if m.focus == focusInput {
			m.setFocus(focusSidebar)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil
	case "esc":
		m.notice = ""
		m.setFocus(focusInput)
		if m.snap.Alert == "" {
			return m, nil
		}
		// DismissAlert notifies the bridge, which sends back into this
		// loop, so it must not run inside Update.
		return m, m.run("dismiss", func(context.Context) error {
			m.view.DismissAlert()
			return nil
		})
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSidebar {
		switch s {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.snap.Conversations)-1 {
				m.cursor++
			}
		case "enter":
			id := m.cursorID()
			if id == 0 {
				return m, nil
			}
			m.setFocus(focusInput)
			return m, m.run("select", func(ctx context.Context) error {
				return m.view.Select(ctx, id)
			})
		}
		return m, nil
	}

	if s == "enter" {
		return m.submit()
	}
	if isControlKeyMsg(s) {
		return m, nil
	}
	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	return m, cmd
}

// submit hands the input to the view. A second enter while a send is in
// flight is ignored and keeps the typed text.
func (m Model) submit() (Model, tea.Cmd) {
	text := m.textinput.Value()
	if m.submitting || strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.submitting = true
	m.notice = ""
	m.view.SetInput(text)
	m.textinput.Reset()

	v, ctx := m.view, m.ctx
	return m, func() tea.Msg {
		p, err := v.Submit(ctx)
		return submitDoneMsg{pending: p, err: err}
	}
}

func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) setFocus(f focusArea) {
	m.focus = f
	if f == focusSidebar {
		m.textinput.Blur()
		m.cursor = m.activeIndex()
		return
	}
	m.textinput.Focus()
}

func (m *Model) refresh() {
	m.snap = m.view.Snapshot()
	if m.cursor >= len(m.snap.Conversations) {
		m.cursor = len(m.snap.Conversations) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) activeIndex() int {
	for i, c := range m.snap.Conversations {
		if c.ID == m.snap.ActiveID {
			return i
		}
	}
	return 0
}

func (m Model) cursorID() int64 {
	if m.cursor < 0 || m.cursor >= len(m.snap.Conversations) {
		return 0
	}
	return m.snap.Conversations[m.cursor].ID
}

func copyLastReply(snap chatview.Snapshot) tea.Cmd {
	var text string
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == chatapi.RoleAssistant {
			text = snap.Messages[i].Content
			break
		}
	}
	return func() tea.Msg {
		if text == "" {
			return copiedMsg{}
		}
		if err := clipboard.WriteAll(text); err != nil {
			return copiedMsg{err: err}
		}
		return copiedMsg{n: len([]rune(text))}
	}
}

// ---------- layout ----------

func sidebarWidth(total int) int {
	w := total / 4
	if w > maxSidebarWidth {
		w = maxSidebarWidth
	}
	if total-w-1 < minMainWidth {
		w = total - minMainWidth - 1
	}
	if w < 12 {
		return 0
	}
	return w
}

func (m Model) mainWidth() int {
	sw := sidebarWidth(m.width)
	if sw == 0 {
		return m.width
	}
	return m.width - sw - 1
}

// bodyHeight is the height above the two-line status bar.
func (m Model) bodyHeight() int {
	h := m.height - 2
	if h < 4 {
		h = 4
	}
	return h
}

func (m Model) inputPreview() string {
	return renderWrappedInputPreview(m.textinput.Value(), m.mainWidth()-2, maxPreviewLines)
}

// layout sizes the input and viewport and refreshes the viewport content.
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	mw := m.mainWidth()
	m.textinput.Width = mw - 4

	// header + live line + input
	fixed := 3
	if p := m.inputPreview(); p != "" {
		fixed += lipgloss.Height(p)
	}
	vh := m.bodyHeight() - fixed
	if vh < 1 {
		vh = 1
	}
	m.viewport.Width = mw
	m.viewport.Height = vh

	follow := m.viewport.AtBottom() || len(m.snap.Messages) != m.lastCount
	m.viewport.SetContent(m.renderMessages(mw, vh))
	if follow {
		m.viewport.GotoBottom()
	}
	m.lastCount = len(m.snap.Messages)
}

// ---------- rendering ----------

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading…"
	}

	mw := m.mainWidth()
	var main []string
	main = append(main, headerStyle.Width(mw).Render(truncateTitle(m.snap.Title(), mw-2)))
	main = append(main, m.viewport.View())
	main = append(main, m.renderLive())
	if p := m.inputPreview(); p != "" {
		main = append(main, p)
	}
	main = append(main, m.textinput.View())
	mainPane := lipgloss.JoinVertical(lipgloss.Left, main...)

	body := mainPane
	if sw := sidebarWidth(m.width); sw > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(sw, m.bodyHeight()), mainPane)
	}
	return body + "\n" + m.renderStatusBar()
}

func (m Model) renderLive() string {
	switch {
	case m.snap.Alert != "":
		return errorStyle.Render("Error: "+m.snap.Alert) + hintStyle.Render("  esc to dismiss")
	case m.submitting || m.snap.Loading:
		return spinnerStyle.Render(m.spinner.View()) + hintStyle.Render(" Thinking…")
	case m.notice != "":
		return systemStyle.Render(m.notice)
	}
	return ""
}

func (m Model) renderSidebar(width, height int) string {
	inner := width - 1
	var b strings.Builder
	b.WriteString(sidebarTitleStyle.Render(" Chats") + "\n")
	b.WriteString(hintStyle.Render(truncateTitle(" + New Chat (ctrl+n)", inner)) + "\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", inner)) + "\n")

	for i, c := range m.snap.Conversations {
		marker := "  "
		if c.ID == m.snap.ActiveID {
			marker = "• "
		}
		title := c.Title
		if strings.TrimSpace(title) == "" {
			title = "New Chat"
		}
		line := padRight(marker+truncateTitle(title, inner-3), inner)

		switch {
		case m.focus == focusSidebar && i == m.cursor:
			line = chatCursorStyle.Render(line)
		case c.ID == m.snap.ActiveID:
			line = chatActiveStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if len(m.snap.Conversations) == 0 {
		b.WriteString(hintStyle.Render(" no conversations") + "\n")
	}

	return sidebarStyle.Width(width).Height(height).MaxHeight(height).
		Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderMessages(width, height int) string {
	if m.snap.Empty() {
		if !m.cfg.ShowWelcome {
			return ""
		}
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, renderWelcome(m.cfg))
	}

	var blocks []string
	for _, it := range m.snap.Messages {
		blocks = append(blocks, m.renderItem(it, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderItem(it chatview.Item, width int) string {
	if it.Role == chatapi.RoleAssistant {
		body := it.Content
		if m.cfg.Markdown {
			body = m.md.render(body, width)
		} else {
			body = strings.Join(wrapByDisplayWidth(body, width-2), "\n")
		}
		return assistantStyle.Render("Assistant") + "\n" + body
	}

	label := userStyle.Render("You")
	body := strings.Join(wrapByDisplayWidth(it.Content, width-2), "\n")
	if it.Pending {
		label += hintStyle.Render(" (sending)")
		body = pendingStyle.Render(body)
	}
	return label + "\n" + body
}

// renderStatusBar renders the bottom separator and the user/server bar.
func (m Model) renderStatusBar() string {
	status := statusUserStyle.Render(" "+m.snap.UserName) +
		statusBarStyle.Render(fmt.Sprintf("│ %d chats", len(m.snap.Conversations)))
	if m.cfg.BaseURL != "" {
		status += statusBarStyle.Render("│ " + m.cfg.BaseURL)
	}
	status += statusBarStyle.Render("│ tab chats  ctrl+n new  ctrl+d delete  ctrl+y copy  ctrl+l logout")
	return separatorStyle.Width(m.width).Render(strings.Repeat("─", m.width)) + "\n" +
		statusBarBgStyle.Width(m.width).MaxWidth(m.width).Render(status)
}

func renderWelcome(cfg Config) string {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	lines := []string{
		welcomeTitleStyle.Render("Welcome to Chat.VK"),
		"",
		welcomeHintStyle.Render("Start a conversation"),
		welcomeHintStyle.Render("type a message and press enter"),
		"",
		hintStyle.Render("chatvk " + version),
	}
	return welcomeBorderStyle.Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

// ---------- markdown rendering ----------

// markdownCache keeps one glamour renderer per wrap width and the rendered
// output per message, so redraws do not re-render unchanged replies.
type markdownCache struct {
	width    int
	renderer *glamour.TermRenderer
	entries  map[string]string
}

func (c *markdownCache) render(text string, width int) string {
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	if c.renderer == nil || c.width != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return text
		}
		c.renderer = r
		c.width = wrap
		c.entries = map[string]string{}
	}
	if out, ok := c.entries[text]; ok {
		return out
	}
	rendered, err := c.renderer.Render(text)
	if err != nil {
		return text
	}
	out := strings.Trim(rendered, "\n")
	c.entries[text] = out
	return out
}

// ---------- program ----------

// Run shows the chat screen until the user quits or the view navigates
// elsewhere. It returns the requested route, or "" when the user quit.
func Run(ctx context.Context, view *chatview.View, bridge *Bridge, cfg Config) (route.Route, error) {
	bridge.Reset()
	view.SetObserver(bridge.Refresh)
	defer view.SetObserver(nil)

	p := tea.NewProgram(NewModel(ctx, view, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.attach(p)
	defer bridge.attach(nil)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return "", fmt.Errorf("run chat screen: %w", err)
	}
	return bridge.Next(), nil
}

// ---------- key event helpers ----------

func isTerminalNoiseKey(s string) bool {
	if strings.Contains(s, ";rgb:") || strings.HasPrefix(s, "]") || strings.HasPrefix(s, "alt+]") {
		return true
	}
	if (strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m")) && strings.Contains(s, ";") {
		return true
	}
	if strings.HasPrefix(s, "[<") || strings.HasPrefix(s, "alt+[<") {
		return true
	}
	if strings.HasPrefix(s, "[?") || strings.HasPrefix(s, "alt+[?") {
		return true
	}
	if len(s) > 1 && s[0] == '[' && s[1] >= '0' && s[1] <= '9' {
		return true
	}
	return false
}

func isControlKeyMsg(s string) bool {
	for _, r := range s {
		if r == '\x1b' || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return true
		}
	}
	return false
}
