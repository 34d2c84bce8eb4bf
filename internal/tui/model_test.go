package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/chatvk/chatvk/internal/chatview"
	"github.com/chatvk/chatvk/internal/route"
	"github.com/chatvk/chatvk/internal/session"
)

type stubAPI struct {
	mu       sync.Mutex
	nextID   int64
	convs    []chatapi.Conversation
	messages map[int64][]chatapi.Message
	sends    int
	listErr  error
	sendErr  error // returned by SendMessage once set
}

func newStubAPI() *stubAPI {
	return &stubAPI{nextID: 1, messages: map[int64][]chatapi.Message{}}
}

func (s *stubAPI) ListConversations(context.Context) ([]chatapi.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]chatapi.Conversation(nil), s.convs...), nil
}

func (s *stubAPI) CreateConversation(context.Context) (chatapi.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := chatapi.Conversation{ID: s.nextID, Title: "New Chat"}
	s.nextID++
	s.convs = append([]chatapi.Conversation{c}, s.convs...)
	return c, nil
}

func (s *stubAPI) DeleteConversation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.convs[:0]
	for _, c := range s.convs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.convs = kept
	return nil
}

func (s *stubAPI) ListMessages(_ context.Context, id int64) ([]chatapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chatapi.Message(nil), s.messages[id]...), nil
}

func (s *stubAPI) SendMessage(_ context.Context, id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	if s.sendErr != nil {
		return s.sendErr
	}
	s.messages[id] = append(s.messages[id],
		chatapi.Message{Role: chatapi.RoleUser, Content: content},
		chatapi.Message{Role: chatapi.RoleAssistant, Content: "hi there"},
	)
	for i := range s.convs {
		if s.convs[i].ID == id {
			s.convs[i].Title = content
		}
	}
	return nil
}

type stubSessions struct{}

func (stubSessions) Current() (session.Session, bool) {
	return session.Session{Token: "tok", User: session.User{Username: "alice"}}, true
}
func (stubSessions) SignOut() error { return nil }

func newTestModel(t *testing.T, api *stubAPI) (Model, *Bridge) {
	t.Helper()
	bridge := NewBridge()
	view := chatview.New(api, stubSessions{}, bridge)
	m := NewModel(context.Background(), view, Config{ShowWelcome: true})
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, bridge
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// drive feeds msg to m and then runs every resulting command, feeding their
// messages back, until no commands remain. Timer-driven messages are skipped.
func drive(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	queue := []tea.Msg{msg}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatal("too many update steps")
		}
		next := queue[0]
		queue = queue[1:]

		model, cmd := m.Update(next)
		m = model.(Model)
		queue = append(queue, runCmd(cmd)...)
	}
	return m
}

// driveCmd runs cmd and drives every message it produces.
func driveCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for _, msg := range runCmd(cmd) {
		m = drive(t, m, msg)
	}
	return m
}

func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case nil:
		return nil
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, runCmd(c)...)
		}
		return out
	case spinner.TickMsg:
		return nil
	default:
		if isQuit(msg) {
			return nil
		}
		return []tea.Msg{msg}
	}
}

func isQuit(msg tea.Msg) bool {
	_, ok := msg.(tea.QuitMsg)
	return ok
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestModel_EmptyStateShowsWelcome(t *testing.T) {
	m, _ := newTestModel(t, newStubAPI())
	m = driveCmd(t, m, m.Init())

	out := m.View()
	if !strings.Contains(out, "Welcome to Chat.VK") || !strings.Contains(out, "Start a conversation") {
		t.Errorf("expected welcome text, got:\n%s", out)
	}
	if !strings.Contains(out, "New Chat") {
		t.Error("header should read New Chat without an active conversation")
	}
	if !strings.Contains(out, "alice") {
		t.Error("status bar should show the user name")
	}
}

func TestModel_SubmitAutoCreatesAndReconciles(t *testing.T) {
	api := newStubAPI()
	api.nextID = 42
	m, _ := newTestModel(t, api)

	m = typeText(t, m, "hello")
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.textinput.Value() != "" {
		t.Errorf("input = %q, want cleared", m.textinput.Value())
	}
	if m.submitting {
		t.Error("submitting should clear after the send settles")
	}
	if m.snap.ActiveID != 42 || len(m.snap.Messages) != 2 {
		t.Fatalf("snapshot = %+v", m.snap)
	}
	out := m.View()
	if !strings.Contains(out, "hi there") {
		t.Errorf("expected assistant reply in view:\n%s", out)
	}
	if strings.Contains(out, "(sending)") {
		t.Error("no pending entry should remain after reconcile")
	}
}

func TestModel_EnterIgnoredWhileSubmitting(t *testing.T) {
	api := newStubAPI()
	m, _ := newTestModel(t, api)

	m = typeText(t, m, "first")
	m, cmd := m.submit()
	if cmd == nil || !m.submitting {
		t.Fatal("first submit should start a send")
	}

	m = typeText(t, m, "second")
	m, cmd = m.submit()
	if cmd != nil {
		t.Error("second submit should be ignored while sending")
	}
	if m.textinput.Value() != "second" {
		t.Errorf("input = %q, want typed text kept", m.textinput.Value())
	}
}

func TestModel_BlankEnterDoesNothing(t *testing.T) {
	api := newStubAPI()
	m, _ := newTestModel(t, api)

	m = typeText(t, m, "   ")
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if api.sends != 0 || len(api.convs) != 0 {
		t.Errorf("sends = %d, convs = %d, want no calls", api.sends, len(api.convs))
	}
}

func TestModel_SidebarSelectAndDelete(t *testing.T) {
	api := newStubAPI()
	api.convs = []chatapi.Conversation{{ID: 2, Title: "Second"}, {ID: 1, Title: "First"}}
	api.messages[1] = []chatapi.Message{{Role: chatapi.RoleUser, Content: "from first"}}
	m, _ := newTestModel(t, api)
	m = driveCmd(t, m, m.Init())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusSidebar {
		t.Fatal("tab should focus the sidebar")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.snap.ActiveID != 1 {
		t.Fatalf("ActiveID = %d, want 1", m.snap.ActiveID)
	}
	if m.focus != focusInput {
		t.Error("opening a conversation should return focus to the input")
	}
	if !strings.Contains(m.View(), "from first") {
		t.Error("selected conversation's messages should be shown")
	}

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	if m.snap.ActiveID != 0 || len(m.snap.Conversations) != 1 || len(m.snap.Messages) != 0 {
		t.Errorf("after delete snapshot = %+v", m.snap)
	}
}

func TestModel_NewChatKey(t *testing.T) {
	api := newStubAPI()
	api.nextID = 9
	m, _ := newTestModel(t, api)

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.snap.ActiveID != 9 || len(m.snap.Conversations) != 1 {
		t.Errorf("snapshot = %+v, want new conversation 9 active", m.snap)
	}
}

func TestModel_NavigateQuits(t *testing.T) {
	m, _ := newTestModel(t, newStubAPI())
	next, cmd := m.Update(navigateMsg{to: route.Login})
	m = next.(Model)
	if !m.quitting || cmd == nil || !isQuit(cmd()) {
		t.Error("navigation away should quit the program")
	}
	if m.View() != "" {
		t.Error("quitting model should render nothing")
	}
}

func TestModel_UnauthorizedLoadRequestsLogin(t *testing.T) {
	api := newStubAPI()
	api.listErr = &chatapi.RequestError{StatusCode: 401}
	m, bridge := newTestModel(t, api)
	driveCmd(t, m, m.Init())

	if bridge.Next() != route.Login {
		t.Errorf("Next = %q, want %q", bridge.Next(), route.Login)
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	m, _ := newTestModel(t, newStubAPI())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	found := false
	for _, msg := range flatten(cmd) {
		if isQuit(msg) {
			found = true
		}
	}
	if !found {
		t.Error("ctrl+c should quit")
	}
}

func flatten(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, flatten(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestBridge_RecordsRouteWithoutProgram(t *testing.T) {
	b := NewBridge()
	b.Refresh()
	b.Navigate(route.Login)
	if b.Next() != route.Login {
		t.Errorf("Next = %q, want %q", b.Next(), route.Login)
	}
	b.Reset()
	if b.Next() != "" {
		t.Error("Reset should clear the requested route")
	}
}

// TestProgram_FailedSendAlertDismissed runs a real program wired to the view
// through the bridge. Every view change sends into the event loop, so a key
// handler that changes the view synchronously would stall it.
func TestProgram_FailedSendAlertDismissed(t *testing.T) {
	api := newStubAPI()
	api.sendErr = &chatapi.RequestError{StatusCode: 500, Message: "model overloaded"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bridge := NewBridge()
	view := chatview.New(api, stubSessions{}, bridge)

	// alerts receives the alert after each refresh was accepted by the
	// event loop.
	alerts := make(chan string, 64)
	view.SetObserver(func() {
		bridge.Refresh()
		select {
		case alerts <- view.Snapshot().Alert:
		default:
		}
	})

	p := tea.NewProgram(NewModel(ctx, view, Config{}),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	bridge.attach(p)
	defer bridge.attach(nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	send := func(msg tea.Msg) {
		t.Helper()
		sent := make(chan struct{})
		go func() {
			p.Send(msg)
			close(sent)
		}()
		select {
		case <-sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("event loop stalled sending %T", msg)
		}
	}
	waitAlert := func(match func(string) bool) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case a := <-alerts:
				if match(a) {
					return
				}
			case <-deadline:
				t.Fatal("timed out waiting for the alert state")
			}
		}
	}

	send(tea.WindowSizeMsg{Width: 100, Height: 30})
	send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hello")})
	send(tea.KeyMsg{Type: tea.KeyEnter})
	waitAlert(func(a string) bool { return a == "model overloaded" })

	send(tea.KeyMsg{Type: tea.KeyEsc})
	waitAlert(func(a string) bool { return a == "" })

	snap := view.Snapshot()
	if len(snap.Messages) != 0 {
		t.Errorf("messages = %+v, want the failed send rolled back", snap.Messages)
	}

	send(tea.KeyMsg{Type: tea.KeyCtrlC})
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("program did not quit")
	}
}
