// Package chatview holds the chat screen's state and orchestrates the API
// calls behind it: loading conversations and messages, creating and
// deleting conversations, and the optimistic send flow. Renderers read
// Snapshots; they never touch the state directly.
//
// Methods may be called from any goroutine. The lock is never held across a
// network call, so a slow request does not block rendering.
package chatview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/chatvk/chatvk/internal/route"
	"github.com/chatvk/chatvk/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendFailedMessage is surfaced when a failed send carries no server message.
const SendFailedMessage = "Failed to send message"

// ErrUnknownConversation is returned by Select for an id that is not in the
// loaded conversation list.
var ErrUnknownConversation = errors.New("no such conversation")

// API is the subset of the chat client the view drives. *chatapi.Client
// satisfies it.
type API interface {
	ListConversations(ctx context.Context) ([]chatapi.Conversation, error)
	CreateConversation(ctx context.Context) (chatapi.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	ListMessages(ctx context.Context, id int64) ([]chatapi.Message, error)
	SendMessage(ctx context.Context, id int64, content string) error
}

// Sessions exposes the signed-in state. *auth.Context satisfies it.
type Sessions interface {
	Current() (session.Session, bool)
	SignOut() error
}

// Navigator switches screens.
type Navigator interface {
	Navigate(r route.Route)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route.Route)

func (f NavigatorFunc) Navigate(r route.Route) { f(r) }

// Item is one displayed message. Pending is set for the optimistic copy of
// a send that the server has not confirmed.
type Item struct {
	chatapi.Message
	Pending bool
}

// Snapshot is a consistent copy of the view state for rendering.
type Snapshot struct {
	User          session.User
	UserName      string
	Conversations []chatapi.Conversation
	ActiveID      int64 // 0 when no conversation is active
	Messages      []Item
	Input         string
	Loading       bool
	Alert         string
}

// Active returns the active conversation, if it is in the list.
func (s Snapshot) Active() (chatapi.Conversation, bool) {
	if s.ActiveID == 0 {
		return chatapi.Conversation{}, false
	}
	for _, c := range s.Conversations {
		if c.ID == s.ActiveID {
			return c, true
		}
	}
	return chatapi.Conversation{}, false
}

// Title is the header text: the active conversation's title, or "New Chat".
func (s Snapshot) Title() string {
	if c, ok := s.Active(); ok && strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return "New Chat"
}

// Empty reports whether the empty-state placeholder should be drawn.
func (s Snapshot) Empty() bool { return len(s.Messages) == 0 }

type item struct {
	msg     chatapi.Message
	pending uuid.UUID
}

// View is the chat screen controller.
type View struct {
	api      API
	sessions Sessions
	nav      Navigator
	logger   *zap.Logger
	onChange func()
	onAlert  func(string)

	mu            sync.Mutex
	user          session.User
	userName      string
	conversations []chatapi.Conversation
	activeID      int64
	messages      []item
	input         string
	loading       bool
	sending       bool
	alert         string
	gen           uint64
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *View) { v.logger = l }
}

// WithObserver registers fn to run after every state change. fn is called
// without the lock held.
func WithObserver(fn func()) Option {
	return func(v *View) { v.onChange = fn }
}

// WithAlerter registers fn to receive errors surfaced to the user.
func WithAlerter(fn func(msg string)) Option {
	return func(v *View) { v.onAlert = fn }
}

// New creates a View. nav may be nil when nothing should happen on redirect.
func New(api API, sessions Sessions, nav Navigator, opts ...Option) *View {
	v := &View{
		api:      api,
		sessions: sessions,
		nav:      nav,
		logger:   zap.NewNop(),
		userName: "User",
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		User:          v.user,
		UserName:      v.userName,
		Conversations: append([]chatapi.Conversation(nil), v.conversations...),
		ActiveID:      v.activeID,
		Messages:      make([]Item, len(v.messages)),
		Input:         v.input,
		Loading:       v.loading,
		Alert:         v.alert,
	}
	for i, it := range v.messages {
		s.Messages[i] = Item{Message: it.msg, Pending: it.pending != uuid.Nil}
	}
	return s
}

// Mount reads the signed-in user and loads the conversation list.
func (v *View) Mount(ctx context.Context) error {
	if v.sessions != nil {
		if s, ok := v.sessions.Current(); ok {
			v.mu.Lock()
			v.user = s.User
			v.userName = s.DisplayName()
			v.mu.Unlock()
		}
	}
	return v.LoadConversations(ctx)
}

// LoadConversations replaces the conversation list from the server. A 401
// redirects to login; other failures leave the list unchanged.
func (v *View) LoadConversations(ctx context.Context) error {
	convs, err := v.api.ListConversations(ctx)
	if err != nil {
		v.logger.Error("failed to load chats", zap.Error(err))
		if chatapi.IsUnauthorized(err) {
			v.navigate(route.Login)
		}
		return fmt.Errorf("load conversations: %w", err)
	}

	v.mu.Lock()
	v.conversations = convs
	v.mu.Unlock()
	v.changed()
	return nil
}

// Select makes id the active conversation and fetches its messages. Every
// call fetches; nothing is cached. A response for a superseded selection is
// dropped. An id missing from the loaded list is rejected with
// ErrUnknownConversation and leaves state unchanged.
func (v *View) Select(ctx context.Context, id int64) error {
	v.mu.Lock()
	if !v.listed(id) {
		v.mu.Unlock()
		return fmt.Errorf("conversation %d: %w", id, ErrUnknownConversation)
	}
	if v.activeID != id {
		v.messages = nil
	}
	v.activeID = id
	v.mu.Unlock()
	v.changed()
	return v.loadMessages(ctx, id)
}

// listed reports whether id is in the conversation list. v.mu must be held.
func (v *View) listed(id int64) bool {
	for _, c := range v.conversations {
		if c.ID == id {
			return true
		}
	}
	return false
}

// loadMessages fetches id's messages and applies them only if no newer
// load started and id is still active.
func (v *View) loadMessages(ctx context.Context, id int64) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	msgs, err := v.api.ListMessages(ctx, id)
	if err != nil {
		v.logger.Error("failed to load messages", zap.Int64("chat_id", id), zap.Error(err))
		return fmt.Errorf("load messages for %d: %w", id, err)
	}

	v.mu.Lock()
	if gen != v.gen || v.activeID != id {
		v.mu.Unlock()
		v.logger.Debug("dropped stale messages", zap.Int64("chat_id", id), zap.Uint64("gen", gen))
		return nil
	}
	v.messages = make([]item, len(msgs))
	for i, m := range msgs {
		v.messages[i] = item{msg: m}
	}
	v.mu.Unlock()
	v.changed()
	return nil
}

// NewConversation creates a conversation, puts it first in the list and
// makes it active with an empty message list. Failures are logged and leave
// state unchanged.
func (v *View) NewConversation(ctx context.Context) (chatapi.Conversation, error) {
	conv, err := v.api.CreateConversation(ctx)
	if err != nil {
		v.logger.Error("failed to create chat", zap.Error(err))
		return chatapi.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	v.activate(conv)
	v.changed()
	return conv, nil
}

func (v *View) activate(conv chatapi.Conversation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conversations = append([]chatapi.Conversation{conv}, v.conversations...)
	v.activeID = conv.ID
	v.messages = nil
	// Invalidate loads still in flight for the previous selection.
	v.gen++
}

// Delete removes a conversation. If it was active, the active id and
// message list are cleared and no replacement is selected. On failure,
// including 401, the error is logged and the conversation stays listed.
func (v *View) Delete(ctx context.Context, id int64) error {
	if err := v.api.DeleteConversation(ctx, id); err != nil {
		v.logger.Error("failed to delete chat", zap.Int64("chat_id", id), zap.Error(err))
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}

	v.mu.Lock()
	kept := v.conversations[:0:0]
	for _, c := range v.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	v.conversations = kept
	if v.activeID == id {
		v.activeID = 0
		v.messages = nil
		v.gen++
	}
	v.mu.Unlock()
	v.changed()
	return nil
}

// SetInput replaces the input buffer.
func (v *View) SetInput(s string) {
	v.mu.Lock()
	v.input = s
	v.mu.Unlock()
}

// CanSubmit reports whether Submit would send now.
func (v *View) CanSubmit() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return strings.TrimSpace(v.input) != "" && !v.sending
}

// Submit sends the input buffer. It returns (nil, nil) when the input is
// blank or a send is already in flight.
//
// Without an active conversation one is created first; if that fails the
// send is abandoned with nothing shown. Otherwise the trimmed text is
// appended as a pending user message, the input is cleared and Loading is
// set. On success the message list and conversation list are reloaded from
// the server. On failure the pending message is removed, the error is
// surfaced and the input stays empty.
func (v *View) Submit(ctx context.Context) (*PendingSend, error) {
	v.mu.Lock()
	text := strings.TrimSpace(v.input)
	if text == "" || v.sending {
		v.mu.Unlock()
		return nil, nil
	}
	v.sending = true
	chatID := v.activeID
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.sending = false
		v.loading = false
		v.mu.Unlock()
		v.changed()
	}()

	if chatID == 0 {
		conv, err := v.api.CreateConversation(ctx)
		if err != nil {
			v.logger.Error("failed to auto-create chat", zap.Error(err))
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		v.activate(conv)
		chatID = conv.ID
	}

	p := newPendingSend(chatID, text)
	v.mu.Lock()
	v.messages = append(v.messages, item{msg: p.Message, pending: p.ID})
	v.input = ""
	v.loading = true
	v.alert = ""
	v.mu.Unlock()
	v.changed()

	if err := v.api.SendMessage(ctx, chatID, text); err != nil {
		p.Rollback(err)
		v.removePending(p.ID)
		v.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))

		msg := chatapi.ServerMessage(err)
		if msg == "" {
			msg = SendFailedMessage
		}
		v.surface(msg)
		return p, fmt.Errorf("send message: %w", err)
	}
	p.Commit()
	v.settlePending(p.ID)

	// Reload failures are logged by the loaders; the send itself succeeded.
	_ = v.loadMessages(ctx, chatID)
	_ = v.LoadConversations(ctx)
	return p, nil
}

func (v *View) removePending(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, it := range v.messages {
		if it.pending == id {
			v.messages = append(v.messages[:i:i], v.messages[i+1:]...)
			return
		}
	}
}

// settlePending drops the pending marker of a committed send so the item
// stays a plain message if the reload fails.
func (v *View) settlePending(id uuid.UUID) {
	v.mu.Lock()
	for i := range v.messages {
		if v.messages[i].pending == id {
			v.messages[i].pending = uuid.Nil
			break
		}
	}
	v.mu.Unlock()
	v.changed()
}

func (v *View) surface(msg string) {
	v.mu.Lock()
	v.alert = msg
	v.mu.Unlock()
	if v.onAlert != nil {
		v.onAlert(msg)
	}
}

// DismissAlert clears the surfaced error.
func (v *View) DismissAlert() {
	v.mu.Lock()
	v.alert = ""
	v.mu.Unlock()
	v.changed()
}

// Logout clears the session and navigates to login. In-flight requests are
// not cancelled.
func (v *View) Logout() error {
	var err error
	if v.sessions != nil {
		err = v.sessions.SignOut()
		if err != nil {
			v.logger.Warn("sign out failed", zap.Error(err))
		}
	}

	v.mu.Lock()
	v.user = session.User{}
	v.userName = "User"
	v.conversations = nil
	v.activeID = 0
	v.messages = nil
	v.input = ""
	v.alert = ""
	v.gen++
	v.mu.Unlock()

	v.navigate(route.Login)
	v.changed()
	return err
}

func (v *View) navigate(r route.Route) {
	if v.nav != nil {
		v.nav.Navigate(r)
	}
}

// SetObserver replaces the change observer registered with WithObserver.
func (v *View) SetObserver(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *View) changed() {
	v.mu.Lock()
	fn := v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}
