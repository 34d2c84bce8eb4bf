package tui

import (
	"sync"

	"github.com/chatvk/chatvk/internal/route"
	tea "github.com/charmbracelet/bubbletea"
)

// Bridge forwards chat view events to a running bubbletea Program. It
// implements chatview.Navigator and its Refresh method is the view's change
// observer. All methods are safe to call from any goroutine and are no-ops
// for the program when none is attached.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	next    route.Route
}

// NewBridge returns a Bridge with no program attached.
func NewBridge() *Bridge { return &Bridge{} }

type refreshMsg struct{}

type navigateMsg struct{ to route.Route }

func (b *Bridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
}

// send is a nil-safe helper that sends a message to the program.
func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Refresh asks the program to redraw from a fresh snapshot.
func (b *Bridge) Refresh() { b.send(refreshMsg{}) }

// Navigate records the requested screen and stops the chat screen.
func (b *Bridge) Navigate(r route.Route) {
	b.mu.Lock()
	b.next = r
	b.mu.Unlock()
	b.send(navigateMsg{to: r})
}

// Next returns the last requested screen, or "" if none was requested.
func (b *Bridge) Next() route.Route {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Reset forgets any requested screen.
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.next = ""
	b.mu.Unlock()
}
