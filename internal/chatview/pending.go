package chatview

import (
	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/google/uuid"
)

// SendState is the lifecycle of one submitted message.
type SendState int

const (
	SendPending SendState = iota
	SendCommitted
	SendRolledBack
)

func (s SendState) String() string {
	switch s {
	case SendPending:
		return "pending"
	case SendCommitted:
		return "committed"
	case SendRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// PendingSend tracks an optimistically displayed user message until the
// server accepts or rejects it. Transitions only leave SendPending.
type PendingSend struct {
	ID             uuid.UUID
	ConversationID int64
	Message        chatapi.Message
	State          SendState
	Err            error
}

func newPendingSend(conversationID int64, content string) *PendingSend {
	return &PendingSend{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Message: chatapi.Message{
			Role:      chatapi.RoleUser,
			Content:   content,
			CreatedAt: chatapi.Now(),
		},
		State: SendPending,
	}
}

// Commit marks the send accepted. It reports false if the send had already
// settled.
func (p *PendingSend) Commit() bool {
	if p.State != SendPending {
		return false
	}
	p.State = SendCommitted
	return true
}

// Rollback marks the send rejected with err. It reports false if the send
// had already settled.
func (p *PendingSend) Rollback(err error) bool {
	if p.State != SendPending {
		return false
	}
	p.State = SendRolledBack
	p.Err = err
	return true
}

// Settled reports whether the send left the pending state.
func (p *PendingSend) Settled() bool { return p.State != SendPending }
