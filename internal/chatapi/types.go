package chatapi

import "github.com/chatvk/chatvk/internal/session"

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is a named thread of messages.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// Message is one turn in a conversation. ID is zero for messages the client
// has not yet seen acknowledged by the server.
type Message struct {
	ID        int64     `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// Credentials is the body of login and signup requests.
type Credentials struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// authResponse is what login and signup return.
type authResponse struct {
	Token       string       `json:"token"`
	AccessToken string       `json:"access_token"`
	User        session.User `json:"user"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}
