package chatapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeBackend mimics the chat backend's routes in memory.
type fakeBackend struct {
	mu       sync.Mutex
	token    string
	nextID   int64
	chats    []Conversation
	messages map[int64][]Message
	reply    string
	failSend int // status to return from POST messages; 0 = succeed

	lastAuth string
	lastBody []byte
}

func newFakeBackend(t *testing.T, token string) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{
		token:    token,
		nextID:   1,
		messages: map[int64][]Message{},
		reply:    "hi there",
	}
	srv := httptest.NewServer(fb.router())
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) seen() (auth string, body []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastAuth, fb.lastBody
}

func (fb *fakeBackend) setFailSend(status int) {
	fb.mu.Lock()
	fb.failSend = status
	fb.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.lastAuth = r.Header.Get("Authorization")
		want := "Bearer " + fb.token
		fb.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": fb.token,
			"user":  map[string]any{"id": 1, "username": creds.Username},
		})
	})

	r.Post("/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		writeJSON(w, http.StatusCreated, map[string]any{"access_token": fb.token})
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(fb.requireToken)

		r.Get("/", fb.listChats)
		r.Post("/", fb.createChat)
		r.Delete("/{id}", fb.deleteChat)
		r.Get("/{id}/messages", fb.listMessages)
		r.Post("/{id}/messages", fb.sendMessage)
	})
	return r
}

func (fb *fakeBackend) listChats(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]Conversation, len(fb.chats))
	copy(out, fb.chats)
	writeJSON(w, http.StatusOK, out)
}

func (fb *fakeBackend) createChat(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.lastBody, _ = io.ReadAll(r.Body)
	c := Conversation{ID: fb.nextID, Title: "New Chat", CreatedAt: Now()}
	fb.nextID++
	fb.chats = append([]Conversation{c}, fb.chats...)
	writeJSON(w, http.StatusCreated, c)
}

func (fb *fakeBackend) chatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return 0, false
	}
	for _, c := range fb.chats {
		if c.ID == id {
			return id, true
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	return 0, false
}

func (fb *fakeBackend) deleteChat(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id, ok := fb.chatID(w, r)
	if !ok {
		return
	}
	kept := fb.chats[:0]
	for _, c := range fb.chats {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	fb.chats = kept
	delete(fb.messages, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted"})
}

func (fb *fakeBackend) listMessages(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id, ok := fb.chatID(w, r)
	if !ok {
		return
	}
	msgs := fb.messages[id]
	if msgs == nil {
		msgs = []Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (fb *fakeBackend) sendMessage(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id, ok := fb.chatID(w, r)
	if !ok {
		return
	}
	if fb.failSend != 0 {
		writeJSON(w, fb.failSend, map[string]string{"message": "Groq API error: overloaded"})
		return
	}
	var req sendMessageRequest
	json.NewDecoder(r.Body).Decode(&req)
	n := int64(len(fb.messages[id]))
	fb.messages[id] = append(fb.messages[id],
		Message{ID: n + 1, Role: RoleUser, Content: req.Content, CreatedAt: Now()},
		Message{ID: n + 2, Role: RoleAssistant, Content: fb.reply, CreatedAt: Now()},
	)
	for i := range fb.chats {
		if fb.chats[i].ID == id && fb.chats[i].Title == "New Chat" {
			fb.chats[i].Title = strings.TrimSpace(req.Content)
		}
	}
	writeJSON(w, http.StatusCreated, fb.messages[id][len(fb.messages[id])-1])
}
