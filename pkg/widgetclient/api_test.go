package widgetclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestClient_ListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/conversations" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "visitor-1" {
			t.Errorf("user_id = %q, want visitor-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"conversations":[{"id":"conv_a","user_id":"visitor-1","status":"open"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	conversations, err := client.ListConversations(context.Background(), "visitor-1")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(conversations) != 1 || conversations[0].ID != "conv_a" {
		t.Errorf("conversations = %+v, want conv_a", conversations)
	}
}

func TestClient_CreateConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/conversations" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var params CreateConversationParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if params.UserID != "visitor-1" || params.Message != "help!" {
			t.Errorf("params = %+v", params)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"conversation":{"id":"conv_new","user_id":"visitor-1","status":"open"},"messages":[{"id":"msg_1","conversation_id":"conv_new","sender":"user","content":"help!"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	conv, messages, err := client.CreateConversation(context.Background(), CreateConversationParams{
		UserID:  "visitor-1",
		Message: "help!",
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.ID != "conv_new" {
		t.Errorf("conversation id = %q, want conv_new", conv.ID)
	}
	if len(messages) != 1 || messages[0].ID != "msg_1" {
		t.Errorf("messages = %+v, want the initial message", messages)
	}
}

func TestClient_SendMessageSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":{"message":"conversation is closed","type":"conflict_error"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.SendMessage(context.Background(), "conv_a", "visitor-1", "hello", "")
	if err == nil {
		t.Fatal("SendMessage succeeded, want error")
	}
	if !strings.Contains(err.Error(), "conversation is closed") {
		t.Errorf("error = %v, want the server's message surfaced", err)
	}
}

func TestClient_MarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/conversations/conv_a/read" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"updated":2}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	updated, err := client.MarkRead(context.Background(), "conv_a", "visitor-1")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}
}

func TestClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/uploads" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			if header.Filename != "shot.png" {
				t.Errorf("filename = %q, want shot.png", header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"url":"https://cdn.example.com/shot.png"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	url, err := client.Upload(context.Background(), "shot.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example.com/shot.png" {
		t.Errorf("url = %q", url)
	}
}
