package moveflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			SessionID string `json:"session_id"`
			Text      string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Text != "创建一个支付流" {
			t.Errorf("unexpected text: %q", body.Text)
		}
		_ = json.NewEncoder(w).Encode(Reply{
			SessionID: "s1",
			State:     "clarifying",
			Text:      "请提供收款地址。",
			Missing:   []string{"recipient"},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, err := client.Chat(context.Background(), "", "创建一个支付流")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.SessionID != "s1" || len(reply.Missing) != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "输入不能为空", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Chat(context.Background(), "", "  ")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("期望 APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
}

func TestOperations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/operations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "s1" {
			t.Errorf("session_id = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]OperationRecord{{SessionID: "s1", Role: "user", Content: "你好"}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := client.Operations(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Content != "你好" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
