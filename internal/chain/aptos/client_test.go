package aptos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"MoveFlow-Agent/internal/chain"
)

func newTestClient(t *testing.T, nodeURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Name:     "aptos-test",
		NodeURL:  nodeURL,
		Contract: "0xcafe",
	})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	return client
}

func TestValidateAddressShortForm(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	for _, address := range []string{"0x1", "0x123", "0xabcDEF", "0x" + "f0e1d2c3b4a5968778695a4b3c2d1e0f" + "f0e1d2c3b4a5968778695a4b3c2d1e0f"} {
		if err := client.ValidateAddress(address); err != nil {
			t.Errorf("合法地址 %q 被拒绝: %v", address, err)
		}
	}
	for _, address := range []string{"", "123", "0x", "0xzz", "0x" + make64hex() + "ff"} {
		if err := client.ValidateAddress(address); err == nil {
			t.Errorf("非法地址 %q 被接受", address)
		}
	}
}

func make64hex() string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}

func TestValidateStreamID(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	for _, id := range []string{"0", "42", "0x1", "0xdeadbeef"} {
		if err := client.ValidateStreamID(id); err != nil {
			t.Errorf("合法流标识 %q 被拒绝: %v", id, err)
		}
	}
	for _, id := range []string{"", "abc", "-1", "4.2"} {
		if err := client.ValidateStreamID(id); err == nil {
			t.Errorf("非法流标识 %q 被接受", id)
		}
	}
}

func TestFunctionID(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	if got := client.FunctionID("create"); got != "0xcafe::stream::create" {
		t.Fatalf("FunctionID = %s", got)
	}
}

func TestQueryStreamsByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/view" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body struct {
			Function  string `json:"function"`
			Arguments []any  `json:"arguments"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Function != "0xcafe::stream::get_stream_info" {
			t.Errorf("unexpected function: %s", body.Function)
		}
		_ = json.NewEncoder(w).Encode([][]map[string]any{{{
			"id":               "42",
			"name":             "工资流",
			"sender":           "0xaaa",
			"recipient":        "0xbbb",
			"deposit_amount":   "5000000000",
			"withdrawn_amount": "0",
			"start_time":       "1745193600",
			"stop_time":        "1747785600",
			"paused":           false,
			"closed":           false,
		}}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	streams, err := client.QueryStreams(context.Background(), chain.StreamFilter{StreamID: "42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("streams = %d, 期望 1", len(streams))
	}
	if streams[0].StreamID != "42" || streams[0].DepositAmount != "5000000000" {
		t.Fatalf("unexpected stream: %+v", streams[0])
	}
	if streams[0].StartTime != 1745193600 {
		t.Fatalf("start_time = %d", streams[0].StartTime)
	}
}
