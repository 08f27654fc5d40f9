package history

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := &Record{
			SessionID: "s1",
			Role:      "user",
			Content:   fmt.Sprintf("第 %d 轮", i),
			CreatedAt: time.Date(2025, 4, 21, 0, i, 0, 0, time.UTC),
		}
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record.ID == "" {
			t.Fatal("Append 应补齐记录 ID")
		}
	}

	records, err := store.ListLatest(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, 期望 3", len(records))
	}
	// 取最近三条，按时间正序返回。
	if records[0].Content != "第 2 轮" || records[2].Content != "第 4 轮" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Append(ctx, &Record{SessionID: "s1", Role: "user", Content: "甲"})
	_ = store.Append(ctx, &Record{SessionID: "s2", Role: "user", Content: "乙"})

	records, err := store.ListLatest(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Content != "甲" {
		t.Fatalf("会话隔离失败: %+v", records)
	}
}

func TestMemoryStoreEmptySession(t *testing.T) {
	store := NewMemoryStore()
	records, err := store.ListLatest(context.Background(), "没有的会话", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, 期望 0", len(records))
	}
}
