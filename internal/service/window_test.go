package service

import (
	"testing"
	"time"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

func TestContextWindow(t *testing.T) {
	base := time.Now()
	turns := make([]domain.Turn, 500)
	for i := range turns {
		turns[i] = domain.Turn{Role: domain.RoleUser, Content: string(rune('a' + i%26)), Timestamp: base.Add(time.Duration(i) * time.Second)}
	}

	window := ContextWindow(turns, 10)
	if len(window) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(window))
	}
	if !window[9].Timestamp.Equal(turns[499].Timestamp) || !window[0].Timestamp.Equal(turns[490].Timestamp) {
		t.Fatal("window must hold the most recent turns in order")
	}

	window[0].Content = "mutated"
	if turns[490].Content == "mutated" {
		t.Fatal("window must not alias the session history")
	}

	short := ContextWindow(turns[:3], 10)
	if len(short) != 3 {
		t.Fatalf("expected all 3 turns, got %d", len(short))
	}
}

func TestContextWindowSortsByTimestamp(t *testing.T) {
	base := time.Now()
	turns := []domain.Turn{
		{Role: domain.RoleAssistant, Content: "late", Timestamp: base.Add(2 * time.Second)},
		{Role: domain.RoleUser, Content: "early", Timestamp: base},
		{Role: domain.RoleUser, Content: "middle", Timestamp: base.Add(time.Second)},
	}
	window := ContextWindow(turns, 2)
	if len(window) != 2 || window[0].Content != "middle" || window[1].Content != "late" {
		t.Fatalf("unexpected window: %+v", window)
	}
	if turns[0].Content != "late" {
		t.Fatal("input order must be preserved")
	}
}
