package service

import (
	"sort"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

// DefaultContextWindow is how many recent turns are sent upstream.
const DefaultContextWindow = 10

// ContextWindow returns the most recent size turns ordered by timestamp
// ascending. The input slice is never modified.
func ContextWindow(turns []domain.Turn, size int) []domain.Turn {
	if size <= 0 {
		size = DefaultContextWindow
	}
	window := make([]domain.Turn, len(turns))
	copy(window, turns)
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})
	if len(window) > size {
		window = window[len(window)-size:]
	}
	return window
}
