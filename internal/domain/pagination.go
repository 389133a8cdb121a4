package domain

import "time"

// Pagination describes where a page sits in a list result.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"total_pages"`
	TotalCount  int  `json:"total_count"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// NewPagination computes page metadata for a total of items split into pages of limit.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		Limit:       limit,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}

// SessionPage is one page of an owner's active sessions.
type SessionPage struct {
	Sessions   []Session  `json:"sessions"`
	Pagination Pagination `json:"pagination"`
}

// ActivitySummary is the stats view of one recently updated session.
type ActivitySummary struct {
	SessionID    string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Stats is the usage rollup for one owner's active sessions.
type Stats struct {
	TotalSessions  int               `json:"total_sessions"`
	TotalMessages  int               `json:"total_messages"`
	RecentActivity []ActivitySummary `json:"recent_activity"`
}
