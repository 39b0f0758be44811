package models

import "strings"

// Speaker is a manual speaker-list entry for an event. Username is stored lowercased.
type Speaker struct {
	ID       int64  `json:"id"`
	EventID  int64  `json:"event_id"`
	Username string `json:"username"`
}

// NormalizeUsername strips a leading @ and lowercases for case-insensitive matching.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}
