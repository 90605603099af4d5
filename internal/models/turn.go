package models

import "time"

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session transcript. Turns are immutable once stored.
// Index keeps counting up after older turns are evicted from the window.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Citations []string  `json:"citations,omitempty"`
	Index     int       `json:"-"`
}

// Clone returns a copy of t that shares no slices with it.
func (t Turn) Clone() Turn {
	if t.Citations != nil {
		t.Citations = append([]string(nil), t.Citations...)
	}
	return t
}
