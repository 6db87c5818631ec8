package session

import "tender-admin/internal/domain"

// Snapshot is the client-facing view of a State. The token never leaves the
// gateway.
type Snapshot struct {
	Status          Status       `json:"status"`
	IsAuthenticated bool         `json:"is_authenticated"`
	IsLoading       bool         `json:"is_loading"`
	User            *domain.User `json:"user,omitempty"`
	Error           string       `json:"error,omitempty"`
}

func (s State) Snapshot() Snapshot {
	return Snapshot{
		Status:          s.Status(),
		IsAuthenticated: s.IsAuthenticated,
		IsLoading:       s.IsLoading,
		User:            s.User,
		Error:           s.Error,
	}
}
