package gaps

import (
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
)

// Status represents the lifecycle stage of a knowledge gap.
type Status string

const (
	StatusOpen      Status = "open"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Gap is a question the knowledge base could not answer. Gaps are
// deduplicated by normalized question text per role, so HitCount says
// how many times users ran into the same missing answer.
type Gap struct {
	ID         string      `json:"id"`
	Question   string      `json:"question"`
	Role       access.Role `json:"role"`
	HitCount   int         `json:"hit_count"`
	Status     Status      `json:"status"`
	ResolvedBy string      `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ListFilter controls which gaps to return.
type ListFilter struct {
	Status Status
	Role   access.Role
	Limit  int
	Offset int
}
