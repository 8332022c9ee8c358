package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JoinCodeLength is the fixed width of a workspace join code.
const JoinCodeLength = 6

// Workspace represents a team container.
type Workspace struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	JoinCode    string     `json:"join_code"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// NormalizeJoinCode trims and uppercases a user-entered join code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
