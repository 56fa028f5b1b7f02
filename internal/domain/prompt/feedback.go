package prompt

import "github.com/promptlab/backend/internal/domain/shared"

// Feedback is a human rating of a run's output
type Feedback struct {
	shared.BaseEntity
	shared.TenantOwned
	RunID   uint64 `gorm:"not null;index" json:"run_id"`
	UserID  uint64 `gorm:"not null" json:"user_id"`
	Rating  int    `gorm:"not null" json:"rating"`
	Comment string `gorm:"type:text" json:"comment,omitempty"`
}

// TableName returns the table name for GORM
func (Feedback) TableName() string {
	return "run_feedback"
}

// NewFeedback validates a 1-5 rating
func NewFeedback(runID, userID uint64, rating int, comment string) (*Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, shared.NewDomainError("INVALID_INPUT", "rating must be between 1 and 5")
	}
	return &Feedback{RunID: runID, UserID: userID, Rating: rating, Comment: comment}, nil
}
