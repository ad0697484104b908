package match

import "time"

// Status enumerates the request lifecycle states. pending is the only
// non-terminal state; no transition leaves accepted or rejected.
type Status string

const (
	// StatusPending marks a request awaiting a decision by its target.
	StatusPending Status = "pending"
	// StatusAccepted marks a request that produced a match.
	StatusAccepted Status = "accepted"
	// StatusRejected marks a request closed without a match.
	StatusRejected Status = "rejected"
)

// Request is a proposal from one user to another over a specific meal.
// SenderMealID snapshots the requester's latest meal at send time. Rows are
// never deleted; terminal statuses are retained for history.
type Request struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	FromUserID   string    `gorm:"column:from_user_id;size:190;not null;index:idx_requests_from" json:"from_user_id"`
	ToUserID     string    `gorm:"column:to_user_id;size:190;not null;index:idx_requests_to_status,priority:1" json:"to_user_id"`
	MealID       string    `gorm:"column:meal_id;size:190;not null" json:"meal_id"`
	SenderMealID string    `gorm:"column:sender_meal_id;size:190;not null" json:"sender_meal_id"`
	Status       Status    `gorm:"column:status;size:16;not null;default:'pending';index:idx_requests_to_status,priority:2" json:"status"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Request) TableName() string {
	return "match_requests"
}

// Match is the immutable pairing produced by an accepted request. User1 is
// the requester, User2 the accepter; the meal columns keep the same sides.
// The unique index on RequestID is the storage backstop against a request
// ever materializing twice.
type Match struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	User1ID     string    `gorm:"column:user1_id;size:190;not null" json:"user1_id"`
	User2ID     string    `gorm:"column:user2_id;size:190;not null" json:"user2_id"`
	User1MealID string    `gorm:"column:user1_meal_id;size:190;not null" json:"user1_meal_id"`
	User2MealID string    `gorm:"column:user2_meal_id;size:190;not null" json:"user2_meal_id"`
	RequestID   string    `gorm:"column:request_id;size:190;not null;uniqueIndex:uq_matches_request" json:"request_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Match) TableName() string {
	return "matches"
}
