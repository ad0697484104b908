package chat

import "time"

// Room is the conversation container created 1:1 with a match. A locked room
// refuses new messages and hides (but retains) its history.
type Room struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	MatchID   string    `gorm:"column:match_id;size:190;not null;uniqueIndex:uq_rooms_match" json:"match_id"`
	User1ID   string    `gorm:"column:user1_id;size:190;not null;index:idx_rooms_user1" json:"user1_id"`
	User2ID   string    `gorm:"column:user2_id;size:190;not null;index:idx_rooms_user2" json:"user2_id"`
	IsLocked  bool      `gorm:"column:is_locked;not null;default:false" json:"is_locked"`
	Seq       int64     `gorm:"column:seq;not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Room) TableName() string {
	return "chat_rooms"
}

// Participant reports whether the user is one of the room's two members.
func (r Room) Participant(userID string) bool {
	return userID != "" && (r.User1ID == userID || r.User2ID == userID)
}

// Other returns the participant facing the given user.
func (r Room) Other(userID string) string {
	if r.User1ID == userID {
		return r.User2ID
	}
	return r.User1ID
}

// Message is one entry of a room's append-only log. Seq is assigned by the
// store under the room row lock and is strictly increasing within a room; it
// is the polling cursor.
type Message struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	RoomID    string    `gorm:"column:room_id;size:190;not null;uniqueIndex:uq_messages_room_seq,priority:1" json:"room_id"`
	SenderID  string    `gorm:"column:sender_id;size:190;not null" json:"sender_id"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
	Seq       int64     `gorm:"column:seq;not null;uniqueIndex:uq_messages_room_seq,priority:2" json:"seq"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "chat_messages"
}
