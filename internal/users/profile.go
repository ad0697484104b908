package users

import (
	"strings"
	"time"
)

// Profile is the locally stored record for an externally identified user.
// The identity provider owns authentication; this row carries the public
// fields other users see plus the accept-limiter state mutated by the match
// lifecycle engine.
type Profile struct {
	UserID         string     `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username       string     `gorm:"column:username;size:190;not null;default:''"`
	Email          string     `gorm:"column:email;size:320;not null;default:''"`
	PhotoURL       string     `gorm:"column:photo_url;size:512;not null;default:''"`
	Rating         float64    `gorm:"column:rating;not null;default:0"`
	Points         int64      `gorm:"column:points;not null;default:0"`
	IsPremium      bool       `gorm:"column:is_premium;not null;default:false"`
	LastAcceptedAt *time.Time `gorm:"column:last_accepted_at"`
	LastSeenAt     time.Time  `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "user_profiles"
}

// PublicProfile is the projection of a profile exposed to other users.
type PublicProfile struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	PhotoURL string  `json:"photo_url"`
	Rating   float64 `json:"rating"`
	Points   int64   `json:"points"`
}

// Public projects the fields of a profile that other users may see.
func (p Profile) Public() PublicProfile {
	return PublicProfile{
		UserID:   p.UserID,
		Username: p.Username,
		PhotoURL: p.PhotoURL,
		Rating:   p.Rating,
		Points:   p.Points,
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
