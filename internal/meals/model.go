package meals

import "time"

// Meal is a food listing published by a user. The match core reads meal
// ownership and identity; everything else is presentation data.
type Meal struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	OwnerID     string    `gorm:"column:owner_id;size:190;not null;index:idx_meals_owner_created,priority:1" json:"owner_id"`
	Name        string    `gorm:"column:name;size:190;not null" json:"name"`
	Description string    `gorm:"column:description;type:text;not null;default:''" json:"description"`
	ImageURL    string    `gorm:"column:image_url;size:512;not null;default:''" json:"image_url"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index:idx_meals_owner_created,priority:2" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Meal) TableName() string {
	return "meals"
}
