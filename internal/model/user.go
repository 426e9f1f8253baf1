package model

import (
	"time"

	"gorm.io/datatypes"
)

// User is a login account on the legacy platform. Invoices reference it through created_by.
type User struct {
	ID                 uint                        `gorm:"primaryKey" json:"id"`
	BubbleID           string                      `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	Email              string                      `gorm:"type:varchar(255);index" json:"email"`
	Name               string                      `gorm:"type:varchar(255)" json:"name"`
	LinkedAgentProfile string                      `gorm:"type:varchar(64);index" json:"linked_agent_profile"`
	AccessLevel        datatypes.JSONSlice[string] `json:"access_level"`
	ProfilePicture     string                      `gorm:"type:text" json:"profile_picture"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
