package model

import "time"

// Customer is the end customer an installation is sold to
type Customer struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	BubbleID       string `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	Name           string `gorm:"type:varchar(255);index" json:"name"`
	Phone          string `gorm:"type:varchar(50)" json:"phone"`
	Email          string `gorm:"type:varchar(255)" json:"email"`
	Address        string `gorm:"type:text" json:"address"`
	IcNumber       string `gorm:"type:varchar(50)" json:"ic_number"`
	LinkedAgent    string `gorm:"type:varchar(64);index" json:"linked_agent"`
	ProfilePicture string `gorm:"type:text" json:"profile_picture"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent is a sales agent profile
type Agent struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	BubbleID       string `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	Name           string `gorm:"type:varchar(255);index" json:"name"`
	Phone          string `gorm:"type:varchar(50)" json:"phone"`
	Email          string `gorm:"type:varchar(255)" json:"email"`
	AgentType      string `gorm:"type:varchar(50)" json:"agent_type"`
	BankName       string `gorm:"type:varchar(100)" json:"bank_name"`
	BankAccount    string `gorm:"type:varchar(100)" json:"bank_account"`
	ProfilePicture string `gorm:"type:text" json:"profile_picture"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
