package db

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID           uint           `gorm:"primaryKey"`
	JoinCode     string         `gorm:"size:12;uniqueIndex;not null"`
	Status       string         `gorm:"size:32;not null"`
	CurrentLevel int            `gorm:"not null;default:0"`
	Settings     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
	Teams        []Team
	Players      []Player
}

type Team struct {
	ID         uint           `gorm:"primaryKey"`
	GameID     uint           `gorm:"index;not null"`
	Name       string         `gorm:"size:64;not null"`
	Score      int            `gorm:"not null;default:100"`
	Level1Data datatypes.JSON `gorm:"type:jsonb"`
	Level2Data datatypes.JSON `gorm:"type:jsonb"`
	Level3Data datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
	Players    []Player
	Messages   []Message
}

type Player struct {
	ID         uint      `gorm:"primaryKey"`
	GameID     uint      `gorm:"index;not null"`
	TeamID     *uint     `gorm:"index"`
	Name       string    `gorm:"size:64;not null"`
	Role       string    `gorm:"size:32"`
	ExternalID string    `gorm:"size:128"`
	ConnID     string    `gorm:"size:64;index"`
	Active     bool      `gorm:"not null;default:true"`
	JoinedAt   time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type Message struct {
	ID         uint      `gorm:"primaryKey"`
	TeamID     uint      `gorm:"index;not null"`
	PlayerName string    `gorm:"size:64;not null"`
	Text       string    `gorm:"size:1024;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}
