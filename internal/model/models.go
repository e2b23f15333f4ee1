package model

import (
	"time"

	"gorm.io/datatypes"
)

// 2.1 Accounts

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Nickname     string `gorm:"unique;not null;size:32"`
	PasswordHash string `gorm:"not null"`
	Status       string `gorm:"default:normal;not null"` // normal/banned
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Admin struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Status       string `gorm:"default:active;not null"` // active/disabled
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// 2.2 Wallet & Billing

type Wallet struct {
	UserID       int64 `gorm:"primaryKey"`
	Balance      int64
	TotalWin     int64
	TotalConsume int64
	UpdatedAt    time.Time
}

type BillingLog struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	UserID       int64 `gorm:"index"`
	Type         string // bj_win/bj_lose/bj_surrender/bj_forfeit/adjust
	Delta        int64
	BalanceAfter int64
	TableID      *int64
	RoundNo      int
	MetaJSON     datatypes.JSON
	CreatedAt    time.Time
}

// 2.3 Tables & Rounds

type BlackjackTable struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64"`
	JoinCode  string `gorm:"unique;size:8"`
	Decks     int
	Reserve   int
	Status    string `gorm:"default:open;not null"` // open/closed
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

type BlackjackRound struct {
	ID              string `gorm:"primaryKey;size:36"`
	TableID         int64  `gorm:"index"`
	RoundNo         int
	DealerCardsJSON datatypes.JSON
	DealerScore     int
	DealerBust      bool
	SettlementsJSON datatypes.JSON
	CreatedAt       time.Time
}

type LedgerIncident struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	TableID    int64
	RoundNo    int
	UserID     int64
	Delta      int64
	Reason     string
	Error      string
	Status     string `gorm:"default:open;not null;index"` // open/resolved
	ResolvedBy *int64
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

const (
	IncidentStatusOpen     = "open"
	IncidentStatusResolved = "resolved"

	TableStatusOpen   = "open"
	TableStatusClosed = "closed"
)

func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Admin{},
		&Wallet{},
		&BillingLog{},
		&BlackjackTable{},
		&BlackjackRound{},
		&LedgerIncident{},
	}
}
