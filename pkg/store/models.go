package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID                uint    `gorm:"primaryKey"`
	Email             string  `gorm:"uniqueIndex;not null"`
	Name              string  `gorm:"not null"`
	GoogleID          *string `gorm:"uniqueIndex"`
	PasswordHash      string
	Role              string `gorm:"not null"`
	Subscription      string `gorm:"not null"`
	Active            bool   `gorm:"not null;default:true"`
	ProfilePictureURL string
	CreatedAt         time.Time `gorm:"not null"`
}

type UserProfileModel struct {
	UserID     uint `gorm:"primaryKey"`
	NIC        string
	Phone      string
	Address    string
	Occupation string
	UpdatedAt  time.Time
}

type BookModel struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string
	AuthorID    uint   `gorm:"not null;index"`
	AuthorName  string `gorm:"not null"`
	Slug        string `gorm:"uniqueIndex;not null"`
	Approved    bool   `gorm:"not null;default:false"`
	CoverKey    string
	StorageKey  string
	ChunkCount  int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type BookChunkModel struct {
	ID          uint `gorm:"primaryKey"`
	BookID      uint `gorm:"not null;uniqueIndex:idx_book_chunk"`
	ChunkNumber int  `gorm:"not null;uniqueIndex:idx_book_chunk"`
	PageStart   int  `gorm:"not null"`
	PageEnd     int  `gorm:"not null"`
	StorageKey  string
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
}

type BookReviewModel struct {
	ID        uint   `gorm:"primaryKey"`
	BookID    uint   `gorm:"not null;uniqueIndex:idx_book_user_review"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_book_user_review"`
	Rating    int    `gorm:"not null"`
	Text      string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type BookmarkModel struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_book_bookmark"`
	BookID    uint      `gorm:"not null;uniqueIndex:idx_user_book_bookmark"`
	CreatedAt time.Time `gorm:"not null"`
}

type ReaderUsageModel struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_user_period"`
	PeriodType  string    `gorm:"not null;uniqueIndex:idx_user_period"`
	PeriodStart time.Time `gorm:"not null;uniqueIndex:idx_user_period"`
	UsedCount   int       `gorm:"not null"`
	ResetAt     time.Time `gorm:"not null"`
}
