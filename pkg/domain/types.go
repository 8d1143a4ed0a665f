package domain

import "time"

type UserRole string

const (
	RoleReader UserRole = "reader"
	RoleAuthor UserRole = "author"
	RoleAdmin  UserRole = "admin"
)

type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
	TierAuthor  SubscriptionTier = "author"
)

type UsagePeriod string

const (
	PeriodDaily   UsagePeriod = "daily"
	PeriodMonthly UsagePeriod = "monthly"
)

type User struct {
	ID                uint             `json:"id"`
	Email             string           `json:"email"`
	Name              string           `json:"name"`
	GoogleID          string           `json:"-"`
	PasswordHash      string           `json:"-"`
	Role              UserRole         `json:"role"`
	Subscription      SubscriptionTier `json:"subscription"`
	Active            bool             `json:"active"`
	ProfilePictureURL string           `json:"profilePictureUrl,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// UserProfile is an optional 1:1 extension of a User.
type UserProfile struct {
	UserID     uint   `json:"userId"`
	NIC        string `json:"nic,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	Occupation string `json:"occupation,omitempty"`
}

type Book struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AuthorID    uint      `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Slug        string    `json:"slug"`
	Approved    bool      `json:"approved"`
	CoverKey    string    `json:"-"`
	StorageKey  string    `json:"-"`
	ChunkCount  int       `json:"chunkCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BookChunk is a page-range artifact of a book stored as a separate object.
type BookChunk struct {
	ID          uint              `json:"id"`
	BookID      uint              `json:"bookId"`
	ChunkNumber int               `json:"chunkNumber"`
	PageStart   int               `json:"pageStart"`
	PageEnd     int               `json:"pageEnd"`
	StorageKey  string            `json:"-"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type BookReview struct {
	ID        uint      `json:"id"`
	BookID    uint      `json:"bookId"`
	UserID    uint      `json:"userId"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReviewStats aggregates reviews for one book.
type ReviewStats struct {
	BookID        uint    `json:"bookId"`
	AverageRating float64 `json:"averageRating"`
	Count         int     `json:"count"`
}

type Bookmark struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"userId"`
	BookID    uint      `json:"bookId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReaderUsage is one per-user counter row for a usage window.
type ReaderUsage struct {
	ID          uint        `json:"id"`
	UserID      uint        `json:"userId"`
	PeriodType  UsagePeriod `json:"periodType"`
	PeriodStart time.Time   `json:"periodStart"`
	UsedCount   int         `json:"usedCount"`
	ResetAt     time.Time   `json:"resetAt"`
}
