package store

import (
	"errors"
	"time"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

// Store defines persistence operations for users, books, reviews, bookmarks
// and usage counters.
type Store interface {
	// users
	CreateUser(u *domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id uint) (domain.User, bool, error)
	GetUserByGoogleID(googleID string) (domain.User, bool, error)
	ListUsersByRole(role domain.UserRole) ([]domain.User, error)
	SetUserActive(id uint, active bool) error
	SetSubscription(id uint, tier domain.SubscriptionTier) error
	SetProfilePicture(id uint, url string) error
	SaveProfile(p domain.UserProfile) error
	GetProfile(userID uint) (domain.UserProfile, bool, error)

	// books and chunks
	CreateBook(b *domain.Book, chunks []domain.BookChunk) error
	GetBook(id uint) (domain.Book, bool, error)
	GetBookBySlug(slug string) (domain.Book, bool, error)
	ListApprovedBooks() ([]domain.Book, error)
	ListPendingBooks() ([]domain.Book, error)
	ListBooksByAuthor(authorID uint) ([]domain.Book, error)
	UpdateBook(id uint, title, description string) error
	SetBookApproved(id uint, approved bool) error
	DeleteBook(id uint) error
	GetChunk(bookID uint, chunkNumber int) (domain.BookChunk, bool, error)
	ListChunks(bookID uint) ([]domain.BookChunk, error)

	// reviews
	CreateReview(r *domain.BookReview) error
	GetReviewByID(id uint) (domain.BookReview, bool, error)
	UpdateReview(id uint, rating int, text string) error
	DeleteReview(id uint) error
	ListReviewsByBook(bookID uint) ([]domain.BookReview, error)
	ReviewStats(bookID uint) (domain.ReviewStats, error)

	// bookmarks
	AddBookmark(b *domain.Bookmark) error
	RemoveBookmark(userID, bookID uint) error
	ListBookmarks(userID uint) ([]domain.Bookmark, error)

	// usage counters
	GetUsage(userID uint, period domain.UsagePeriod, periodStart time.Time) (domain.ReaderUsage, bool, error)
	ConsumeUsage(userID uint, rows []domain.ReaderUsage) error
}
