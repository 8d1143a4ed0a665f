package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the GormStore semantics including uniqueness conflicts.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    uint
	users     map[uint]domain.User
	profiles  map[uint]domain.UserProfile
	books     map[uint]domain.Book
	chunks    map[uint][]domain.BookChunk
	reviews   map[uint]domain.BookReview
	bookmarks map[uint]domain.Bookmark
	usage     map[usageKey]domain.ReaderUsage
}

type usageKey struct {
	userID      uint
	periodType  domain.UsagePeriod
	periodStart time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		users:     make(map[uint]domain.User),
		profiles:  make(map[uint]domain.UserProfile),
		books:     make(map[uint]domain.Book),
		chunks:    make(map[uint][]domain.BookChunk),
		reviews:   make(map[uint]domain.BookReview),
		bookmarks: make(map[uint]domain.Bookmark),
		usage:     make(map[usageKey]domain.ReaderUsage),
	}
}

func (s *MemoryStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

func (s *MemoryStore) CreateUser(u *domain.User) error {
	if u.GoogleID == "" && u.PasswordHash == "" {
		return errors.New("user requires at least one login method")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
		if u.GoogleID != "" && existing.GoogleID == u.GoogleID {
			return ErrDuplicate
		}
	}
	u.ID = s.allocID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id uint) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByGoogleID(googleID string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.GoogleID != "" && u.GoogleID == googleID {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) ListUsersByRole(role domain.UserRole) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]domain.User, 0)
	for _, u := range s.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) SetUserActive(id uint, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SetSubscription(id uint, tier domain.SubscriptionTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Subscription = tier
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SetProfilePicture(id uint, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ProfilePictureURL = url
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SaveProfile(p domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

func (s *MemoryStore) GetProfile(userID uint) (domain.UserProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	return p, ok, nil
}

func (s *MemoryStore) CreateBook(b *domain.Book, chunks []domain.BookChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.books {
		if existing.Slug == b.Slug {
			return ErrDuplicate
		}
	}
	b.ID = s.allocID()
	s.books[b.ID] = *b
	stored := make([]domain.BookChunk, 0, len(chunks))
	for _, chunk := range chunks {
		chunk.ID = s.allocID()
		chunk.BookID = b.ID
		stored = append(stored, chunk)
	}
	s.chunks[b.ID] = stored
	return nil
}

func (s *MemoryStore) GetBook(id uint) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) GetBookBySlug(slug string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.Slug == slug {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

func (s *MemoryStore) ListApprovedBooks() ([]domain.Book, error) {
	return s.listBooks(func(b domain.Book) bool { return b.Approved })
}

func (s *MemoryStore) ListPendingBooks() ([]domain.Book, error) {
	return s.listBooks(func(b domain.Book) bool { return !b.Approved })
}

func (s *MemoryStore) ListBooksByAuthor(authorID uint) ([]domain.Book, error) {
	return s.listBooks(func(b domain.Book) bool { return b.AuthorID == authorID })
}

func (s *MemoryStore) listBooks(keep func(domain.Book) bool) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	books := make([]domain.Book, 0)
	for _, b := range s.books {
		if keep(b) {
			books = append(books, b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (s *MemoryStore) UpdateBook(id uint, title, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return ErrNotFound
	}
	b.Title = title
	b.Description = description
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) SetBookApproved(id uint, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return ErrNotFound
	}
	if b.Approved == approved {
		return nil
	}
	b.Approved = approved
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) DeleteBook(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	delete(s.chunks, id)
	for rid, r := range s.reviews {
		if r.BookID == id {
			delete(s.reviews, rid)
		}
	}
	for bid, b := range s.bookmarks {
		if b.BookID == id {
			delete(s.bookmarks, bid)
		}
	}
	return nil
}

func (s *MemoryStore) GetChunk(bookID uint, chunkNumber int) (domain.BookChunk, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range s.chunks[bookID] {
		if chunk.ChunkNumber == chunkNumber {
			return chunk, true, nil
		}
	}
	return domain.BookChunk{}, false, nil
}

func (s *MemoryStore) ListChunks(bookID uint) ([]domain.BookChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := append([]domain.BookChunk(nil), s.chunks[bookID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkNumber < chunks[j].ChunkNumber })
	return chunks, nil
}

func (s *MemoryStore) CreateReview(r *domain.BookReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if existing.BookID == r.BookID && existing.UserID == r.UserID {
			return ErrDuplicate
		}
	}
	r.ID = s.allocID()
	s.reviews[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetReviewByID(id uint) (domain.BookReview, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	return r, ok, nil
}

func (s *MemoryStore) UpdateReview(id uint, rating int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return ErrNotFound
	}
	r.Rating = rating
	r.Text = text
	r.UpdatedAt = time.Now().UTC()
	s.reviews[id] = r
	return nil
}

func (s *MemoryStore) DeleteReview(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[id]; !ok {
		return ErrNotFound
	}
	delete(s.reviews, id)
	return nil
}

func (s *MemoryStore) ListReviewsByBook(bookID uint) ([]domain.BookReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reviews := make([]domain.BookReview, 0)
	for _, r := range s.reviews {
		if r.BookID == bookID {
			reviews = append(reviews, r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].ID > reviews[j].ID })
	return reviews, nil
}

func (s *MemoryStore) ReviewStats(bookID uint) (domain.ReviewStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.ReviewStats{BookID: bookID}
	sum := 0
	for _, r := range s.reviews {
		if r.BookID == bookID {
			stats.Count++
			sum += r.Rating
		}
	}
	if stats.Count > 0 {
		stats.AverageRating = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}

func (s *MemoryStore) AddBookmark(b *domain.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bookmarks {
		if existing.UserID == b.UserID && existing.BookID == b.BookID {
			return ErrDuplicate
		}
	}
	b.ID = s.allocID()
	s.bookmarks[b.ID] = *b
	return nil
}

func (s *MemoryStore) RemoveBookmark(userID, bookID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.bookmarks {
		if existing.UserID == userID && existing.BookID == bookID {
			delete(s.bookmarks, id)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListBookmarks(userID uint) ([]domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bookmarks := make([]domain.Bookmark, 0)
	for _, b := range s.bookmarks {
		if b.UserID == userID {
			bookmarks = append(bookmarks, b)
		}
	}
	sort.Slice(bookmarks, func(i, j int) bool { return bookmarks[i].ID > bookmarks[j].ID })
	return bookmarks, nil
}

func (s *MemoryStore) GetUsage(userID uint, period domain.UsagePeriod, periodStart time.Time) (domain.ReaderUsage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.usage[usageKey{userID, period, periodStart.UTC()}]
	return row, ok, nil
}

func (s *MemoryStore) ConsumeUsage(userID uint, rows []domain.ReaderUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		key := usageKey{userID, row.PeriodType, row.PeriodStart.UTC()}
		existing, ok := s.usage[key]
		if !ok {
			existing = domain.ReaderUsage{
				ID:          s.allocID(),
				UserID:      userID,
				PeriodType:  row.PeriodType,
				PeriodStart: row.PeriodStart.UTC(),
				ResetAt:     row.ResetAt.UTC(),
			}
		}
		existing.UsedCount++
		s.usage[key] = existing
	}
	return nil
}
