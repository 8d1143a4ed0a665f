package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&UserProfileModel{},
		&BookModel{},
		&BookChunkModel{},
		&BookReviewModel{},
		&BookmarkModel{},
		&ReaderUsageModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// CreateUser inserts a user. Email and Google id uniqueness violations
// surface as ErrDuplicate.
func (s *GormStore) CreateUser(u *domain.User) error {
	if u.GoogleID == "" && u.PasswordHash == "" {
		return errors.New("user requires at least one login method")
	}
	model := userToModel(*u)
	if err := s.db.Create(&model).Error; err != nil {
		return translateErr(err)
	}
	u.ID = model.ID
	u.CreatedAt = model.CreatedAt
	return nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	return s.findUser("email = ?", email)
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id uint) (domain.User, bool, error) {
	return s.findUser("id = ?", id)
}

// GetUserByGoogleID returns a user by external OAuth id.
func (s *GormStore) GetUserByGoogleID(googleID string) (domain.User, bool, error) {
	return s.findUser("google_id = ?", googleID)
}

func (s *GormStore) findUser(query string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsersByRole returns users with the given role ordered by created_at.
func (s *GormStore) ListUsersByRole(role domain.UserRole) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Where("role = ?", string(role)).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, nil
}

// SetUserActive flips the active flag. ErrNotFound when the id is unknown.
func (s *GormStore) SetUserActive(id uint, active bool) error {
	return s.updateUserColumns(id, map[string]any{"active": active})
}

// SetSubscription updates the subscription tier.
func (s *GormStore) SetSubscription(id uint, tier domain.SubscriptionTier) error {
	return s.updateUserColumns(id, map[string]any{"subscription": string(tier)})
}

// SetProfilePicture stores the uploaded picture URL.
func (s *GormStore) SetProfilePicture(id uint, url string) error {
	return s.updateUserColumns(id, map[string]any{"profile_picture_url": url})
}

func (s *GormStore) updateUserColumns(id uint, updates map[string]any) error {
	res := s.db.Model(&UserModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveProfile creates or replaces the 1:1 profile extension.
func (s *GormStore) SaveProfile(p domain.UserProfile) error {
	model := UserProfileModel{
		UserID:     p.UserID,
		NIC:        p.NIC,
		Phone:      p.Phone,
		Address:    p.Address,
		Occupation: p.Occupation,
		UpdatedAt:  time.Now().UTC(),
	}
	return translateErr(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nic", "phone", "address", "occupation", "updated_at"}),
	}).Create(&model).Error)
}

// GetProfile fetches the profile extension when present.
func (s *GormStore) GetProfile(userID uint) (domain.UserProfile, bool, error) {
	var model UserProfileModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, err
	}
	return domain.UserProfile{
		UserID:     model.UserID,
		NIC:        model.NIC,
		Phone:      model.Phone,
		Address:    model.Address,
		Occupation: model.Occupation,
	}, true, nil
}

// CreateBook inserts the book and its chunk rows in one transaction.
func (s *GormStore) CreateBook(b *domain.Book, chunks []domain.BookChunk) error {
	return translateErr(s.db.Transaction(func(tx *gorm.DB) error {
		model := bookToModel(*b)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		b.ID = model.ID
		if len(chunks) == 0 {
			return nil
		}
		chunkModels := make([]BookChunkModel, 0, len(chunks))
		for _, chunk := range chunks {
			cm := chunkToModel(chunk)
			cm.BookID = model.ID
			chunkModels = append(chunkModels, cm)
		}
		return tx.CreateInBatches(&chunkModels, 200).Error
	}))
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id uint) (domain.Book, bool, error) {
	return s.findBook("id = ?", id)
}

// GetBookBySlug retrieves a book by its slug.
func (s *GormStore) GetBookBySlug(slug string) (domain.Book, bool, error) {
	return s.findBook("slug = ?", slug)
}

func (s *GormStore) findBook(query string, arg any) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListApprovedBooks returns the public catalog.
func (s *GormStore) ListApprovedBooks() ([]domain.Book, error) {
	return s.listBooks("approved = ?", true)
}

// ListPendingBooks returns books awaiting approval.
func (s *GormStore) ListPendingBooks() ([]domain.Book, error) {
	return s.listBooks("approved = ?", false)
}

// ListBooksByAuthor returns all books of one author, approved or not.
func (s *GormStore) ListBooksByAuthor(authorID uint) ([]domain.Book, error) {
	return s.listBooks("author_id = ?", authorID)
}

func (s *GormStore) listBooks(query string, arg any) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Where(query, arg).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, nil
}

// UpdateBook changes title/description.
func (s *GormStore) UpdateBook(id uint, title, description string) error {
	res := s.db.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
		"title":       title,
		"description": description,
		"updated_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBookApproved sets the approval flag. Setting the same value twice is a
// no-op success.
func (s *GormStore) SetBookApproved(id uint, approved bool) error {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return translateErr(err)
	}
	if model.Approved == approved {
		return nil
	}
	return translateErr(s.db.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
		"approved":   approved,
		"updated_at": time.Now().UTC(),
	}).Error)
}

// DeleteBook removes the book with its chunks, reviews and bookmarks.
func (s *GormStore) DeleteBook(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&BookChunkModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&BookReviewModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&BookmarkModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

// GetChunk fetches one chunk by (book, chunk number).
func (s *GormStore) GetChunk(bookID uint, chunkNumber int) (domain.BookChunk, bool, error) {
	var model BookChunkModel
	if err := s.db.Where("book_id = ? AND chunk_number = ?", bookID, chunkNumber).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BookChunk{}, false, nil
		}
		return domain.BookChunk{}, false, err
	}
	return chunkFromModel(model), true, nil
}

// ListChunks returns the ordered chunk list of a book.
func (s *GormStore) ListChunks(bookID uint) ([]domain.BookChunk, error) {
	var models []BookChunkModel
	if err := s.db.Where("book_id = ?", bookID).Order("chunk_number ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.BookChunk, 0, len(models))
	for _, m := range models {
		chunks = append(chunks, chunkFromModel(m))
	}
	return chunks, nil
}

// CreateReview inserts a review; duplicate (book, user) pairs surface as
// ErrDuplicate via the unique index.
func (s *GormStore) CreateReview(r *domain.BookReview) error {
	model := BookReviewModel{
		BookID:    r.BookID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return translateErr(err)
	}
	r.ID = model.ID
	return nil
}

// GetReviewByID fetches one review.
func (s *GormStore) GetReviewByID(id uint) (domain.BookReview, bool, error) {
	var model BookReviewModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BookReview{}, false, nil
		}
		return domain.BookReview{}, false, err
	}
	return reviewFromModel(model), true, nil
}

// UpdateReview changes rating/text and refreshes updated_at.
func (s *GormStore) UpdateReview(id uint, rating int, text string) error {
	res := s.db.Model(&BookReviewModel{}).Where("id = ?", id).Updates(map[string]any{
		"rating":     rating,
		"text":       text,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReview removes a review.
func (s *GormStore) DeleteReview(id uint) error {
	res := s.db.Delete(&BookReviewModel{}, "id = ?", id)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReviewsByBook returns reviews for one book, newest first.
func (s *GormStore) ListReviewsByBook(bookID uint) ([]domain.BookReview, error) {
	var models []BookReviewModel
	if err := s.db.Where("book_id = ?", bookID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	reviews := make([]domain.BookReview, 0, len(models))
	for _, m := range models {
		reviews = append(reviews, reviewFromModel(m))
	}
	return reviews, nil
}

// ReviewStats aggregates average rating and count for one book.
func (s *GormStore) ReviewStats(bookID uint) (domain.ReviewStats, error) {
	var row struct {
		Avg   float64
		Count int64
	}
	err := s.db.Model(&BookReviewModel{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("book_id = ?", bookID).
		Scan(&row).Error
	if err != nil {
		return domain.ReviewStats{}, err
	}
	return domain.ReviewStats{
		BookID:        bookID,
		AverageRating: row.Avg,
		Count:         int(row.Count),
	}, nil
}

// AddBookmark inserts a bookmark; duplicates surface as ErrDuplicate.
func (s *GormStore) AddBookmark(b *domain.Bookmark) error {
	model := BookmarkModel{
		UserID:    b.UserID,
		BookID:    b.BookID,
		CreatedAt: b.CreatedAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return translateErr(err)
	}
	b.ID = model.ID
	return nil
}

// RemoveBookmark deletes the (user, book) bookmark.
func (s *GormStore) RemoveBookmark(userID, bookID uint) error {
	res := s.db.Delete(&BookmarkModel{}, "user_id = ? AND book_id = ?", userID, bookID)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBookmarks returns a user's bookmarks, newest first.
func (s *GormStore) ListBookmarks(userID uint) ([]domain.Bookmark, error) {
	var models []BookmarkModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	bookmarks := make([]domain.Bookmark, 0, len(models))
	for _, m := range models {
		bookmarks = append(bookmarks, domain.Bookmark{
			ID:        m.ID,
			UserID:    m.UserID,
			BookID:    m.BookID,
			CreatedAt: m.CreatedAt,
		})
	}
	return bookmarks, nil
}

// GetUsage fetches the counter row for one window when it exists.
func (s *GormStore) GetUsage(userID uint, period domain.UsagePeriod, periodStart time.Time) (domain.ReaderUsage, bool, error) {
	var model ReaderUsageModel
	err := s.db.Where("user_id = ? AND period_type = ? AND period_start = ?",
		userID, string(period), periodStart.UTC()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReaderUsage{}, false, nil
		}
		return domain.ReaderUsage{}, false, err
	}
	return usageFromModel(model), true, nil
}

// ConsumeUsage increments every window row inside one transaction, lazily
// creating rows on first consumption in a period. All-or-nothing.
func (s *GormStore) ConsumeUsage(userID uint, rows []domain.ReaderUsage) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			model := ReaderUsageModel{
				UserID:      userID,
				PeriodType:  string(row.PeriodType),
				PeriodStart: row.PeriodStart.UTC(),
				UsedCount:   1,
				ResetAt:     row.ResetAt.UTC(),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "period_type"}, {Name: "period_start"}},
				DoUpdates: clause.Assignments(map[string]any{
					"used_count": gorm.Expr("reader_usage_models.used_count + 1"),
				}),
			}).Create(&model).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func userToModel(u domain.User) UserModel {
	var googleID *string
	if u.GoogleID != "" {
		value := u.GoogleID
		googleID = &value
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return UserModel{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		GoogleID:          googleID,
		PasswordHash:      u.PasswordHash,
		Role:              string(u.Role),
		Subscription:      string(u.Subscription),
		Active:            u.Active,
		ProfilePictureURL: u.ProfilePictureURL,
		CreatedAt:         createdAt,
	}
}

func userFromModel(m UserModel) domain.User {
	googleID := ""
	if m.GoogleID != nil {
		googleID = *m.GoogleID
	}
	return domain.User{
		ID:                m.ID,
		Email:             m.Email,
		Name:              m.Name,
		GoogleID:          googleID,
		PasswordHash:      m.PasswordHash,
		Role:              domain.UserRole(m.Role),
		Subscription:      domain.SubscriptionTier(m.Subscription),
		Active:            m.Active,
		ProfilePictureURL: m.ProfilePictureURL,
		CreatedAt:         m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		AuthorID:    b.AuthorID,
		AuthorName:  b.AuthorName,
		Slug:        b.Slug,
		Approved:    b.Approved,
		CoverKey:    b.CoverKey,
		StorageKey:  b.StorageKey,
		ChunkCount:  b.ChunkCount,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		AuthorID:    m.AuthorID,
		AuthorName:  m.AuthorName,
		Slug:        m.Slug,
		Approved:    m.Approved,
		CoverKey:    m.CoverKey,
		StorageKey:  m.StorageKey,
		ChunkCount:  m.ChunkCount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func chunkToModel(chunk domain.BookChunk) BookChunkModel {
	meta, _ := json.Marshal(chunk.Metadata)
	return BookChunkModel{
		ID:          chunk.ID,
		BookID:      chunk.BookID,
		ChunkNumber: chunk.ChunkNumber,
		PageStart:   chunk.PageStart,
		PageEnd:     chunk.PageEnd,
		StorageKey:  chunk.StorageKey,
		Metadata:    meta,
		CreatedAt:   chunk.CreatedAt,
	}
}

func chunkFromModel(m BookChunkModel) domain.BookChunk {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.BookChunk{
		ID:          m.ID,
		BookID:      m.BookID,
		ChunkNumber: m.ChunkNumber,
		PageStart:   m.PageStart,
		PageEnd:     m.PageEnd,
		StorageKey:  m.StorageKey,
		Metadata:    meta,
		CreatedAt:   m.CreatedAt,
	}
}

func reviewFromModel(m BookReviewModel) domain.BookReview {
	return domain.BookReview{
		ID:        m.ID,
		BookID:    m.BookID,
		UserID:    m.UserID,
		Rating:    m.Rating,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func usageFromModel(m ReaderUsageModel) domain.ReaderUsage {
	return domain.ReaderUsage{
		ID:          m.ID,
		UserID:      m.UserID,
		PeriodType:  domain.UsagePeriod(m.PeriodType),
		PeriodStart: m.PeriodStart,
		UsedCount:   m.UsedCount,
		ResetAt:     m.ResetAt,
	}
}
