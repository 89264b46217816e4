package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// PageStorage implements the PageStorage interface for Badger. Pages are
// keyed by URL, so saving a URL twice replaces the cached copy.
type PageStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewPageStorage creates a new PageStorage instance
func NewPageStorage(db *DB, logger arbor.ILogger) interfaces.PageStorage {
	return &PageStorage{
		db:     db,
		logger: logger,
	}
}

// SavePage stores or replaces the cached page for its URL
func (s *PageStorage) SavePage(ctx context.Context, page *models.Page) error {
	if page == nil || page.URL == "" {
		return fmt.Errorf("page URL is required")
	}

	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now()
	}

	if err := s.db.Store().Upsert(page.URL, page); err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	return nil
}

// GetPage returns the cached page for the URL, or ErrKeyNotFound
func (s *PageStorage) GetPage(ctx context.Context, url string) (*models.Page, error) {
	var page models.Page
	err := s.db.Store().Get(url, &page)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

// IsFresh reports whether the page was fetched within the TTL. A zero or
// negative TTL means nothing is ever fresh.
func (s *PageStorage) IsFresh(page *models.Page, ttl time.Duration) bool {
	if page == nil || ttl <= 0 {
		return false
	}
	return time.Since(page.FetchedAt) < ttl
}

// DeleteExpired removes pages fetched before the TTL cutoff and returns how
// many were deleted.
func (s *PageStorage) DeleteExpired(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-ttl)

	var expired []models.Page
	if err := s.db.Store().Find(&expired, badgerhold.Where("FetchedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find expired pages: %w", err)
	}

	deleted := 0
	for i := range expired {
		if err := s.db.Store().Delete(expired[i].URL, &models.Page{}); err != nil {
			s.logger.Warn().Str("url", expired[i].URL).Err(err).Msg("Failed to delete expired page")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("count", deleted).Msg("Expired pages purged")
	}
	return deleted, nil
}

// ListPages returns all cached pages ordered by fetch time descending
func (s *PageStorage) ListPages(ctx context.Context) ([]*models.Page, error) {
	var pages []models.Page
	err := s.db.Store().Find(&pages, badgerhold.Where("URL").Ne("").SortBy("FetchedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	result := make([]*models.Page, len(pages))
	for i := range pages {
		result[i] = &pages[i]
	}
	return result, nil
}

// Count returns the number of cached pages
func (s *PageStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Page{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return int(count), nil
}
