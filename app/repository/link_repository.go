package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/snipfox/snipfox/app/models"
)

// linkRepository implements the LinkRepository interface
type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository creates a new link repository instance
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

// Create inserts a link. A code collision comes back as
// gorm.ErrDuplicatedKey for the allocator to retry on.
func (r *linkRepository) Create(link *models.Link) error {
	return r.db.Create(link).Error
}

// CreateWithinQuota counts the owner's links and inserts the new one inside a
// single transaction. The count runs FOR UPDATE so InnoDB's next-key locks on
// the owner index serialize concurrent creates for the same owner; two
// requests cannot both observe a free slot. Returns the count before insert.
func (r *linkRepository) CreateWithinQuota(link *models.Link, limit *int64) (int64, error) {
	var used int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.Link{})
		if link.UserID != nil && *link.UserID != 0 {
			query = query.Where("user_id = ?", *link.UserID)
		} else {
			query = query.Where("owner_ip = ? AND user_id IS NULL", link.OwnerIP)
		}

		if err := query.Clauses(clause.Locking{Strength: "UPDATE"}).Count(&used).Error; err != nil {
			return err
		}

		if limit != nil && used >= *limit {
			return ErrQuotaExceeded
		}

		return tx.Create(link).Error
	})
	return used, err
}

// GetByCode retrieves a link by its short code
func (r *linkRepository) GetByCode(code string) (*models.Link, error) {
	var link models.Link
	err := r.db.Where("code = ?", code).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// CountByUserID returns the number of links owned by an account
func (r *linkRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Link{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CountByOwnerIP returns the number of links owned anonymously by an IP
func (r *linkRepository) CountByOwnerIP(ip string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Link{}).Where("owner_ip = ? AND user_id IS NULL", ip).Count(&count).Error
	return count, err
}

// GetByUserID retrieves a paginated list of an account's links
func (r *linkRepository) GetByUserID(userID uint, offset, limit int) ([]models.Link, error) {
	var links []models.Link
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Offset(offset).Limit(limit).Find(&links).Error
	return links, err
}

// Count returns the total number of links
func (r *linkRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Link{}).Count(&count).Error
	return count, err
}
