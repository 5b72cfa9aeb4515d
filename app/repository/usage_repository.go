package repository

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/snipfox/snipfox/app/models"
)

// featureNamePattern guards the JSON paths built for feature counters.
var featureNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// usageRepository implements the UsageRepository interface
type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository instance
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// Increment applies one metering event as a single
// INSERT ... ON DUPLICATE KEY UPDATE with arithmetic increments. Concurrent
// events for the same (user, period) serialize on the row, so no update is
// ever lost. Counters only grow; negative deltas are rejected.
func (r *usageRepository) Increment(userID uint, periodStart time.Time, delta UsageDelta) error {
	if delta.Links < 0 || delta.Files < 0 || delta.StorageBytes < 0 {
		return fmt.Errorf("usage counters are monotonic, got negative delta")
	}
	for name, n := range delta.Features {
		if !featureNamePattern.MatchString(name) {
			return fmt.Errorf("invalid feature name %q", name)
		}
		if n < 0 {
			return fmt.Errorf("usage counters are monotonic, got negative delta for feature %q", name)
		}
	}

	features := delta.Features
	if features == nil {
		features = map[string]int64{}
	}
	featureDoc, err := json.Marshal(features)
	if err != nil {
		return err
	}

	record := models.UsagePeriodRecord{
		UserID:        userID,
		PeriodStart:   periodStart,
		LinksCreated:  delta.Links,
		FilesUploaded: delta.Files,
		StorageBytes:  delta.StorageBytes,
		FeatureCounts: models.JSON(featureDoc),
	}

	assignments := map[string]interface{}{
		"links_created":  gorm.Expr("links_created + ?", delta.Links),
		"files_uploaded": gorm.Expr("files_uploaded + ?", delta.Files),
		"storage_bytes":  gorm.Expr("storage_bytes + ?", delta.StorageBytes),
	}
	if len(features) > 0 {
		expr, args := featureIncrementExpr(features)
		assignments["feature_counts"] = gorm.Expr(expr, args...)
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&record).Error
}

// featureIncrementExpr builds a nested JSON_SET that adds each feature delta
// to the stored document in place. Column references inside ON DUPLICATE KEY
// UPDATE read the pre-update row, so every key extracts its old value from
// the original feature_counts.
func featureIncrementExpr(features map[string]int64) (string, []interface{}) {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	expr := "COALESCE(feature_counts, '{}')"
	args := make([]interface{}, 0, len(names))
	for _, name := range names {
		expr = fmt.Sprintf(
			"JSON_SET(%s, '$.%s', COALESCE(CAST(JSON_UNQUOTE(JSON_EXTRACT(feature_counts, '$.%s')) AS SIGNED), 0) + ?)",
			expr, name, name,
		)
		args = append(args, features[name])
	}
	return expr, args
}

// GetByUserAndPeriod retrieves the usage record for one billing period
func (r *usageRepository) GetByUserAndPeriod(userID uint, periodStart time.Time) (*models.UsagePeriodRecord, error) {
	var record models.UsagePeriodRecord
	err := r.db.Where("user_id = ? AND period_start = ?", userID, periodStart).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByUserID returns all usage periods for a user, newest first
func (r *usageRepository) ListByUserID(userID uint) ([]models.UsagePeriodRecord, error) {
	var records []models.UsagePeriodRecord
	err := r.db.Where("user_id = ?", userID).Order("period_start DESC").Find(&records).Error
	return records, err
}
