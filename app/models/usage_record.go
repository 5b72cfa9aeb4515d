package models

import (
	"encoding/json"
	"time"
)

// UsagePeriodRecord accumulates billable counters for one user and one
// calendar month (PeriodStart is the first instant of the month, UTC).
// Exactly one row exists per (user, period); counters only ever grow. All
// increments go through UsageRepository.Increment, which is a single atomic
// upsert so concurrent events for the same user cannot lose updates.
type UsagePeriodRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:ux_usage_user_period,priority:1" json:"user_id"`
	PeriodStart   time.Time `gorm:"type:datetime;not null;uniqueIndex:ux_usage_user_period,priority:2" json:"period_start"`
	LinksCreated  int64     `gorm:"not null;default:0" json:"links_created"`
	FilesUploaded int64     `gorm:"not null;default:0" json:"files_uploaded"`
	StorageBytes  int64     `gorm:"not null;default:0" json:"storage_bytes"`
	FeatureCounts JSON      `gorm:"type:json" json:"feature_counts"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FeatureCountMap decodes the feature counter document. Empty map when unset.
func (r *UsagePeriodRecord) FeatureCountMap() map[string]int64 {
	counts := map[string]int64{}
	if len(r.FeatureCounts) == 0 {
		return counts
	}
	if err := json.Unmarshal([]byte(r.FeatureCounts), &counts); err != nil {
		return map[string]int64{}
	}
	return counts
}

// SetFeatureCounts encodes the feature counter document.
func (r *UsagePeriodRecord) SetFeatureCounts(counts map[string]int64) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	r.FeatureCounts = JSON(raw)
	return nil
}

// TotalEvents sums every metered event in this record (links, files and
// feature activations; storage bytes are a gauge, not an event count).
func (r *UsagePeriodRecord) TotalEvents() int64 {
	total := r.LinksCreated + r.FilesUploaded
	for _, n := range r.FeatureCountMap() {
		total += n
	}
	return total
}
