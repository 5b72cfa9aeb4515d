package usagemeter

import (
	"time"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
)

// PeriodFunc maps an instant to its billing period key. There is exactly one
// implementation in production (CurrentMonth); tests inject fixed periods.
type PeriodFunc func(time.Time) time.Time

// CurrentMonth returns the first instant of the month containing t, in UTC.
// This is the only place period keys are derived.
func CurrentMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the exclusive end of the period starting at periodStart.
func PeriodEnd(periodStart time.Time) time.Time {
	return periodStart.AddDate(0, 1, 0)
}

// Meter records billable events against the caller's current billing period.
// It is identity-agnostic: it meters whatever user ID the caller attributes
// the event to. Only enterprise accounts are billed from these records, but
// that policy lives with the callers, not here.
type Meter struct {
	usage    repository.UsageRepository
	periodOf PeriodFunc
	now      func() time.Time
}

// Option configures a Meter.
type Option func(*Meter)

// WithPeriodFunc overrides the period derivation (tests).
func WithPeriodFunc(fn PeriodFunc) Option {
	return func(m *Meter) { m.periodOf = fn }
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Meter) { m.now = now }
}

// NewMeter creates a usage meter over the usage repository.
func NewMeter(usage repository.UsageRepository, opts ...Option) *Meter {
	m := &Meter{
		usage:    usage,
		periodOf: CurrentMonth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordLinkCreated meters one link creation.
func (m *Meter) RecordLinkCreated(userID uint) error {
	return m.usage.Increment(userID, m.periodOf(m.now()), repository.UsageDelta{Links: 1})
}

// RecordFileUploaded meters one file upload and its size.
func (m *Meter) RecordFileUploaded(userID uint, bytes int64) error {
	return m.usage.Increment(userID, m.periodOf(m.now()), repository.UsageDelta{Files: 1, StorageBytes: bytes})
}

// RecordFeatures meters one activation per feature name.
func (m *Meter) RecordFeatures(userID uint, names []string) error {
	if len(names) == 0 {
		return nil
	}
	counts := make(map[string]int64, len(names))
	for _, name := range names {
		counts[name]++
	}
	return m.usage.Increment(userID, m.periodOf(m.now()), repository.UsageDelta{Features: counts})
}

// CurrentPeriod returns the period key for the current instant.
func (m *Meter) CurrentPeriod() time.Time {
	return m.periodOf(m.now())
}

// Snapshot reads the usage record for one period.
func (m *Meter) Snapshot(userID uint, periodStart time.Time) (*models.UsagePeriodRecord, error) {
	return m.usage.GetByUserAndPeriod(userID, periodStart)
}

// History returns all usage periods recorded for the user.
func (m *Meter) History(userID uint) ([]models.UsagePeriodRecord, error) {
	return m.usage.ListByUserID(userID)
}
