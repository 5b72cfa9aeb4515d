package usagemeter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
)

// recordingUsageRepo captures every increment it receives.
type recordingUsageRepo struct {
	err   error
	calls []struct {
		userID uint
		period time.Time
		delta  repository.UsageDelta
	}
}

func (r *recordingUsageRepo) Increment(userID uint, periodStart time.Time, delta repository.UsageDelta) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, struct {
		userID uint
		period time.Time
		delta  repository.UsageDelta
	}{userID, periodStart, delta})
	return nil
}

func (r *recordingUsageRepo) GetByUserAndPeriod(userID uint, periodStart time.Time) (*models.UsagePeriodRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *recordingUsageRepo) ListByUserID(userID uint) ([]models.UsagePeriodRecord, error) {
	return nil, nil
}

func TestCurrentMonth(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"mid month",
			time.Date(2026, time.July, 15, 13, 45, 0, 0, time.UTC),
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"first instant stays put",
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"last instant of the month",
			time.Date(2026, time.July, 31, 23, 59, 59, 999999999, time.UTC),
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"non-UTC zone normalizes to UTC",
			time.Date(2026, time.August, 1, 1, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, CurrentMonth(tt.in).Equal(tt.want), "got %v", CurrentMonth(tt.in))
		})
	}
}

func TestPeriodEnd(t *testing.T) {
	start := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, PeriodEnd(start).Equal(time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMeter_RecordLinkCreated(t *testing.T) {
	repo := &recordingUsageRepo{}
	fixed := time.Date(2026, time.July, 20, 8, 0, 0, 0, time.UTC)
	meter := NewMeter(repo, WithClock(func() time.Time { return fixed }))

	require.NoError(t, meter.RecordLinkCreated(7))

	require.Len(t, repo.calls, 1)
	call := repo.calls[0]
	assert.Equal(t, uint(7), call.userID)
	assert.True(t, call.period.Equal(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1), call.delta.Links)
	assert.Zero(t, call.delta.Files)
}

func TestMeter_RecordFileUploaded(t *testing.T) {
	repo := &recordingUsageRepo{}
	meter := NewMeter(repo)

	require.NoError(t, meter.RecordFileUploaded(7, 1024))

	require.Len(t, repo.calls, 1)
	assert.Equal(t, int64(1), repo.calls[0].delta.Files)
	assert.Equal(t, int64(1024), repo.calls[0].delta.StorageBytes)
}

func TestMeter_RecordFeatures(t *testing.T) {
	repo := &recordingUsageRepo{}
	meter := NewMeter(repo)

	require.NoError(t, meter.RecordFeatures(7, []string{"chatbot", "download", "chatbot"}))

	require.Len(t, repo.calls, 1)
	assert.Equal(t, map[string]int64{"chatbot": 2, "download": 1}, repo.calls[0].delta.Features)

	// no names, no call
	require.NoError(t, meter.RecordFeatures(7, nil))
	assert.Len(t, repo.calls, 1)
}

func TestMeter_RecordLinkCreated_SurfacesRepositoryError(t *testing.T) {
	repo := &recordingUsageRepo{err: errors.New("usage store unavailable")}
	meter := NewMeter(repo)

	// callers decide what to do with a failed metering event, so the error
	// must come back instead of being swallowed here
	err := meter.RecordLinkCreated(7)
	assert.EqualError(t, err, "usage store unavailable")
	assert.Empty(t, repo.calls)
}

func TestMeter_PeriodBoundary(t *testing.T) {
	repo := &recordingUsageRepo{}
	now := time.Date(2026, time.July, 31, 23, 59, 59, 0, time.UTC)
	meter := NewMeter(repo, WithClock(func() time.Time { return now }))

	require.NoError(t, meter.RecordLinkCreated(7))
	now = time.Date(2026, time.August, 1, 0, 0, 0, 1, time.UTC)
	require.NoError(t, meter.RecordLinkCreated(7))

	require.Len(t, repo.calls, 2)
	assert.False(t, repo.calls[0].period.Equal(repo.calls[1].period))
}
