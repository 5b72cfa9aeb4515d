package shortcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
)

// stubLinkRepo simulates the unique index on links.code: inserting a taken
// code fails with gorm.ErrDuplicatedKey, exactly like the real repository
// with TranslateError enabled.
type stubLinkRepo struct {
	taken     map[string]bool
	failFirst int // duplicate-key the first N inserts regardless of code
	attempts  int
	used      int64
	quotaErr  error
}

func (s *stubLinkRepo) Create(link *models.Link) error {
	_, err := s.CreateWithinQuota(link, nil)
	return err
}

func (s *stubLinkRepo) CreateWithinQuota(link *models.Link, limit *int64) (int64, error) {
	s.attempts++
	if s.quotaErr != nil {
		return s.used, s.quotaErr
	}
	if s.attempts <= s.failFirst {
		return s.used, gorm.ErrDuplicatedKey
	}
	if s.taken[link.Code] {
		return s.used, gorm.ErrDuplicatedKey
	}
	if s.taken == nil {
		s.taken = map[string]bool{}
	}
	s.taken[link.Code] = true
	return s.used, nil
}

func (s *stubLinkRepo) GetByCode(code string) (*models.Link, error) { return nil, gorm.ErrRecordNotFound }
func (s *stubLinkRepo) CountByUserID(userID uint) (int64, error)    { return s.used, nil }
func (s *stubLinkRepo) CountByOwnerIP(ip string) (int64, error)     { return s.used, nil }
func (s *stubLinkRepo) GetByUserID(userID uint, offset, limit int) ([]models.Link, error) {
	return nil, nil
}
func (s *stubLinkRepo) Count() (int64, error) { return 0, nil }

func newTestLink() *models.Link {
	return &models.Link{Type: models.LINK_TYPE_URL, TargetURL: "https://example.com", OwnerIP: "10.0.0.1"}
}

func TestValidAlias(t *testing.T) {
	tests := []struct {
		name  string
		alias string
		valid bool
	}{
		{"simple", "my-link", true},
		{"minimum length", "abc", true},
		{"maximum length", strings.Repeat("a", 20), true},
		{"underscore and digits", "promo_2026", true},
		{"too short", "ab", false},
		{"too long", strings.Repeat("a", 21), false},
		{"spaces", "my link", false},
		{"slash", "a/b", false},
		{"empty", "", false},
		{"unicode", "läuft", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidAlias(tt.alias))
		})
	}
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(DefaultCodeLength)
		require.NoError(t, err)
		assert.Len(t, code, DefaultCodeLength)
		for _, r := range code {
			assert.Contains(t, alphabet, string(r))
		}
		seen[code] = true
	}
	// 100 random 6-char codes colliding would mean broken randomness
	assert.Greater(t, len(seen), 95)
}

func TestGenerateCode_InvalidLength(t *testing.T) {
	_, err := GenerateCode(0)
	assert.Error(t, err)
}

func TestAllocator_GeneratedCode(t *testing.T) {
	repo := &stubLinkRepo{}
	allocator := NewAllocator(repo)

	link := newTestLink()
	_, err := allocator.Allocate(link, "", nil)
	require.NoError(t, err)
	assert.Len(t, link.Code, DefaultCodeLength)
}

func TestAllocator_RetriesOnCollision(t *testing.T) {
	repo := &stubLinkRepo{failFirst: 3}
	allocator := NewAllocator(repo)

	link := newTestLink()
	_, err := allocator.Allocate(link, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, repo.attempts)
	assert.Len(t, link.Code, DefaultCodeLength)
}

func TestAllocator_EscalatesLength(t *testing.T) {
	// exhaust the retry budget for 6 chars, succeed at 7
	repo := &stubLinkRepo{failFirst: 5}
	allocator := NewAllocator(repo)

	link := newTestLink()
	_, err := allocator.Allocate(link, "", nil)
	require.NoError(t, err)
	assert.Len(t, link.Code, DefaultCodeLength+1)
}

func TestAllocator_SpaceExhausted(t *testing.T) {
	// every length up to the cap keeps colliding
	totalBudget := (MaxCodeLength - DefaultCodeLength + 1) * 5
	repo := &stubLinkRepo{failFirst: totalBudget}
	allocator := NewAllocator(repo)

	_, err := allocator.Allocate(newTestLink(), "", nil)
	assert.ErrorIs(t, err, ErrSpaceExhausted)
}

func TestAllocator_CustomAlias(t *testing.T) {
	repo := &stubLinkRepo{}
	allocator := NewAllocator(repo)

	link := newTestLink()
	_, err := allocator.Allocate(link, "my-alias", nil)
	require.NoError(t, err)
	assert.Equal(t, "my-alias", link.Code)
}

func TestAllocator_AliasTaken(t *testing.T) {
	repo := &stubLinkRepo{taken: map[string]bool{"my-alias": true}}
	allocator := NewAllocator(repo)

	_, err := allocator.Allocate(newTestLink(), "my-alias", nil)
	assert.ErrorIs(t, err, ErrAliasTaken)
	// a taken alias is never retried
	assert.Equal(t, 1, repo.attempts)
}

func TestAllocator_InvalidAlias(t *testing.T) {
	repo := &stubLinkRepo{}
	allocator := NewAllocator(repo)

	_, err := allocator.Allocate(newTestLink(), "a!", nil)
	assert.ErrorIs(t, err, ErrInvalidAlias)
	assert.Zero(t, repo.attempts)
}

func TestAllocator_QuotaExceededPassesThrough(t *testing.T) {
	repo := &stubLinkRepo{quotaErr: repository.ErrQuotaExceeded, used: 2}
	allocator := NewAllocator(repo)

	used, err := allocator.Allocate(newTestLink(), "", nil)
	assert.ErrorIs(t, err, repository.ErrQuotaExceeded)
	assert.Equal(t, int64(2), used)
	// quota failures do not burn collision retries
	assert.Equal(t, 1, repo.attempts)
}
