package shortcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"

	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
)

// Alphabet for generated codes (62 characters: 0-9, a-z, A-Z)
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	// DefaultCodeLength is the starting length for generated codes.
	DefaultCodeLength = 6
	// MaxCodeLength caps the escalation when the shorter space runs hot.
	MaxCodeLength = 10
	// retriesPerLength bounds collision retries before the code length grows.
	retriesPerLength = 5
)

var (
	// ErrInvalidAlias rejects custom aliases outside 3-20 chars of [A-Za-z0-9_-].
	ErrInvalidAlias = errors.New("alias must be 3-20 characters of letters, digits, _ or -")
	// ErrAliasTaken signals the requested alias is already reserved.
	ErrAliasTaken = errors.New("alias is already taken")
	// ErrSpaceExhausted signals generation kept colliding even at MaxCodeLength.
	ErrSpaceExhausted = errors.New("could not allocate a unique code")
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// ValidAlias reports whether the alias satisfies the custom-alias rules.
func ValidAlias(alias string) bool {
	return aliasPattern.MatchString(alias)
}

// GenerateCode creates a cryptographically secure random Base62 code.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	// 248 is the largest multiple of 62 below 256.
	const maxRandomByte = 248

	code := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			code[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(code), nil
}

// Allocator reserves short codes. Uniqueness is enforced by the unique index
// on links.code at insert time; a pre-check cannot be trusted under
// concurrent allocation, so the only collision signal honored here is the
// duplicate-key error from the insert itself.
type Allocator struct {
	links repository.LinkRepository
}

// NewAllocator creates an allocator over the link repository.
func NewAllocator(links repository.LinkRepository) *Allocator {
	return &Allocator{links: links}
}

// Allocate assigns a code to the link and persists it within the owner's
// quota. With a custom alias there is exactly one attempt; generated codes
// are retried on collision with a bounded budget per length, then the length
// grows. Returns the owner's link count before the insert.
func (a *Allocator) Allocate(link *models.Link, customAlias string, limit *int64) (int64, error) {
	if customAlias != "" {
		if !ValidAlias(customAlias) {
			return 0, ErrInvalidAlias
		}
		link.Code = customAlias
		used, err := a.links.CreateWithinQuota(link, limit)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return used, ErrAliasTaken
		}
		return used, err
	}

	for length := DefaultCodeLength; length <= MaxCodeLength; length++ {
		for attempt := 0; attempt < retriesPerLength; attempt++ {
			code, err := GenerateCode(length)
			if err != nil {
				return 0, err
			}
			link.Code = code

			used, err := a.links.CreateWithinQuota(link, limit)
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return used, err
		}
	}

	return 0, ErrSpaceExhausted
}
