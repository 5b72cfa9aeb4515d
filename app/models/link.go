package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSON stores raw JSON documents in a MySQL json column.
type JSON json.RawMessage

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("{}")
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	*j = JSON(bytes)
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(data)
	return nil
}

const (
	LINK_TYPE_URL  = "url"
	LINK_TYPE_FILE = "file"
)

// Link is a shortened resource: a redirect target or an uploaded file served
// via a presigned URL. Exactly one of UserID / OwnerIP is set; the unique
// index on Code is the authority for code uniqueness (allocation retries on
// duplicate-key, it never trusts a pre-check).
type Link struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	Code             string  `gorm:"type:varchar(20) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"code"`
	UserID           *uint   `gorm:"index;default:null" json:"user_id,omitempty"`
	User             *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	OwnerIP          string  `gorm:"type:varchar(45);index;default:null" json:"-"`
	PlanIDAtCreation uint    `gorm:"not null" json:"plan_id_at_creation"`
	Type             string  `gorm:"type:varchar(10);not null;default:'url'" json:"type" validate:"oneof=url file"`
	TargetURL        string  `gorm:"type:text" json:"target_url"`
	StorageKey       string  `gorm:"type:varchar(255)" json:"-"`
	FileName         string  `gorm:"type:varchar(255)" json:"file_name,omitempty"`
	FileSize         int64   `gorm:"type:bigint;default:0" json:"file_size,omitempty"`
	ContentType      string  `gorm:"type:varchar(100)" json:"content_type,omitempty"`
	PasswordHash     string  `gorm:"type:text" json:"-"`
	Features         *JSON   `gorm:"type:json" json:"features,omitempty"`
	ClickCount       int64   `gorm:"default:0" json:"click_count"`
	ExpiresAt        *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave guards the owner invariant: account XOR IP, never both or neither.
func (l *Link) BeforeSave(tx *gorm.DB) error {
	hasUser := l.UserID != nil && *l.UserID != 0
	hasIP := l.OwnerIP != ""
	if hasUser == hasIP {
		return errors.New("link must be owned by exactly one of account or IP")
	}
	return nil
}

// IsExpired reports whether the link is past its expiry at the given instant.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// IsFileBacked reports whether the link serves an uploaded object.
func (l *Link) IsFileBacked() bool {
	return l.Type == LINK_TYPE_FILE
}

// IsPasswordProtected reports whether access requires a password.
func (l *Link) IsPasswordProtected() bool {
	return l.PasswordHash != ""
}

// CheckPassword verifies the access password for protected links.
func (l *Link) CheckPassword(password string) bool {
	return CheckPasswordHash(password, l.PasswordHash)
}

// FeatureList returns the activated feature names, empty when none are set.
func (l *Link) FeatureList() []string {
	if l.Features == nil || len(*l.Features) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(*l.Features), &names); err != nil {
		return nil
	}
	return names
}

// SetFeatures stores the activated feature names as a JSON array.
func (l *Link) SetFeatures(names []string) error {
	if len(names) == 0 {
		l.Features = nil
		return nil
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	doc := JSON(raw)
	l.Features = &doc
	return nil
}
