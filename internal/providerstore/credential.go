// Package providerstore persists API-key credentials and per-provider
// settings through gorm.
package providerstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const keyPrefixLen = 7

// CredentialRecord is the gorm model backing aic_api_keys. KeyHash is
// unique and the plaintext key is never stored.
type CredentialRecord struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	KeyHash    string `gorm:"uniqueIndex"`
	KeyPrefix  string
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
	UsageCount int64
}

func (CredentialRecord) TableName() string { return "aic_api_keys" }

// CredentialStore persists and validates caller API keys.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func generatePlaintextKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("providerstore: generate key: %w", err)
	}
	return "sk-" + hex.EncodeToString(raw), nil
}

// Create mints a new plaintext API key, persists only its hash, and
// returns the plaintext once — it cannot be recovered later.
func (s *CredentialStore) Create(name string) (plaintext string, record CredentialRecord, err error) {
	plaintext, err = generatePlaintextKey()
	if err != nil {
		return "", CredentialRecord{}, err
	}

	record = CredentialRecord{
		ID:        uuid.NewString(),
		Name:      name,
		KeyHash:   hashKey(plaintext),
		KeyPrefix: maskedPrefix(plaintext),
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := s.db.Create(&record).Error; err != nil {
		return "", CredentialRecord{}, fmt.Errorf("providerstore: create credential: %w", err)
	}
	return plaintext, record, nil
}

func maskedPrefix(plaintext string) string {
	if len(plaintext) <= keyPrefixLen {
		return plaintext + "..."
	}
	return plaintext[:keyPrefixLen] + "..."
}

// Validate looks up a presented key and, if active, bumps its usage
// stats. Returns (record, false, nil) when the key is absent, revoked,
// or malformed.
func (s *CredentialStore) Validate(presented string) (CredentialRecord, bool, error) {
	if !strings.HasPrefix(presented, "sk-") {
		return CredentialRecord{}, false, nil
	}

	var record CredentialRecord
	err := s.db.Where("key_hash = ? AND is_active = ?", hashKey(presented), true).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CredentialRecord{}, false, nil
	}
	if err != nil {
		return CredentialRecord{}, false, fmt.Errorf("providerstore: validate credential: %w", err)
	}

	now := time.Now()
	if err := s.db.Model(&record).Updates(map[string]any{
		"last_used_at": now,
		"usage_count":  gorm.Expr("usage_count + 1"),
	}).Error; err != nil {
		return CredentialRecord{}, false, fmt.Errorf("providerstore: update usage stats: %w", err)
	}
	record.LastUsedAt = &now
	record.UsageCount++

	return record, true, nil
}

// List returns all credentials without their hashes: KeyHash is left
// empty on every returned record.
func (s *CredentialStore) List() ([]CredentialRecord, error) {
	var records []CredentialRecord
	if err := s.db.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("providerstore: list credentials: %w", err)
	}
	for i := range records {
		records[i].KeyHash = ""
	}
	return records, nil
}

// Revoke flags a credential inactive without deleting its row.
func (s *CredentialStore) Revoke(id string) error {
	res := s.db.Model(&CredentialRecord{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("providerstore: revoke credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("providerstore: credential %q not found", id)
	}
	return nil
}

// Delete removes a credential row entirely.
func (s *CredentialStore) Delete(id string) error {
	res := s.db.Where("id = ?", id).Delete(&CredentialRecord{})
	if res.Error != nil {
		return fmt.Errorf("providerstore: delete credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("providerstore: credential %q not found", id)
	}
	return nil
}
