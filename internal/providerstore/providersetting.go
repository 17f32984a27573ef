package providerstore

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderSettingRecord is the gorm model backing
// aic_provider_settings: per-provider enable flag and priority.
type ProviderSettingRecord struct {
	ProviderKey string `gorm:"primaryKey;column:provider_id"`
	Enabled     bool
	Priority    int
	UpdatedAt   time.Time
}

func (ProviderSettingRecord) TableName() string { return "aic_provider_settings" }

// ProviderSettingsStore persists each provider's enable flag and
// dispatch priority.
type ProviderSettingsStore struct {
	db *gorm.DB
}

func NewProviderSettingsStore(db *gorm.DB) *ProviderSettingsStore {
	return &ProviderSettingsStore{db: db}
}

// List returns all provider settings rows.
func (s *ProviderSettingsStore) List() ([]ProviderSettingRecord, error) {
	var rows []ProviderSettingRecord
	if err := s.db.Order("priority ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("providerstore: list provider settings: %w", err)
	}
	return rows, nil
}

// Upsert creates or updates a provider's enabled flag and priority.
func (s *ProviderSettingsStore) Upsert(providerKey string, enabled bool, priority int) error {
	row := ProviderSettingRecord{
		ProviderKey: providerKey,
		Enabled:     enabled,
		Priority:    priority,
		UpdatedAt:   time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "priority", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("providerstore: upsert provider setting %q: %w", providerKey, err)
	}
	return nil
}
