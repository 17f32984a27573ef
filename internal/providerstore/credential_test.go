package providerstore

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&CredentialRecord{}, &ProviderSettingRecord{}))
	return db
}

func TestCredentialStore_CreateThenValidate(t *testing.T) {
	store := NewCredentialStore(openTestDB(t))

	plaintext, record, err := store.Create("ci key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, "sk-"))
	assert.NotEmpty(t, record.KeyHash)

	got, ok, err := store.Validate(plaintext)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.ID, got.ID)
	assert.EqualValues(t, 1, got.UsageCount)
}

func TestCredentialStore_Validate_WrongKeyReturnsNotFound(t *testing.T) {
	store := NewCredentialStore(openTestDB(t))
	_, _, err := store.Create("ci key")
	require.NoError(t, err)

	_, ok, err := store.Validate("sk-totally-different-key-value-not-in-store")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStore_Validate_RejectsMalformedCheaply(t *testing.T) {
	store := NewCredentialStore(openTestDB(t))

	_, ok, err := store.Validate("")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Validate("not-sk-prefixed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStore_Revoke_BlocksFutureValidation(t *testing.T) {
	store := NewCredentialStore(openTestDB(t))
	plaintext, record, err := store.Create("ci key")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(record.ID))

	_, ok, err := store.Validate(plaintext)
	require.NoError(t, err)
	assert.False(t, ok, "revoked key must fail validation")
}

func TestCredentialStore_Delete_RemovesRow(t *testing.T) {
	store := NewCredentialStore(openTestDB(t))
	_, record, err := store.Create("ci key")
	require.NoError(t, err)

	require.NoError(t, store.Delete(record.ID))

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCredentialStore_Delete_UnknownIDErrors(t *testing.T) {
	store := NewCredentialStore(openTestDB(t))
	err := store.Delete("does-not-exist")
	assert.Error(t, err)
}
