package providerstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSettingsStore_Upsert_CreatesNewRow(t *testing.T) {
	store := NewProviderSettingsStore(openTestDB(t))

	require.NoError(t, store.Upsert("cerebras", true, 1))

	rows, err := store.List()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cerebras", rows[0].ProviderKey)
	assert.True(t, rows[0].Enabled)
	assert.Equal(t, 1, rows[0].Priority)
}

func TestProviderSettingsStore_Upsert_UpdatesExistingRow(t *testing.T) {
	store := NewProviderSettingsStore(openTestDB(t))

	require.NoError(t, store.Upsert("cerebras", true, 1))
	require.NoError(t, store.Upsert("cerebras", false, 5))

	rows, err := store.List()
	require.NoError(t, err)
	require.Len(t, rows, 1, "second upsert must update, not insert a duplicate row")
	assert.False(t, rows[0].Enabled)
	assert.Equal(t, 5, rows[0].Priority)
}

func TestProviderSettingsStore_List_OrdersByPriority(t *testing.T) {
	store := NewProviderSettingsStore(openTestDB(t))

	require.NoError(t, store.Upsert("b", true, 2))
	require.NoError(t, store.Upsert("a", true, 0))
	require.NoError(t, store.Upsert("c", true, 5))

	rows, err := store.List()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{rows[0].ProviderKey, rows[1].ProviderKey, rows[2].ProviderKey})
}
