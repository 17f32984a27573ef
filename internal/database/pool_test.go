package database

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestNewPoolManager_AppliesConfigToUnderlyingPool(t *testing.T) {
	db := openTestDB(t)

	manager, err := NewPoolManager(db, PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	stats := manager.Stats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
}

func TestNewPoolManager_NilDBErrors(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManager_DBReturnsUnderlyingHandle(t *testing.T) {
	db := openTestDB(t)
	manager, err := NewPoolManager(db, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, db, manager.DB())
}

func TestPoolManager_PingSucceedsOnOpenDB(t *testing.T) {
	db := openTestDB(t)
	manager, err := NewPoolManager(db, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, manager.Ping(context.Background()))
}

func TestPoolManager_PingFailsAfterClose(t *testing.T) {
	db := openTestDB(t)
	manager, err := NewPoolManager(db, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	assert.Error(t, manager.Ping(context.Background()))
}

func TestPoolManager_CloseIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	manager, err := NewPoolManager(db, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	assert.NoError(t, manager.Close())
}

func TestPoolManager_HealthCheckLoopSurvivesMultipleTicks(t *testing.T) {
	db := openTestDB(t)
	manager, err := NewPoolManager(db, PoolConfig{
		MaxOpenConns:        5,
		MaxIdleConns:        2,
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	time.Sleep(35 * time.Millisecond)
}
