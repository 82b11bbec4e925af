package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 1*time.Minute, cfg.ConnMaxIdleTime)
	assert.Equal(t, logger.Warn, cfg.LogLevel)
}

func TestPoolOptions(t *testing.T) {
	cfg := DefaultPoolConfig()
	for _, opt := range []PoolOption{
		MaxOpenConns(50),
		MaxIdleConns(20),
		ConnMaxLifetime(time.Hour),
		ConnMaxIdleTime(time.Second),
		LogLevel(logger.Silent),
	} {
		opt.applyPool(&cfg)
	}

	assert.Equal(t, 50, cfg.MaxOpenConns)
	assert.Equal(t, 20, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, time.Second, cfg.ConnMaxIdleTime)
	assert.Equal(t, logger.Silent, cfg.LogLevel)
}

func TestConfigurePool(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, ConfigurePool(db, MaxOpenConns(7), MaxIdleConns(3)))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 7, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_SQLiteMemoryUsesSingleConnection(t *testing.T) {
	s, err := Open(DriverSQLite, ":memory:", MaxOpenConns(10), LogLevel(logger.Silent))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.True(t, s.IsSQLite())

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestIsMemoryDSN(t *testing.T) {
	assert.True(t, isMemoryDSN(""))
	assert.True(t, isMemoryDSN(":memory:"))
	assert.True(t, isMemoryDSN("file:test?mode=memory&cache=shared"))
	assert.False(t, isMemoryDSN("registry.db?_journal_mode=WAL"))
}
