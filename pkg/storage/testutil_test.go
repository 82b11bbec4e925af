package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/job-registry/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance on a single connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(1)

		// Clean before AND after to ensure test isolation.
		cleanupPostgresDB(t, db)
		t.Cleanup(func() {
			cleanupPostgresDB(t, db)
			_ = sqlDB.Close()
		})
		return db
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err, "open in-memory sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// cleanupPostgresDB deletes all rows so tests are isolated without
// requiring a fresh database per test.
func cleanupPostgresDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, tbl := range []string{"jobs", "services", "hosts"} {
		db.Exec("DELETE FROM " + tbl)
	}
}

func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func mustHost(t *testing.T, s *GormStorage, url string, maxLoad float64) *core.Host {
	t.Helper()
	h := &core.Host{URL: url, Address: "10.0.0.1", MaxLoad: maxLoad, Cores: 4, Online: true}
	require.NoError(t, s.UpsertHost(context.Background(), h))
	return h
}

func mustService(t *testing.T, s *GormStorage, hostURL, jobType string) *core.Service {
	t.Helper()
	svc := &core.Service{HostURL: hostURL, JobType: jobType, Path: "/" + jobType, Online: true}
	require.NoError(t, s.UpsertService(context.Background(), svc))
	return svc
}

func mustJob(t *testing.T, s *GormStorage, jobType string, parent *core.Job) *core.Job {
	t.Helper()
	job := &core.Job{JobType: jobType, Operation: "process", Dispatchable: true, Load: 1}
	if parent != nil {
		id := parent.ID
		job.ParentJobID = &id
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

// force writes status and host directly, bypassing the version guard.
func force(t *testing.T, s *GormStorage, job *core.Job, status core.JobStatus, host string) {
	t.Helper()
	updates := map[string]any{"status": status, "processing_host": host}
	if status.IsTerminal() {
		updates["date_completed"] = time.Now().UTC().Add(-time.Hour)
	}
	require.NoError(t, s.DB().Model(&core.Job{}).Where("id = ?", job.ID).Updates(updates).Error)
}
