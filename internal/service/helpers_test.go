package service

import (
	"path/filepath"
	"testing"
	"time"

	"coursecatalog/internal/repository"
	"coursecatalog/pkg/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestCourseRepo(t *testing.T) repository.CourseRepository {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "courses.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.NewCourseRepository(db)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newTestDraftRepo(t *testing.T) repository.DraftRepository {
	t.Helper()

	_, client := newTestRedis(t)
	return repository.NewDraftRepository(client, time.Hour)
}
