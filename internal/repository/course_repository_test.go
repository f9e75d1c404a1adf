package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func TestCourseRepositoryAddInsertsWithDefaults(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	course, err := repo.Add(ctx, models.CoursePatch{Link: models.String("  https://x/c1  ")})
	require.NoError(t, err)

	assert.NotEmpty(t, course.ID)
	assert.Equal(t, 1, course.Version)
	assert.Equal(t, "https://x/c1", course.Link)
	assert.Equal(t, models.DefaultCourseName, course.CourseName)
	assert.Equal(t, models.DefaultLength, course.Length)
	assert.Equal(t, course.DateCreated, course.LastUpdated)

	stored, err := repo.GetByLink(ctx, "https://x/c1")
	require.NoError(t, err)
	assert.Equal(t, course.ID, stored.ID)
}

func TestCourseRepositoryAddRequiresLink(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))

	_, err := repo.Add(context.Background(), models.CoursePatch{Link: models.String("   ")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = repo.Add(context.Background(), models.CoursePatch{Provider: models.String("P")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCourseRepositoryAddMergesByLink(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	first, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), Provider: models.String("P")})
	require.NoError(t, err)

	second, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), Provider: models.String("Q")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "Q", second.Provider)
	assert.WithinDuration(t, first.DateCreated, second.DateCreated, time.Millisecond)
	assert.False(t, second.LastUpdated.Before(first.LastUpdated))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCourseRepositoryUpdate(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	created, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), Track: models.String("RAG")})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, models.CoursePatch{Summary: models.String("S")}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "S", updated.Summary)
	assert.Equal(t, "RAG", updated.Track)

	_, err = repo.Update(ctx, created.ID, models.CoursePatch{Summary: models.String("T")}, 1)
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "S", stored.Summary)
}

func TestCourseRepositoryUpdateValidation(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	created, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		patch   models.CoursePatch
		version int
		wantErr error
	}{
		{"empty patch", created.ID, models.CoursePatch{}, 1, models.ErrInvalidInput},
		{"zero version", created.ID, models.CoursePatch{Summary: models.String("S")}, 0, models.ErrInvalidInput},
		{"blank link", created.ID, models.CoursePatch{Link: models.String(" ")}, 1, models.ErrInvalidInput},
		{"unknown id", "missing", models.CoursePatch{Summary: models.String("S")}, 1, models.ErrNotFound},
		{"stale version", created.ID, models.CoursePatch{Summary: models.String("S")}, 7, models.ErrVersionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Update(ctx, tt.id, tt.patch, tt.version)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
}

func TestCourseRepositoryUpdateDuplicateLink(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)
	other, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L2")})
	require.NoError(t, err)

	_, err = repo.Update(ctx, other.ID, models.CoursePatch{Link: models.String("L1")}, 1)
	assert.ErrorIs(t, err, models.ErrUniquenessViolation)
}

func TestCourseRepositoryVersionSequence(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	course, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)

	prev := course.LastUpdated
	for i := 1; i <= 5; i++ {
		course, err = repo.Update(ctx, course.ID, models.CoursePatch{Summary: models.String("rev")}, course.Version)
		require.NoError(t, err)
		assert.Equal(t, 1+i, course.Version)
		assert.False(t, course.LastUpdated.Before(prev))
		prev = course.LastUpdated
	}

	revisions, err := repo.Revisions(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 6)
	assert.Equal(t, 6, revisions[0].Version)
	assert.Equal(t, string(OpUpdate), revisions[0].Operation)
	assert.Equal(t, string(OpAdd), revisions[5].Operation)
}

func TestCourseRepositoryConcurrentUpdates(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	course, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, course.ID, models.CoursePatch{Summary: models.String("racer")}, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, models.ErrVersionConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	stored, err := repo.GetByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestCourseRepositoryHooksFireAfterCommit(t *testing.T) {
	db := newTestDB(t)
	repo := NewCourseRepository(db)
	ctx := context.Background()

	var ops []MutationOp
	repo.AfterCommit(func(ctx context.Context, m CourseMutation) error {
		// The mutation must already be visible outside the transaction.
		stored, err := repo.GetByID(ctx, m.Course.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Course.Version, stored.Version)
		ops = append(ops, m.Op)
		return nil
	})

	course, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)
	_, err = repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), Summary: models.String("S")})
	require.NoError(t, err)
	_, err = repo.Update(ctx, course.ID, models.CoursePatch{Track: models.String("T")}, 2)
	require.NoError(t, err)

	_, err = repo.Update(ctx, course.ID, models.CoursePatch{Track: models.String("T")}, 1)
	require.Error(t, err)

	assert.Equal(t, []MutationOp{OpAdd, OpMerge, OpUpdate}, ops)
}

func TestCourseRepositorySeedFiresHooksOnInsert(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	var ops []MutationOp
	repo.AfterCommit(func(ctx context.Context, m CourseMutation) error {
		ops = append(ops, m.Op)
		return nil
	})

	courses := []models.Course{
		{ID: "seed-1", CourseFields: models.CourseFields{Link: "L1"}},
		{ID: "seed-2", CourseFields: models.CourseFields{Link: "L2"}},
	}
	inserted, err := repo.Seed(ctx, courses)
	require.NoError(t, err)
	assert.EqualValues(t, 2, inserted)
	assert.Equal(t, []MutationOp{OpSeed}, ops)

	inserted, err = repo.Seed(ctx, courses)
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)
	assert.Equal(t, []MutationOp{OpSeed}, ops)
}

func TestCourseRepositorySeedSkipsExisting(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	existing, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), Summary: models.String("keep")})
	require.NoError(t, err)

	inserted, err := repo.Seed(ctx, []models.Course{
		{CourseFields: models.CourseFields{Link: "L1", Summary: "overwrite"}},
		{ID: "seed-2", Version: 3, CourseFields: models.CourseFields{Link: "L2", CourseName: "Second"}},
		{CourseFields: models.CourseFields{Link: " "}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)

	stored, err := repo.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", stored.Summary)

	seeded, err := repo.GetByID(ctx, "seed-2")
	require.NoError(t, err)
	assert.Equal(t, 3, seeded.Version)
	assert.Equal(t, models.DefaultSummary, seeded.Summary)
}

func TestCourseRepositoryFind(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	for _, p := range []models.CoursePatch{
		{Link: models.String("L1"), CourseName: models.String("beta"), Provider: models.String("Acme "), Summary: models.String("Vector search")},
		{Link: models.String("L2"), CourseName: models.String("Alpha"), Provider: models.String("Other"), Platform: models.String("Web")},
		{Link: models.String("L3"), CourseName: models.String("gamma"), Provider: models.String("acme"), Track: models.String("RAG")},
	} {
		_, err := repo.Add(ctx, p)
		require.NoError(t, err)
	}

	all, err := repo.Find(ctx, CourseFilter{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, []string{all[0].CourseName, all[1].CourseName, all[2].CourseName})

	filter := CourseFilter{Filters: map[string][]string{"provider": {"acme"}}}
	total, err := repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	filter = CourseFilter{Search: "vector"}
	found, err := repo.Find(ctx, filter, 0, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "L1", found[0].Link)

	filter = CourseFilter{Search: "rag", Filters: map[string][]string{"provider": {"other"}}}
	total, err = repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	page, err := repo.Find(ctx, CourseFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "beta", page[0].CourseName)
}

func TestCourseRepositorySearchMatchesWildcardsLiterally(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	for _, p := range []models.CoursePatch{
		{Link: models.String("L1"), CourseName: models.String("a_b basics")},
		{Link: models.String("L2"), CourseName: models.String("axb basics")},
		{Link: models.String("L3"), CourseName: models.String("Hands-on"), Summary: models.String("100% labs")},
		{Link: models.String("L4"), CourseName: models.String("Theory"), Summary: models.String("100 slides!")},
	} {
		_, err := repo.Add(ctx, p)
		require.NoError(t, err)
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"a_b", []string{"L1"}},
		{"100%", []string{"L3"}},
		{"100", []string{"L3", "L4"}},
		{"slides!", []string{"L4"}},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			found, err := repo.Find(ctx, CourseFilter{Search: tt.search}, 0, 10)
			require.NoError(t, err)

			links := make([]string, 0, len(found))
			for _, c := range found {
				links = append(links, c.Link)
			}
			assert.ElementsMatch(t, tt.want, links)
		})
	}
}

func TestCourseRepositoryDistinctValues(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t))
	ctx := context.Background()

	for _, p := range []models.CoursePatch{
		{Link: models.String("L1"), Provider: models.String("beta")},
		{Link: models.String("L2"), Provider: models.String("Alpha")},
		{Link: models.String("L3"), Provider: models.String("beta")},
		{Link: models.String("L4")},
	} {
		_, err := repo.Add(ctx, p)
		require.NoError(t, err)
	}

	values, err := repo.DistinctValues(ctx, "provider")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "beta"}, values)

	_, err = repo.DistinctValues(ctx, "summary")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
