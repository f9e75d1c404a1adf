package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type recordingPublisher struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, localPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, localPath)
	return p.err
}

func TestSortForMirror(t *testing.T) {
	courses := []models.Course{
		{ID: "3", CourseFields: models.CourseFields{CourseName: "Intro to RAG", Link: "b"}},
		{ID: "1", CourseFields: models.CourseFields{CourseName: "intro-to rag", Link: "a"}},
		{ID: "2", CourseFields: models.CourseFields{CourseName: "Advanced", Link: "z"}},
	}
	SortForMirror(courses)

	assert.Equal(t, []string{"2", "1", "3"}, []string{courses[0].ID, courses[1].ID, courses[2].ID})
}

func TestExportWritesMirror(t *testing.T) {
	repo := newTestCourseRepo(t)
	dir := t.TempDir()
	publisher := &recordingPublisher{}
	svc := NewExportService(repo, ExportConfig{CoursesPath: filepath.Join(dir, "out", "courses.json")}, publisher)
	ctx := context.Background()

	_, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L2"), CourseName: models.String("zeta")})
	require.NoError(t, err)
	_, err = repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), CourseName: models.String("Alpha & <Beta>")})
	require.NoError(t, err)

	path, err := svc.Export(ctx)
	require.NoError(t, err)

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(first), `"Course Name": "Alpha & <Beta>"`)
	assert.Contains(t, string(first), `"Evidence of Completion": "Unknown"`)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(first, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "L1", records[0]["Link"])
	assert.Equal(t, "L2", records[1]["Link"])
	assert.Len(t, records[0], 15)

	_, err = svc.Export(ctx)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	assert.Equal(t, []string{path, path}, publisher.paths)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportHookTracksMutations(t *testing.T) {
	repo := newTestCourseRepo(t)
	path := filepath.Join(t.TempDir(), "courses.json")
	svc := NewExportService(repo, ExportConfig{CoursesPath: path}, &recordingPublisher{err: errors.New("offline")})
	repo.AfterCommit(svc.OnCommit)
	ctx := context.Background()

	course, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)
	_, err = repo.Update(ctx, course.ID, models.CoursePatch{Summary: models.String("S")}, 1)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []MirrorCourse
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Version)
	assert.Equal(t, "S", records[0].Summary)
}

func TestExportWritesWorkbook(t *testing.T) {
	repo := newTestCourseRepo(t)
	dir := t.TempDir()
	svc := NewExportService(repo, ExportConfig{
		CoursesPath: filepath.Join(dir, "courses.json"),
		XLSXPath:    filepath.Join(dir, "courses.xlsx"),
	}, nil)
	ctx := context.Background()

	_, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), CourseName: models.String("Intro")})
	require.NoError(t, err)

	_, err = svc.Export(ctx)
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(dir, "courses.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Courses")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Intro", rows[1][4])
}

func TestImportAndSeedIfEmpty(t *testing.T) {
	source := newTestCourseRepo(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "courses.json")
	ctx := context.Background()

	exporter := NewExportService(source, ExportConfig{CoursesPath: path}, nil)
	created, err := source.Add(ctx, models.CoursePatch{Link: models.String("L1"), Summary: models.String("S")})
	require.NoError(t, err)
	_, err = source.Update(ctx, created.ID, models.CoursePatch{Track: models.String("RAG")}, 1)
	require.NoError(t, err)
	_, err = exporter.Export(ctx)
	require.NoError(t, err)

	target := newTestCourseRepo(t)
	importer := NewExportService(target, ExportConfig{CoursesPath: path}, nil)

	inserted, err := importer.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)

	restored, err := target.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Version)
	assert.Equal(t, "RAG", restored.Track)
	assert.WithinDuration(t, created.DateCreated, restored.DateCreated, time.Millisecond)

	inserted, err = importer.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)
}

func TestImportRunsCommitHooks(t *testing.T) {
	repo := newTestCourseRepo(t)
	mr, client := newTestRedis(t)
	dir := t.TempDir()
	ctx := context.Background()

	engine := NewQueryEngine(repo, repository.NewCacheRepository(client), time.Minute)
	exporter := NewExportService(repo, ExportConfig{CoursesPath: filepath.Join(dir, "courses.json")}, nil)
	repo.AfterCommit(engine.InvalidateFacets)
	repo.AfterCommit(exporter.OnCommit)

	_, err := repo.Add(ctx, models.CoursePatch{Link: models.String("L1"), Provider: models.String("P")})
	require.NoError(t, err)
	res, err := engine.Query(ctx, QueryOptions{Page: 1, PageSize: 25})
	require.NoError(t, err)
	assert.Equal(t, []string{"P"}, res.AvailableFilters["provider"])
	require.True(t, mr.Exists(repository.FacetsCacheKey))

	source := filepath.Join(dir, "import.json")
	require.NoError(t, os.WriteFile(source, []byte(`[{"ID": "c2", "Link": "L2", "Provider": "Q"}]`), 0644))

	inserted, err := exporter.Import(ctx, source)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)

	res, err = engine.Query(ctx, QueryOptions{Page: 1, PageSize: 25})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, []string{"P", "Q"}, res.AvailableFilters["provider"])

	data, err := os.ReadFile(filepath.Join(dir, "courses.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Link": "L2"`)
}

func TestSeedIfEmptyWithoutMirror(t *testing.T) {
	repo := newTestCourseRepo(t)
	svc := NewExportService(repo, ExportConfig{CoursesPath: filepath.Join(t.TempDir(), "missing.json")}, nil)

	inserted, err := svc.SeedIfEmpty(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)
}
