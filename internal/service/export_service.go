package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/repository"
	"coursecatalog/internal/utils"
)

// Publisher copies a finished mirror file somewhere else.
type Publisher interface {
	Publish(ctx context.Context, localPath string) error
}

type ExportConfig struct {
	CoursesPath string
	XLSXPath    string
}

// MirrorCourse is one entry of the exported mirror document.
type MirrorCourse struct {
	ID                   string `json:"ID"`
	Link                 string `json:"Link"`
	Version              int    `json:"Version"`
	Provider             string `json:"Provider"`
	CourseName           string `json:"Course Name"`
	Summary              string `json:"Summary"`
	Track                string `json:"Track"`
	Platform             string `json:"Platform"`
	HandsOn              string `json:"Hands On"`
	SkillLevel           string `json:"Skill Level"`
	Difficulty           string `json:"Difficulty"`
	Length               string `json:"Length"`
	EvidenceOfCompletion string `json:"Evidence of Completion"`
	DateCreated          string `json:"Date Created"`
	LastUpdated          string `json:"Last Updated"`
}

func mirrorFromCourse(c models.Course) MirrorCourse {
	return MirrorCourse{
		ID:                   c.ID,
		Link:                 c.Link,
		Version:              c.Version,
		Provider:             c.Provider,
		CourseName:           c.CourseName,
		Summary:              c.Summary,
		Track:                c.Track,
		Platform:             c.Platform,
		HandsOn:              c.HandsOn,
		SkillLevel:           c.SkillLevel,
		Difficulty:           c.Difficulty,
		Length:               c.Length,
		EvidenceOfCompletion: c.EvidenceOfCompletion,
		DateCreated:          c.DateCreated.UTC().Format(time.RFC3339Nano),
		LastUpdated:          c.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
}

func (m MirrorCourse) toCourse() models.Course {
	c := models.Course{
		ID:      strings.TrimSpace(m.ID),
		Version: m.Version,
		CourseFields: models.CourseFields{
			Provider:             m.Provider,
			Link:                 m.Link,
			CourseName:           m.CourseName,
			Summary:              m.Summary,
			Track:                m.Track,
			Platform:             m.Platform,
			HandsOn:              m.HandsOn,
			SkillLevel:           m.SkillLevel,
			Difficulty:           m.Difficulty,
			Length:               m.Length,
			EvidenceOfCompletion: m.EvidenceOfCompletion,
		},
	}
	if t, err := time.Parse(time.RFC3339Nano, m.DateCreated); err == nil {
		c.DateCreated = t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, m.LastUpdated); err == nil {
		c.LastUpdated = t.UTC()
	}
	return c
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// sortKey ignores case and punctuation in course names.
func sortKey(name string) string {
	key := nonAlphanumeric.ReplaceAllString(strings.ToLower(name), " ")
	return strings.TrimSpace(key)
}

// SortForMirror orders courses by canonical course name, then link, then id.
func SortForMirror(courses []models.Course) {
	sort.SliceStable(courses, func(i, j int) bool {
		ki, kj := sortKey(courses[i].CourseName), sortKey(courses[j].CourseName)
		if ki != kj {
			return ki < kj
		}
		if courses[i].Link != courses[j].Link {
			return courses[i].Link < courses[j].Link
		}
		return courses[i].ID < courses[j].ID
	})
}

// MarshalMirror renders the mirror document. Equal input yields equal bytes.
func MarshalMirror(courses []models.Course) ([]byte, error) {
	sorted := append([]models.Course(nil), courses...)
	SortForMirror(sorted)

	records := make([]MirrorCourse, 0, len(sorted))
	for _, c := range sorted {
		records = append(records, mirrorFromCourse(c))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type ExportService struct {
	repo      repository.CourseRepository
	config    ExportConfig
	publisher Publisher
	now       func() time.Time

	mu sync.Mutex
}

func NewExportService(repo repository.CourseRepository, config ExportConfig, publisher Publisher) *ExportService {
	return &ExportService{
		repo:      repo,
		config:    config,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Export regenerates the mirror from the full store and atomically
// replaces the previous file. Concurrent calls are serialized.
func (s *ExportService) Export(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	courses, err := s.repo.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list courses for export: %w", err)
	}

	data, err := MarshalMirror(courses)
	if err != nil {
		return "", fmt.Errorf("failed to marshal mirror: %w", err)
	}
	if err := writeFileAtomic(s.config.CoursesPath, data); err != nil {
		return "", err
	}

	if s.config.XLSXPath != "" {
		SortForMirror(courses)
		if err := writeWorkbookAtomic(s.config.XLSXPath, courses, s.now()); err != nil {
			log.Printf("Export service: failed to write workbook %s: %v", s.config.XLSXPath, err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.config.CoursesPath); err != nil {
			log.Printf("Export service: failed to publish mirror: %v", err)
		}
	}

	return s.config.CoursesPath, nil
}

// OnCommit is registered as a course commit hook.
func (s *ExportService) OnCommit(ctx context.Context, m repository.CourseMutation) error {
	_, err := s.Export(ctx)
	return err
}

// MirrorDocument renders the current catalog as a mirror document
// without touching the mirror file.
func (s *ExportService) MirrorDocument(ctx context.Context) ([]byte, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return MarshalMirror(courses)
}

// WriteWorkbook streams the current catalog as an xlsx workbook.
func (s *ExportService) WriteWorkbook(ctx context.Context, w io.Writer) error {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	SortForMirror(courses)
	return utils.WriteCoursesWorkbook(w, courses, s.now())
}

// Import reads a mirror document and inserts the courses that are not in
// the store yet.
func (s *ExportService) Import(ctx context.Context, path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var records []MirrorCourse
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("%w: %s is not a course mirror: %v", models.ErrInvalidInput, path, err)
	}

	courses := make([]models.Course, 0, len(records))
	for _, r := range records {
		courses = append(courses, r.toCourse())
	}
	return s.repo.Seed(ctx, courses)
}

// SeedIfEmpty imports the mirror when the store holds no course.
func (s *ExportService) SeedIfEmpty(ctx context.Context) (int64, error) {
	total, err := s.repo.Count(ctx, repository.CourseFilter{})
	if err != nil {
		return 0, err
	}
	if total > 0 {
		return 0, nil
	}

	inserted, err := s.Import(ctx, s.config.CoursesPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return inserted, err
}

// TaskHandlers returns the queue handlers for export tasks.
func (s *ExportService) TaskHandlers() map[string]TaskHandler {
	return map[string]TaskHandler{
		queue.TaskExport: func(ctx context.Context, _ *queue.Task) (interface{}, error) {
			return s.Export(ctx)
		},
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func writeWorkbookAtomic(path string, courses []models.Course, generatedAt time.Time) error {
	var buf bytes.Buffer
	if err := utils.WriteCoursesWorkbook(&buf, courses, generatedAt); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}
