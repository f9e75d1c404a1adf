package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"coursecatalog/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MutationOp names the write path that changed a course.
type MutationOp string

const (
	OpAdd    MutationOp = "add"
	OpMerge  MutationOp = "merge"
	OpUpdate MutationOp = "update"
	OpSeed   MutationOp = "seed"
)

// CourseMutation describes a committed change. Seed mutations cover a
// batch and carry no course.
type CourseMutation struct {
	Op     MutationOp
	Course models.Course
}

// CommitHook runs after a mutation has been committed.
type CommitHook func(ctx context.Context, m CourseMutation) error

type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
	GetByLink(ctx context.Context, link string) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	Add(ctx context.Context, payload models.CoursePatch) (*models.Course, error)
	Update(ctx context.Context, id string, fields models.CoursePatch, expectedVersion int) (*models.Course, error)
	Seed(ctx context.Context, courses []models.Course) (int64, error)
	Revisions(ctx context.Context, id string) ([]models.CourseRevision, error)
	Count(ctx context.Context, filter CourseFilter) (int64, error)
	Find(ctx context.Context, filter CourseFilter, offset, limit int) ([]models.Course, error)
	DistinctValues(ctx context.Context, column string) ([]string, error)
	AfterCommit(hook CommitHook)
}

type courseRepository struct {
	db  *gorm.DB
	now func() time.Time

	hooksMu sync.RWMutex
	hooks   []CommitHook
}

func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *courseRepository) AfterCommit(hook CommitHook) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *courseRepository) fireHooks(ctx context.Context, m CourseMutation) {
	r.hooksMu.RLock()
	hooks := append([]CommitHook(nil), r.hooks...)
	r.hooksMu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, m); err != nil {
			log.Printf("Course repository: post-commit hook failed for course %s (%s): %v", m.Course.ID, m.Op, err)
		}
	}
}

func (r *courseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).First(&course, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("course id=%q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *courseRepository) GetByLink(ctx context.Context, link string) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).First(&course, "link = ?", strings.TrimSpace(link)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("course link=%q: %w", link, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *courseRepository) List(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	err := r.db.WithContext(ctx).
		Order("LOWER(course_name), id").
		Find(&courses).
		Error
	return courses, err
}

// Add inserts a course, or merges the payload into the course that
// already owns the link.
func (r *courseRepository) Add(ctx context.Context, payload models.CoursePatch) (*models.Course, error) {
	link := payload.LinkValue()
	if link == "" {
		return nil, fmt.Errorf("%w: link is required", models.ErrInvalidInput)
	}
	payload.Link = &link

	var (
		result models.Course
		op     MutationOp
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Course
		err := tx.First(&existing, "link = ?", link).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			op = OpAdd
			return r.insert(tx, payload, &result)
		case err != nil:
			return err
		}

		op = OpMerge
		return r.compareAndSwap(tx, existing, payload, existing.Version, op, &result)
	})
	if err != nil {
		return nil, translateWriteError(err)
	}

	r.fireHooks(ctx, CourseMutation{Op: op, Course: result})
	return &result, nil
}

func (r *courseRepository) insert(tx *gorm.DB, payload models.CoursePatch, out *models.Course) error {
	now := r.now()
	course := models.Course{
		ID:           uuid.NewString(),
		Version:      1,
		CourseFields: models.DefaultCourseFields(),
		DateCreated:  now,
		LastUpdated:  now,
	}
	payload.ApplyTo(&course.CourseFields)

	if err := tx.Create(&course).Error; err != nil {
		return err
	}
	if err := writeRevision(tx, course, OpAdd); err != nil {
		return err
	}
	*out = course
	return nil
}

// Update applies fields to the course only if its stored version equals
// expectedVersion. It never retries.
func (r *courseRepository) Update(ctx context.Context, id string, fields models.CoursePatch, expectedVersion int) (*models.Course, error) {
	if expectedVersion < 1 {
		return nil, fmt.Errorf("%w: version must be a positive integer", models.ErrInvalidInput)
	}
	if fields.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields provided for update", models.ErrInvalidInput)
	}
	if fields.Link != nil && strings.TrimSpace(*fields.Link) == "" {
		return nil, fmt.Errorf("%w: link cannot be blank", models.ErrInvalidInput)
	}

	var result models.Course
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Course
		err := tx.First(&current, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("course id=%q: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("course id=%q has version %d, expected %d: %w",
				id, current.Version, expectedVersion, models.ErrVersionConflict)
		}
		return r.compareAndSwap(tx, current, fields, expectedVersion, OpUpdate, &result)
	})
	if err != nil {
		return nil, translateWriteError(err)
	}

	r.fireHooks(ctx, CourseMutation{Op: OpUpdate, Course: result})
	return &result, nil
}

// compareAndSwap writes the supplied fields guarded by the version column.
// The WHERE clause makes the check and the write one atomic statement.
func (r *courseRepository) compareAndSwap(
	tx *gorm.DB,
	current models.Course,
	fields models.CoursePatch,
	expectedVersion int,
	op MutationOp,
	out *models.Course,
) error {
	next := current
	fields.ApplyTo(&next.CourseFields)
	next.Version = expectedVersion + 1
	next.LastUpdated = r.now()
	if next.LastUpdated.Before(current.LastUpdated) {
		next.LastUpdated = current.LastUpdated
	}

	values := fields.ColumnValues(next.CourseFields)
	values["version"] = next.Version
	values["last_updated"] = next.LastUpdated

	res := tx.Model(&models.Course{}).
		Where("id = ? AND version = ?", current.ID, expectedVersion).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("course id=%q changed concurrently (expected version %d): %w",
			current.ID, expectedVersion, models.ErrVersionConflict)
	}

	if err := writeRevision(tx, next, op); err != nil {
		return err
	}
	*out = next
	return nil
}

func writeRevision(tx *gorm.DB, course models.Course, op MutationOp) error {
	snapshot, err := json.Marshal(course)
	if err != nil {
		return fmt.Errorf("failed to marshal revision snapshot: %w", err)
	}
	return tx.Create(&models.CourseRevision{
		CourseID:  course.ID,
		Version:   course.Version,
		Operation: string(op),
		Snapshot:  snapshot,
	}).Error
}

// Seed inserts courses whose id and link are both unused and skips the
// rest. It reports how many rows were inserted.
func (r *courseRepository) Seed(ctx context.Context, courses []models.Course) (int64, error) {
	if len(courses) == 0 {
		return 0, nil
	}

	now := r.now()
	rows := make([]models.Course, 0, len(courses))
	for _, c := range courses {
		c.Normalize()
		if c.Link == "" {
			continue
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Version < 1 {
			c.Version = 1
		}
		if c.DateCreated.IsZero() {
			c.DateCreated = now
		}
		if c.LastUpdated.IsZero() {
			c.LastUpdated = c.DateCreated
		}
		rows = append(rows, c)
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 100)
	if res.Error != nil {
		return 0, translateWriteError(res.Error)
	}
	if res.RowsAffected > 0 {
		r.fireHooks(ctx, CourseMutation{Op: OpSeed})
	}
	return res.RowsAffected, nil
}

func (r *courseRepository) Revisions(ctx context.Context, id string) ([]models.CourseRevision, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}

	var revisions []models.CourseRevision
	err := r.db.WithContext(ctx).
		Where("course_id = ?", id).
		Order("version DESC").
		Find(&revisions).
		Error
	return revisions, err
}

// translateWriteError maps driver-level uniqueness failures onto
// ErrUniquenessViolation and leaves domain errors untouched.
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrVersionConflict) ||
		errors.Is(err, models.ErrInvalidInput) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolationMessage(err) {
		return fmt.Errorf("link already belongs to another course: %w", models.ErrUniquenessViolation)
	}
	return err
}

func isUniqueViolationMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
