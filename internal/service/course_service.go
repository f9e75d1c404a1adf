package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/repository"
)

type CourseService struct {
	repo        repository.CourseRepository
	query       *QueryEngine
	dispatcher  Dispatcher
	enricher    Enricher
	taskTimeout time.Duration
}

func NewCourseService(
	repo repository.CourseRepository,
	query *QueryEngine,
	dispatcher Dispatcher,
	enricher Enricher,
	taskTimeout time.Duration,
) *CourseService {
	return &CourseService{
		repo:        repo,
		query:       query,
		dispatcher:  dispatcher,
		enricher:    enricher,
		taskTimeout: taskTimeout,
	}
}

func (s *CourseService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CourseService) ListCourses(ctx context.Context) ([]models.Course, error) {
	return s.repo.List(ctx)
}

func (s *CourseService) QueryCourses(ctx context.Context, opts QueryOptions) (*QueryResult, error) {
	return s.query.Query(ctx, opts)
}

func (s *CourseService) Revisions(ctx context.Context, id string) ([]models.CourseRevision, error) {
	return s.repo.Revisions(ctx, id)
}

// AddCourse adds a course through the task queue, falling back to a
// direct store write when the queue is down or slow.
func (s *CourseService) AddCourse(ctx context.Context, patch models.CoursePatch) (*models.Course, error) {
	if patch.LinkValue() == "" {
		return nil, fmt.Errorf("%w: link is required", models.ErrInvalidInput)
	}
	return awaitOrRun(ctx, s.dispatcher, s.taskTimeout, queue.TaskAddCourse,
		AddCoursePayload{Course: patch},
		func(ctx context.Context) (*models.Course, error) {
			return s.repo.Add(ctx, patch)
		})
}

// UpdateCourse applies a version-gated update. A conflict reported by the
// worker or by the direct fallback is returned as ErrVersionConflict.
func (s *CourseService) UpdateCourse(ctx context.Context, id string, fields models.CoursePatch, version int) (*models.Course, error) {
	if version < 1 {
		return nil, fmt.Errorf("%w: version must be a positive integer", models.ErrInvalidInput)
	}
	if fields.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields provided for update", models.ErrInvalidInput)
	}
	return awaitOrRun(ctx, s.dispatcher, s.taskTimeout, queue.TaskUpdateCourse,
		UpdateCoursePayload{ID: id, Fields: fields, Version: version},
		func(ctx context.Context) (*models.Course, error) {
			return s.repo.Update(ctx, id, fields, version)
		})
}

// EnrichCourse derives metadata for link and stores it as a new course or
// as an update of the course that already owns the link.
func (s *CourseService) EnrichCourse(ctx context.Context, link, provider, courseName string) (*models.Course, error) {
	payload := EnrichCoursePayload{
		Link:       strings.TrimSpace(link),
		Provider:   strings.TrimSpace(provider),
		CourseName: strings.TrimSpace(courseName),
	}
	if payload.Link == "" {
		return nil, fmt.Errorf("%w: link is required", models.ErrInvalidInput)
	}
	return awaitOrRun(ctx, s.dispatcher, s.taskTimeout, queue.TaskEnrichCourse, payload,
		func(ctx context.Context) (*models.Course, error) {
			return s.enrichAndStore(ctx, payload)
		})
}

func (s *CourseService) enrichAndStore(ctx context.Context, p EnrichCoursePayload) (*models.Course, error) {
	if s.enricher == nil {
		return nil, fmt.Errorf("%w: no enricher configured", models.ErrEnrichment)
	}

	patch, err := s.enricher.Enrich(ctx, p.Link, p.Provider, p.CourseName)
	if err != nil {
		return nil, err
	}
	if patch.LinkValue() == "" {
		patch.Link = models.String(p.Link)
	}
	if patch.Provider == nil && p.Provider != "" {
		patch.Provider = models.String(p.Provider)
	}
	if patch.CourseName == nil && p.CourseName != "" {
		patch.CourseName = models.String(p.CourseName)
	}

	// One retry on conflict: a concurrent writer may bump the version
	// between the read and the update.
	for attempt := 0; ; attempt++ {
		existing, err := s.repo.GetByLink(ctx, patch.LinkValue())
		if errors.Is(err, models.ErrNotFound) {
			return s.repo.Add(ctx, patch)
		}
		if err != nil {
			return nil, err
		}

		course, err := s.repo.Update(ctx, existing.ID, patch, existing.Version)
		if errors.Is(err, models.ErrVersionConflict) && attempt == 0 {
			log.Printf("Course service: enrich update of %s conflicted, retrying once", existing.ID)
			continue
		}
		return course, err
	}
}

// TaskHandlers returns the queue handlers for course tasks.
func (s *CourseService) TaskHandlers() map[string]TaskHandler {
	return map[string]TaskHandler{
		queue.TaskAddCourse: func(ctx context.Context, task *queue.Task) (interface{}, error) {
			var p AddCoursePayload
			if err := decodeTask(task, &p); err != nil {
				return nil, err
			}
			return s.repo.Add(ctx, p.Course)
		},
		queue.TaskUpdateCourse: func(ctx context.Context, task *queue.Task) (interface{}, error) {
			var p UpdateCoursePayload
			if err := decodeTask(task, &p); err != nil {
				return nil, err
			}
			return s.repo.Update(ctx, p.ID, p.Fields, p.Version)
		},
		queue.TaskEnrichCourse: func(ctx context.Context, task *queue.Task) (interface{}, error) {
			var p EnrichCoursePayload
			if err := decodeTask(task, &p); err != nil {
				return nil, err
			}
			return s.enrichAndStore(ctx, p)
		},
	}
}
