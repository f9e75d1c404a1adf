package service

import (
	"context"
	"fmt"
	"log"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/repository"
)

// PromotionTarget pins a promotion to an existing course. Without one,
// promotion adds the draft, merging by link.
type PromotionTarget struct {
	CourseID string `json:"course_id"`
	Version  int    `json:"version"`
}

type DraftService struct {
	drafts     repository.DraftRepository
	courses    *CourseService
	enricher   Enricher
	dispatcher Dispatcher
}

func NewDraftService(
	drafts repository.DraftRepository,
	courses *CourseService,
	enricher Enricher,
	dispatcher Dispatcher,
) *DraftService {
	return &DraftService{
		drafts:     drafts,
		courses:    courses,
		enricher:   enricher,
		dispatcher: dispatcher,
	}
}

// CreateDraft stages a draft and hands its processing to the task queue.
// When the queue cannot take the task, processing runs before returning,
// so a draft is never left pending without a task.
func (s *DraftService) CreateDraft(ctx context.Context, link, provider, courseName string) (*models.Draft, error) {
	draft, err := s.drafts.Create(ctx, link, provider, courseName)
	if err != nil {
		return nil, err
	}

	res := queue.Unavailable(fmt.Errorf("no task queue configured"))
	if s.dispatcher != nil {
		res = s.dispatcher.Dispatch(ctx, queue.TaskProcessDraft, DraftTaskPayload{DraftID: draft.ID})
	}

	if res.IsQueued() {
		// A worker may already have picked the task up; the queued message
		// then leaves its state alone.
		return s.drafts.Update(ctx, draft.ID, models.DraftUpdate{
			TaskID:  models.String(res.TaskID()),
			Message: models.String(models.MessageQueued),
		})
	}

	log.Printf("warning: could not queue draft %s, processing inline: %v", draft.ID, res.Err())
	return s.ProcessDraft(ctx, draft.ID)
}

func (s *DraftService) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	return s.drafts.Get(ctx, id)
}

// ProcessDraft enriches the draft and records the outcome. An enrichment
// failure marks the draft failed and is also returned to the caller; the
// draft itself is never retried here.
func (s *DraftService) ProcessDraft(ctx context.Context, id string) (*models.Draft, error) {
	draft, err := s.drafts.Update(ctx, id, models.DraftUpdate{
		Status:  models.Status(models.DraftProcessing),
		Message: models.String(models.MessageProcessing),
	})
	if err != nil {
		return nil, err
	}

	var patch models.CoursePatch
	if s.enricher == nil {
		err = fmt.Errorf("%w: no enricher configured", models.ErrEnrichment)
	} else {
		patch, err = s.enricher.Enrich(ctx, draft.Link, draft.Provider, draft.CourseName)
	}

	if err != nil {
		failed, uerr := s.drafts.Update(ctx, id, models.DraftUpdate{
			Status:  models.Status(models.DraftFailed),
			Message: models.String(models.MessageFailed),
			Error:   models.String(err.Error()),
		})
		if uerr != nil {
			log.Printf("Draft service: failed to record failure of draft %s: %v", id, uerr)
			return draft, err
		}
		return failed, err
	}

	// The draft keeps the link it was created with.
	patch.Link = nil
	return s.drafts.Update(ctx, id, models.DraftUpdate{
		Status:  models.Status(models.DraftReady),
		Message: models.String(models.MessageReady),
		Error:   models.String(""),
		Course:  &patch,
	})
}

func (s *DraftService) DeleteDraft(ctx context.Context, id string) error {
	return s.drafts.Delete(ctx, id)
}

// PromoteDraft copies a ready draft into the catalog and then deletes the
// draft whether or not the write succeeded.
func (s *DraftService) PromoteDraft(ctx context.Context, id string, target *PromotionTarget) (*models.Course, error) {
	draft, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftReady {
		return nil, fmt.Errorf("draft %s is %s: %w", id, draft.Status, models.ErrDraftNotReady)
	}

	defer func() {
		if derr := s.drafts.Delete(ctx, id); derr != nil {
			log.Printf("Draft service: failed to delete promoted draft %s: %v", id, derr)
		}
	}()

	patch := models.PatchFromFields(draft.CourseFields)
	if target != nil {
		return s.courses.UpdateCourse(ctx, target.CourseID, patch, target.Version)
	}
	return s.courses.AddCourse(ctx, patch)
}

// TaskHandlers returns the queue handlers for draft tasks.
func (s *DraftService) TaskHandlers() map[string]TaskHandler {
	return map[string]TaskHandler{
		queue.TaskProcessDraft: func(ctx context.Context, task *queue.Task) (interface{}, error) {
			var p DraftTaskPayload
			if err := decodeTask(task, &p); err != nil {
				return nil, err
			}
			return s.ProcessDraft(ctx, p.DraftID)
		},
	}
}
