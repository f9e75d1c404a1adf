package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursecatalog/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	draftKeyPrefix     = "drafts:"
	draftUpdateRetries = 10
)

type DraftRepository interface {
	Create(ctx context.Context, link, provider, courseName string) (*models.Draft, error)
	Get(ctx context.Context, id string) (*models.Draft, error)
	Update(ctx context.Context, id string, update models.DraftUpdate) (*models.Draft, error)
	Delete(ctx context.Context, id string) error
}

type draftRepository struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewDraftRepository(client *redis.Client, ttl time.Duration) DraftRepository {
	return &draftRepository{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func draftKey(id string) string {
	return draftKeyPrefix + id
}

func (r *draftRepository) Create(ctx context.Context, link, provider, courseName string) (*models.Draft, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("%w: link is required", models.ErrInvalidInput)
	}

	now := r.now()
	draft := models.Draft{
		ID:            uuid.NewString(),
		Status:        models.DraftPending,
		StatusMessage: models.MessageCreated,
		CourseFields:  models.DefaultCourseFields(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	draft.Link = link
	draft.Provider = provider
	draft.CourseName = courseName
	draft.Normalize()

	if err := r.save(ctx, r.client, &draft); err != nil {
		return nil, fmt.Errorf("failed to store draft: %w", err)
	}
	return &draft, nil
}

func (r *draftRepository) Get(ctx context.Context, id string) (*models.Draft, error) {
	return r.load(ctx, r.client, id)
}

// Update merges update into the stored draft under WATCH so concurrent
// writers of the same draft never overwrite each other's fields.
func (r *draftRepository) Update(ctx context.Context, id string, update models.DraftUpdate) (*models.Draft, error) {
	if update.IsEmpty() {
		return r.Get(ctx, id)
	}

	key := draftKey(id)
	var result *models.Draft

	txf := func(tx *redis.Tx) error {
		draft, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := r.merge(draft, update); err != nil {
			return err
		}

		data, err := json.Marshal(draft)
		if err != nil {
			return fmt.Errorf("failed to marshal draft: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = draft
		return nil
	}

	for i := 0; i < draftUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("draft %s: too many concurrent updates", id)
}

func (r *draftRepository) merge(draft *models.Draft, update models.DraftUpdate) error {
	if update.Status != nil {
		if !draft.Status.CanTransitionTo(*update.Status) {
			return fmt.Errorf("draft %s: %s -> %s: %w", draft.ID, draft.Status, *update.Status, models.ErrInvalidTransition)
		}
		draft.Status = *update.Status
	}
	// A message without a status only applies while the draft is pending.
	if update.Message != nil && (update.Status != nil || draft.Status == models.DraftPending) {
		draft.StatusMessage = *update.Message
	}
	if update.TaskID != nil {
		draft.TaskID = models.String(*update.TaskID)
	}
	if update.Error != nil {
		draft.Error = models.String(*update.Error)
	}
	if update.Course != nil {
		update.Course.ApplyTo(&draft.CourseFields)
	}

	now := r.now()
	if now.After(draft.UpdatedAt) {
		draft.UpdatedAt = now
	}
	return nil
}

// Delete removes the draft. Deleting an unknown id is not an error.
func (r *draftRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, draftKey(id)).Err()
}

func (r *draftRepository) load(ctx context.Context, c redis.Cmdable, id string) (*models.Draft, error) {
	raw, err := c.Get(ctx, draftKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("draft id=%q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var draft models.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft %s: %w", id, err)
	}
	return &draft, nil
}

func (r *draftRepository) save(ctx context.Context, c redis.Cmdable, draft *models.Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	return c.Set(ctx, draftKey(draft.ID), data, r.ttl).Err()
}
