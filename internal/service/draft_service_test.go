package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/repository"
	"coursecatalog/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type draftFixture struct {
	drafts     repository.DraftRepository
	courses    repository.CourseRepository
	enricher   *mocks.MockEnricher
	dispatcher *mocks.MockDispatcher
	svc        *DraftService
}

func newDraftFixture(t *testing.T) *draftFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &draftFixture{
		drafts:     newTestDraftRepo(t),
		courses:    newTestCourseRepo(t),
		enricher:   mocks.NewMockEnricher(ctrl),
		dispatcher: mocks.NewMockDispatcher(ctrl),
	}
	courseSvc := NewCourseService(f.courses, NewQueryEngine(f.courses, nil, time.Minute), nil, f.enricher, time.Second)
	f.svc = NewDraftService(f.drafts, courseSvc, f.enricher, f.dispatcher)
	return f
}

func TestCreateDraftQueued(t *testing.T) {
	f := newDraftFixture(t)

	f.dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskProcessDraft, gomock.Any()).
		Return(queue.Queued("task-1"))

	draft, err := f.svc.CreateDraft(context.Background(), "https://x/c1", "", "")
	require.NoError(t, err)

	assert.Equal(t, models.DraftPending, draft.Status)
	assert.Equal(t, models.MessageQueued, draft.StatusMessage)
	require.NotNil(t, draft.TaskID)
	assert.Equal(t, "task-1", *draft.TaskID)
}

func TestCreateDraftKeepsStateOfFastWorker(t *testing.T) {
	f := newDraftFixture(t)

	f.enricher.EXPECT().
		Enrich(gomock.Any(), "https://x/c1", "", gomock.Any()).
		Return(models.CoursePatch{Summary: models.String("S")}, nil)
	f.dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskProcessDraft, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, payload any) queue.DispatchResult {
			_, err := f.svc.ProcessDraft(ctx, payload.(DraftTaskPayload).DraftID)
			require.NoError(t, err)
			return queue.Queued("task-1")
		})

	draft, err := f.svc.CreateDraft(context.Background(), "https://x/c1", "", "")
	require.NoError(t, err)

	assert.Equal(t, models.DraftReady, draft.Status)
	assert.Equal(t, models.MessageReady, draft.StatusMessage)
	assert.Equal(t, "S", draft.Summary)
	require.NotNil(t, draft.TaskID)
	assert.Equal(t, "task-1", *draft.TaskID)

	stored, err := f.svc.GetDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageReady, stored.StatusMessage)
}

func TestCreateDraftProcessesInlineWhenQueueUnavailable(t *testing.T) {
	f := newDraftFixture(t)

	f.dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskProcessDraft, gomock.Any()).
		Return(queue.Unavailable(errors.New("dial tcp: connection refused")))
	f.enricher.EXPECT().
		Enrich(gomock.Any(), "https://x/c1", "Acme", "Intro").
		Return(models.CoursePatch{Summary: models.String("S")}, nil)

	draft, err := f.svc.CreateDraft(context.Background(), "https://x/c1", "Acme", "Intro")
	require.NoError(t, err)

	assert.Equal(t, models.DraftReady, draft.Status)
	assert.Equal(t, models.MessageReady, draft.StatusMessage)
	require.NotNil(t, draft.Error)
	assert.Equal(t, "", *draft.Error)
	assert.Equal(t, "S", draft.Summary)
	assert.Equal(t, "Acme", draft.Provider)
	assert.Equal(t, "Intro", draft.CourseName)
	assert.Nil(t, draft.TaskID)
}

func TestProcessDraftEnrichmentFailure(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()

	created, err := f.drafts.Create(ctx, "https://x/c1", "Acme", "")
	require.NoError(t, err)

	f.enricher.EXPECT().
		Enrich(gomock.Any(), "https://x/c1", "Acme", models.DefaultCourseName).
		Return(models.CoursePatch{}, fmt.Errorf("%w: page returned 404", models.ErrEnrichment))

	draft, err := f.svc.ProcessDraft(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrEnrichment)
	require.NotNil(t, draft)

	assert.Equal(t, models.DraftFailed, draft.Status)
	assert.Equal(t, models.MessageFailed, draft.StatusMessage)
	require.NotNil(t, draft.Error)
	assert.Contains(t, *draft.Error, "page returned 404")
	assert.Equal(t, created.CourseFields, draft.CourseFields)

	// Terminal drafts cannot be processed again.
	_, err = f.svc.ProcessDraft(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestProcessDraftNotFound(t *testing.T) {
	f := newDraftFixture(t)

	_, err := f.svc.ProcessDraft(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPromoteDraftAddsCourseAndDeletesDraft(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()

	created, err := f.drafts.Create(ctx, "https://x/c1", "Acme", "")
	require.NoError(t, err)

	f.enricher.EXPECT().
		Enrich(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.CoursePatch{Summary: models.String("S"), Link: models.String("https://elsewhere")}, nil)

	ready, err := f.svc.ProcessDraft(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://x/c1", ready.Link)

	course, err := f.svc.PromoteDraft(ctx, created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://x/c1", course.Link)
	assert.Equal(t, "S", course.Summary)
	assert.Equal(t, 1, course.Version)

	_, err = f.drafts.Get(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPromoteDraftRequiresReady(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()

	created, err := f.drafts.Create(ctx, "https://x/c1", "", "")
	require.NoError(t, err)

	_, err = f.svc.PromoteDraft(ctx, created.ID, nil)
	assert.ErrorIs(t, err, models.ErrDraftNotReady)

	_, err = f.drafts.Get(ctx, created.ID)
	assert.NoError(t, err)
}

func TestPromoteDraftWithStaleTargetStillDeletesDraft(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()

	existing, err := f.courses.Add(ctx, models.CoursePatch{Link: models.String("https://x/c1")})
	require.NoError(t, err)
	_, err = f.courses.Update(ctx, existing.ID, models.CoursePatch{Summary: models.String("newer")}, 1)
	require.NoError(t, err)

	created, err := f.drafts.Create(ctx, "https://x/c1", "", "")
	require.NoError(t, err)
	f.enricher.EXPECT().
		Enrich(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.CoursePatch{Summary: models.String("S")}, nil)
	_, err = f.svc.ProcessDraft(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.svc.PromoteDraft(ctx, created.ID, &PromotionTarget{CourseID: existing.ID, Version: 1})
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	_, err = f.drafts.Get(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	stored, err := f.courses.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer", stored.Summary)
}

func TestDeleteDraftIsIdempotent(t *testing.T) {
	f := newDraftFixture(t)

	require.NoError(t, f.svc.DeleteDraft(context.Background(), "never-existed"))
}
