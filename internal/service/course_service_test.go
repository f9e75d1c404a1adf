package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAddCourseRunsInlineWhenQueueUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), dispatcher, nil, time.Second)

	dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskAddCourse, gomock.Any()).
		Return(queue.Unavailable(errors.New("connection refused")))

	course, err := svc.AddCourse(context.Background(), models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)
	assert.Equal(t, 1, course.Version)

	stored, err := repo.GetByLink(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, course.ID, stored.ID)
}

func TestAddCourseUsesWorkerResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), dispatcher, nil, time.Second)

	workerCourse := models.Course{ID: "from-worker", Version: 1, CourseFields: models.DefaultCourseFields()}
	workerCourse.Link = "L1"
	raw, err := json.Marshal(workerCourse)
	require.NoError(t, err)

	dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskAddCourse, AddCoursePayload{Course: models.CoursePatch{Link: models.String("L1")}}).
		Return(queue.Queued("task-1"))
	dispatcher.EXPECT().
		Await(gomock.Any(), "task-1", time.Second).
		Return(&queue.TaskResult{TaskID: "task-1", State: queue.StateSucceeded, Result: raw}, nil)

	course, err := svc.AddCourse(context.Background(), models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)
	assert.Equal(t, "from-worker", course.ID)

	// The worker owns the write; nothing was stored inline.
	_, err = repo.GetByLink(context.Background(), "L1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateCourseSurfacesWorkerConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), dispatcher, nil, time.Second)

	dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskUpdateCourse, gomock.Any()).
		Return(queue.Queued("task-2"))
	dispatcher.EXPECT().
		Await(gomock.Any(), "task-2", time.Second).
		Return(&queue.TaskResult{
			TaskID: "task-2",
			State:  queue.StateFailed,
			Error:  "course id=\"c1\" has version 3, expected 1: version conflict",
			Kind:   models.KindVersionConflict,
		}, nil)

	_, err := svc.UpdateCourse(context.Background(), "c1", models.CoursePatch{Summary: models.String("S")}, 1)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
	assert.Contains(t, err.Error(), "has version 3")
}

func TestUpdateCourseFallsBackAfterTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), nil, nil, time.Second)
	ctx := context.Background()

	created, err := svc.AddCourse(ctx, models.CoursePatch{Link: models.String("L1")})
	require.NoError(t, err)

	svc.dispatcher = dispatcher
	dispatcher.EXPECT().
		Dispatch(gomock.Any(), queue.TaskUpdateCourse, gomock.Any()).
		Return(queue.Queued("task-3"))
	dispatcher.EXPECT().
		Await(gomock.Any(), "task-3", time.Second).
		Return(nil, queue.ErrAwaitTimeout)

	updated, err := svc.UpdateCourse(ctx, created.ID, models.CoursePatch{Summary: models.String("S")}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// A second inline write with the same expected version must conflict.
	_, err = svc.repo.Update(ctx, created.ID, models.CoursePatch{Summary: models.String("T")}, 1)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestUpdateCourseValidatesBeforeDispatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), dispatcher, nil, time.Second)

	_, err := svc.UpdateCourse(context.Background(), "c1", models.CoursePatch{}, 1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.UpdateCourse(context.Background(), "c1", models.CoursePatch{Summary: models.String("S")}, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.AddCourse(context.Background(), models.CoursePatch{Summary: models.String("S")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEnrichCourseAddsThenUpdates(t *testing.T) {
	ctrl := gomock.NewController(t)
	enricher := mocks.NewMockEnricher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), nil, enricher, time.Second)
	ctx := context.Background()

	enricher.EXPECT().
		Enrich(gomock.Any(), "https://x/c1", "Acme", "").
		Return(models.CoursePatch{Summary: models.String("first")}, nil)
	enricher.EXPECT().
		Enrich(gomock.Any(), "https://x/c1", "", "").
		Return(models.CoursePatch{Summary: models.String("second"), Track: models.String("RAG")}, nil)

	first, err := svc.EnrichCourse(ctx, " https://x/c1 ", "Acme", "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "Acme", first.Provider)
	assert.Equal(t, "first", first.Summary)

	second, err := svc.EnrichCourse(ctx, "https://x/c1", "", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "second", second.Summary)
	assert.Equal(t, "Acme", second.Provider)
}

func TestEnrichCourseFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	enricher := mocks.NewMockEnricher(ctrl)
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), nil, enricher, time.Second)

	enricher.EXPECT().
		Enrich(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(models.CoursePatch{}, models.ErrEnrichment)

	_, err := svc.EnrichCourse(context.Background(), "https://x/c1", "", "")
	assert.ErrorIs(t, err, models.ErrEnrichment)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCourseTaskHandlers(t *testing.T) {
	repo := newTestCourseRepo(t)
	svc := NewCourseService(repo, NewQueryEngine(repo, nil, time.Minute), nil, nil, time.Second)
	handlers := svc.TaskHandlers()
	ctx := context.Background()

	payload, err := json.Marshal(AddCoursePayload{Course: models.CoursePatch{Link: models.String("L1")}})
	require.NoError(t, err)
	out, err := handlers[queue.TaskAddCourse](ctx, &queue.Task{Name: queue.TaskAddCourse, Payload: payload})
	require.NoError(t, err)
	added := out.(*models.Course)

	payload, err = json.Marshal(UpdateCoursePayload{ID: added.ID, Fields: models.CoursePatch{Summary: models.String("S")}, Version: 1})
	require.NoError(t, err)
	out, err = handlers[queue.TaskUpdateCourse](ctx, &queue.Task{Name: queue.TaskUpdateCourse, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, 2, out.(*models.Course).Version)

	_, err = handlers[queue.TaskUpdateCourse](ctx, &queue.Task{Name: queue.TaskUpdateCourse, Payload: []byte(`{"version":"x"}`)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
