package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/models"
)

// MockPointStore implements PointStore for testing
type MockPointStore struct {
	mock.Mock
}

func (m *MockPointStore) CreateDamagePoints(ctx context.Context, orderID int64, view models.ViewKey, points []models.DamagePoint) ([]models.DamagePoint, error) {
	args := m.Called(ctx, orderID, view, points)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DamagePoint), args.Error(1)
}

func (m *MockPointStore) UpdateDamagePoint(ctx context.Context, orderID int64, point models.DamagePoint) error {
	args := m.Called(ctx, orderID, point)
	return args.Error(0)
}

func (m *MockPointStore) DeleteDamagePoint(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAnswerStore implements AnswerStore for testing
type MockAnswerStore struct {
	mock.Mock
}

func (m *MockAnswerStore) UpsertItemAnswers(ctx context.Context, orderID int64, answers map[int64]models.ItemAnswer) error {
	args := m.Called(ctx, orderID, answers)
	return args.Error(0)
}

func setupEngine() (*Engine, *MockPointStore, *MockAnswerStore) {
	points := new(MockPointStore)
	answers := new(MockAnswerStore)
	logger, _ := zap.NewDevelopment()
	return NewEngine(points, answers, logger), points, answers
}

func TestSaveView_CreatesOnlyNonEmptyAndReconcilesIDs(t *testing.T) {
	engine, store, _ := setupEngine()

	draft := []models.DamagePoint{
		{LocalID: "a", X: 10, Y: 20, Notes: "dent", View: models.ViewFront},
		{LocalID: "b", X: 30, Y: 40, View: models.ViewFront},
		{LocalID: "c", X: 50, Y: 60, DamageTypeID: id(2), View: models.ViewFront},
	}

	store.On("CreateDamagePoints", mock.Anything, int64(11), models.ViewFront, mock.MatchedBy(func(ps []models.DamagePoint) bool {
		return len(ps) == 2 && ps[0].LocalID == "a" && ps[1].LocalID == "c"
	})).Return([]models.DamagePoint{
		{ServerID: id(100), X: 10, Y: 20},
		{ServerID: id(101), X: 50, Y: 60},
	}, nil)

	res, err := engine.SaveView(context.Background(), 11, models.ViewFront, draft, nil)
	require.NoError(t, err)

	require.Len(t, res.Points, 2)
	assert.Equal(t, "a", res.Points[0].LocalID)
	assert.Equal(t, int64(100), *res.Points[0].ServerID)
	assert.Equal(t, "c", res.Points[1].LocalID)
	assert.Equal(t, int64(101), *res.Points[1].ServerID)
	store.AssertExpectations(t)
}

func TestSaveView_IdempotentResave(t *testing.T) {
	engine, store, _ := setupEngine()

	store.On("CreateDamagePoints", mock.Anything, int64(1), models.ViewBack, mock.Anything).
		Return([]models.DamagePoint{{ServerID: id(7), X: 1, Y: 1}}, nil).Once()

	draft := []models.DamagePoint{{LocalID: "a", X: 1, Y: 1, Notes: "n", View: models.ViewBack}}
	first, err := engine.SaveView(context.Background(), 1, models.ViewBack, draft, nil)
	require.NoError(t, err)

	baseline := models.ClonePoints(first.Points)
	second, err := engine.SaveView(context.Background(), 1, models.ViewBack, first.Points, baseline)
	require.NoError(t, err)

	assert.True(t, second.Plan.Empty())
	store.AssertNumberOfCalls(t, "CreateDamagePoints", 1)
	store.AssertNotCalled(t, "UpdateDamagePoint", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "DeleteDamagePoint", mock.Anything, mock.Anything)
}

func TestSaveView_SingleUpdate(t *testing.T) {
	engine, store, _ := setupEngine()

	baseline := []models.DamagePoint{
		{ServerID: id(42), X: 5, Y: 5, Notes: "old", View: models.ViewLeft},
		{ServerID: id(43), X: 9, Y: 9, Notes: "same", View: models.ViewLeft},
	}
	draft := models.ClonePoints(baseline)
	draft[0].Notes = "new"

	store.On("UpdateDamagePoint", mock.Anything, int64(3), mock.MatchedBy(func(p models.DamagePoint) bool {
		return *p.ServerID == 42 && p.Notes == "new"
	})).Return(nil).Once()

	_, err := engine.SaveView(context.Background(), 3, models.ViewLeft, draft, baseline)
	require.NoError(t, err)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "CreateDamagePoints", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "DeleteDamagePoint", mock.Anything, mock.Anything)
}

func TestSaveView_SingleDelete(t *testing.T) {
	engine, store, _ := setupEngine()

	baseline := []models.DamagePoint{
		{ServerID: id(7), X: 5, Y: 5, Notes: "gone"},
		{ServerID: id(8), X: 9, Y: 9, Notes: "stays"},
	}
	draft := []models.DamagePoint{baseline[1].Clone()}

	store.On("DeleteDamagePoint", mock.Anything, int64(7)).Return(nil).Once()

	res, err := engine.SaveView(context.Background(), 3, models.ViewUp, draft, baseline)
	require.NoError(t, err)

	assert.Len(t, res.Points, 1)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "UpdateDamagePoint", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveView_FailureReturnsError(t *testing.T) {
	engine, store, _ := setupEngine()

	netErr := &apperror.NetworkError{Op: "delete damage point", Status: 500}
	store.On("DeleteDamagePoint", mock.Anything, int64(7)).Return(netErr)

	baseline := []models.DamagePoint{{ServerID: id(7), Notes: "x"}}
	res, err := engine.SaveView(context.Background(), 3, models.ViewUp, nil, baseline)

	require.Error(t, err)
	assert.True(t, apperror.IsNetwork(err))
	assert.Nil(t, res.Points)
}

func TestSaveView_PartialFailureKeepsCreatedIDs(t *testing.T) {
	engine, store, _ := setupEngine()

	baseline := []models.DamagePoint{{ServerID: id(42), X: 5, Y: 5, Notes: "old", View: models.ViewFront}}
	draft := []models.DamagePoint{
		{LocalID: "p42", ServerID: id(42), X: 5, Y: 5, Notes: "new", View: models.ViewFront},
		{LocalID: "fresh", X: 1, Y: 2, Notes: "scratch", View: models.ViewFront},
	}

	store.On("CreateDamagePoints", mock.Anything, int64(1), models.ViewFront, mock.Anything).
		Return([]models.DamagePoint{{ServerID: id(101), X: 1, Y: 2}}, nil).Once()
	store.On("UpdateDamagePoint", mock.Anything, int64(1), mock.Anything).
		Return(&apperror.NetworkError{Op: "update damage point", Status: 500}).Once()

	first, err := engine.SaveView(context.Background(), 1, models.ViewFront, draft, baseline)
	require.Error(t, err)
	require.Len(t, first.Points, 2)
	require.NotNil(t, first.Points[1].ServerID)
	assert.Equal(t, int64(101), *first.Points[1].ServerID)
	assert.Equal(t, "fresh", first.Points[1].LocalID)

	// Retry with the adopted draft and the untouched baseline.
	store.On("UpdateDamagePoint", mock.Anything, int64(1), mock.Anything).Return(nil).Twice()

	second, err := engine.SaveView(context.Background(), 1, models.ViewFront, first.Points, baseline)
	require.NoError(t, err)

	assert.Empty(t, second.Plan.Creates)
	assert.Len(t, second.Plan.Updates, 2)
	store.AssertNumberOfCalls(t, "CreateDamagePoints", 1)
	store.AssertNumberOfCalls(t, "UpdateDamagePoint", 3)
}

func TestSaveView_FailedCreateReturnsNoPoints(t *testing.T) {
	engine, store, _ := setupEngine()

	store.On("CreateDamagePoints", mock.Anything, int64(1), models.ViewFront, mock.Anything).
		Return(nil, &apperror.NetworkError{Op: "create damage points", Status: 500})

	draft := []models.DamagePoint{{LocalID: "a", X: 1, Y: 1, Notes: "n", View: models.ViewFront}}
	res, err := engine.SaveView(context.Background(), 1, models.ViewFront, draft, nil)

	require.Error(t, err)
	assert.Nil(t, res.Points)
}

func TestSaveView_CorrelationMismatch(t *testing.T) {
	tests := []struct {
		name    string
		created []models.DamagePoint
	}{
		{"short response", []models.DamagePoint{{ServerID: id(1), X: 1, Y: 1}}},
		{"reordered response", []models.DamagePoint{{ServerID: id(2), X: 2, Y: 2}, {ServerID: id(1), X: 1, Y: 1}}},
		{"missing id", []models.DamagePoint{{X: 1, Y: 1}, {ServerID: id(2), X: 2, Y: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store, _ := setupEngine()
			store.On("CreateDamagePoints", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.created, nil)

			draft := []models.DamagePoint{
				{LocalID: "a", X: 1, Y: 1, Notes: "a"},
				{LocalID: "b", X: 2, Y: 2, Notes: "b"},
			}
			_, err := engine.SaveView(context.Background(), 1, models.ViewFront, draft, nil)

			assert.True(t, apperror.IsCorrelation(err))
		})
	}
}

func TestDeletePoint(t *testing.T) {
	engine, store, _ := setupEngine()
	store.On("DeleteDamagePoint", mock.Anything, int64(9)).Return(errors.New("boom"))

	err := engine.DeletePoint(context.Background(), 9)

	assert.EqualError(t, err, "failed to delete damage point 9: boom")
}

func TestSaveAnswers(t *testing.T) {
	engine, _, store := setupEngine()

	draft := map[int64]models.ItemAnswer{
		1: {Status: "malo", Notes: "roto"},
		2: {},
	}
	store.On("UpsertItemAnswers", mock.Anything, int64(5), mock.MatchedBy(func(a map[int64]models.ItemAnswer) bool {
		_, hasEmpty := a[2]
		return len(a) == 1 && !hasEmpty
	})).Return(nil).Once()

	baseline, sent, err := engine.SaveAnswers(context.Background(), 5, draft, nil)
	require.NoError(t, err)
	assert.True(t, sent)

	_, sent, err = engine.SaveAnswers(context.Background(), 5, draft, baseline)
	require.NoError(t, err)
	assert.False(t, sent)

	store.AssertExpectations(t)
}

func TestSaveAnswers_Failure(t *testing.T) {
	engine, _, store := setupEngine()
	store.On("UpsertItemAnswers", mock.Anything, int64(5), mock.Anything).Return(&apperror.NetworkError{Op: "upsert checklist answers", Status: 502})

	previous := map[int64]models.ItemAnswer{}
	_, _, err := engine.SaveAnswers(context.Background(), 5, map[int64]models.ItemAnswer{1: {Status: true}}, previous)

	assert.True(t, apperror.IsNetwork(err))
	assert.Empty(t, previous)
}
