package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type countingPlanRepo struct {
	plans map[primitive.ObjectID]domain.TrainingPlan
	calls int
}

func (r *countingPlanRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error) {
	r.calls++
	p, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type staticWorkoutRepo struct {
	workouts []domain.Workout
}

func (r staticWorkoutRepo) GetByPlanID(context.Context, primitive.ObjectID) ([]domain.Workout, error) {
	return r.workouts, nil
}

func TestPlanCatalog_CachesSummaries(t *testing.T) {
	planID := primitive.NewObjectID()
	plans := &countingPlanRepo{plans: map[primitive.ObjectID]domain.TrainingPlan{
		planID: {ID: planID, Name: "Phase 1: Hypertrophy"},
	}}
	workouts := staticWorkoutRepo{workouts: []domain.Workout{{Name: "Day 1: Upper Body", Sequence: 1}}}
	catalog := NewPlanCatalog(plans, workouts, 8, time.Minute)
	ctx := context.Background()

	first, err := catalog.GetPlanSummary(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, "Phase 1: Hypertrophy", first.Plan.Name)
	require.Len(t, first.Workouts, 1)

	second, err := catalog.GetPlanSummary(ctx, planID)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, plans.calls)

	_, err = catalog.GetPlanSummary(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}
