package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const defaultCatalogCacheSize = 256

// PlanCatalog resolves plan ids to display metadata. The ledger only stores
// plan ids; the catalog is owned by the plan-authoring side.
type PlanCatalog interface {
	GetPlanSummary(ctx context.Context, planID primitive.ObjectID) (*domain.PlanSummary, error)
}

type planCatalog struct {
	planRepo    repository.TrainingPlanRepository
	workoutRepo repository.WorkoutRepository
	cache       *lru.LRU[primitive.ObjectID, *domain.PlanSummary]
}

// NewPlanCatalog caches summaries for ttl. Plans edited in the meantime are
// served stale until their entry expires.
func NewPlanCatalog(
	planRepo repository.TrainingPlanRepository,
	workoutRepo repository.WorkoutRepository,
	cacheSize int,
	ttl time.Duration,
) PlanCatalog {
	if cacheSize <= 0 {
		cacheSize = defaultCatalogCacheSize
	}
	return &planCatalog{
		planRepo:    planRepo,
		workoutRepo: workoutRepo,
		cache:       lru.NewLRU[primitive.ObjectID, *domain.PlanSummary](cacheSize, nil, ttl),
	}
}

func (c *planCatalog) GetPlanSummary(ctx context.Context, planID primitive.ObjectID) (*domain.PlanSummary, error) {
	if summary, ok := c.cache.Get(planID); ok {
		return summary, nil
	}

	plan, err := c.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("load plan: %w", err)
	}
	workouts, err := c.workoutRepo.GetByPlanID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load workouts: %w", err)
	}

	summary := &domain.PlanSummary{Plan: *plan, Workouts: workouts}
	c.cache.Add(planID, summary)
	return summary, nil
}
