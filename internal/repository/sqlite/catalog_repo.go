package sqlite

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"database/sql"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CatalogRepository serves the plan catalog tables. It implements both
// repository.TrainingPlanRepository and repository.WorkoutRepository, and
// can save records for seeding a local database.
type CatalogRepository struct {
	db *DB
}

var (
	_ repository.TrainingPlanRepository = (*CatalogRepository)(nil)
	_ repository.WorkoutRepository      = (*CatalogRepository)(nil)
)

func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) SavePlan(ctx context.Context, plan *domain.TrainingPlan) error {
	if plan.ID.IsZero() {
		plan.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO training_plans (id, trainer_id, client_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
			updated_at = excluded.updated_at`,
		plan.ID.Hex(), plan.TrainerID.Hex(), plan.ClientID.Hex(), plan.Name, plan.Description,
		formatTime(plan.CreatedAt), formatTime(plan.UpdatedAt))
	return err
}

func (r *CatalogRepository) SaveWorkout(ctx context.Context, w *domain.Workout) error {
	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	var day sql.NullInt64
	if w.DayOfWeek != nil {
		day = sql.NullInt64{Int64: int64(*w.DayOfWeek), Valid: true}
	}

	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO workouts (id, training_plan_id, name, day_of_week, sequence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID.Hex(), w.TrainingPlanID.Hex(), w.Name, day, w.Sequence, formatTime(w.CreatedAt))
	return err
}

func (r *CatalogRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error) {
	var (
		plan                 domain.TrainingPlan
		trainerID, clientID  string
		createdAt, updatedAt string
	)
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT trainer_id, client_id, name, description, created_at, updated_at
		FROM training_plans WHERE id = ?`, id.Hex()).
		Scan(&trainerID, &clientID, &plan.Name, &plan.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	plan.ID = id
	if plan.TrainerID, err = parseID(trainerID); err != nil {
		return nil, err
	}
	if plan.ClientID, err = parseID(clientID); err != nil {
		return nil, err
	}
	if plan.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if plan.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *CatalogRepository) GetByPlanID(ctx context.Context, planID primitive.ObjectID) ([]domain.Workout, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `
		SELECT id, name, day_of_week, sequence, created_at
		FROM workouts WHERE training_plan_id = ? ORDER BY sequence, day_of_week`, planID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := []domain.Workout{}
	for rows.Next() {
		var (
			w             domain.Workout
			id, createdAt string
			day           sql.NullInt64
		)
		if err := rows.Scan(&id, &w.Name, &day, &w.Sequence, &createdAt); err != nil {
			return nil, err
		}
		if w.ID, err = parseID(id); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if day.Valid {
			d := int(day.Int64)
			w.DayOfWeek = &d
		}
		w.TrainingPlanID = planID
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}
