package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Workout is a single session within a TrainingPlan. A missed workout is
// what produces a penalty charge on the ledger.
type Workout struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainingPlanID primitive.ObjectID `bson:"trainingPlanId" json:"trainingPlanId"`
	Name           string             `bson:"name" json:"name"`                               // e.g., "Day 1: Upper Body"
	DayOfWeek      *int               `bson:"dayOfWeek,omitempty" json:"dayOfWeek,omitempty"` // 1 (Mon) - 7 (Sun)
	Sequence       int                `bson:"sequence" json:"sequence"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}
