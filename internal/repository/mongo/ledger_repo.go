package mongo

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ledgerCollectionName = "client_ledgers"

// mongoLedgerRepository implements repository.LedgerRepository. One document
// per client, keyed by the client id.
type mongoLedgerRepository struct {
	collection *mongo.Collection
}

// NewMongoLedgerRepository creates a new ClientLedger repository.
func NewMongoLedgerRepository(db *mongo.Database) repository.LedgerRepository {
	return &mongoLedgerRepository{
		collection: db.Collection(ledgerCollectionName),
	}
}

// EnsureLedger upserts an empty ledger; an existing one is left untouched.
func (r *mongoLedgerRepository) EnsureLedger(ctx context.Context, clientID primitive.ObjectID) error {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"planHistory":    bson.A{},
			"chargeHistory":  bson.A{},
			"balance":        decimal.Zero,
			"monthlyBalance": decimal.Zero,
			"billedEntries":  0,
			"createdAt":      now,
			"updatedAt":      now,
		},
	}
	// Upsert on _id; $setOnInsert leaves an existing ledger as it was
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": clientID}, update, options.Update().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race; the ledger exists, which is all we need.
		return nil
	}
	return err
}

// GetByClientID retrieves a client's ledger.
func (r *mongoLedgerRepository) GetByClientID(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error) {
	var ledger domain.ClientLedger
	err := r.collection.FindOne(ctx, bson.M{"_id": clientID}).Decode(&ledger)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

func (r *mongoLedgerRepository) AppendPlanAssignment(ctx context.Context, clientID primitive.ObjectID, assignment domain.PlanAssignment) error {
	update := bson.M{
		"$push": bson.M{"planHistory": assignment},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.updateOne(ctx, clientID, update)
}

// AppendCharge pushes the entry and bumps both running totals in the same
// update, so a concurrent ClearBalance can never interleave between them.
func (r *mongoLedgerRepository) AppendCharge(ctx context.Context, clientID primitive.ObjectID, entry domain.LedgerEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	// Push and increment in one document update
	update := bson.M{
		"$push": bson.M{"chargeHistory": entry},
		"$inc":  bson.M{"balance": entry.Amount, "monthlyBalance": entry.Amount},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.updateOne(ctx, clientID, update)
}

func (r *mongoLedgerRepository) SetCurrentPlan(ctx context.Context, clientID, planID primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"currentPlanId": planID, "updatedAt": time.Now().UTC()}}
	return r.updateOne(ctx, clientID, update)
}

// ClearCurrentPlan is conditional on the pointer still holding expected, so
// a concurrent unlock of a different plan is never overwritten.
func (r *mongoLedgerRepository) ClearCurrentPlan(ctx context.Context, clientID, expected primitive.ObjectID) (bool, error) {
	filter := bson.M{"_id": clientID, "currentPlanId": expected}
	update := bson.M{
		"$unset": bson.M{"currentPlanId": ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// ClearBalance is a pipeline update so that billedEntries is taken from the
// chargeHistory the same write sees. A charge pushed afterwards lands past
// the marker and stays unbilled.
func (r *mongoLedgerRepository) ClearBalance(ctx context.Context, clientID primitive.ObjectID, at time.Time) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"balance":          decimal.Zero,
			"monthlyBalance":   decimal.Zero,
			"lastBalanceReset": at.UTC(),
			"billedEntries":    bson.M{"$size": bson.M{"$ifNull": bson.A{"$chargeHistory", bson.A{}}}},
			"updatedAt":        time.Now().UTC(),
		}}},
	}
	return r.updateOne(ctx, clientID, update)
}

// CorrectBalance is a compare-and-set on both running totals and the reset
// marker. Decimal128 comparison is numeric, so 10.5 matches 10.50.
func (r *mongoLedgerRepository) CorrectBalance(ctx context.Context, clientID primitive.ObjectID, expectedBalance, expectedMonthly decimal.Decimal, expectedBilled int, corrected decimal.Decimal) (bool, error) {
	filter := bson.M{
		"_id":            clientID,
		"balance":        expectedBalance,
		"monthlyBalance": expectedMonthly,
		"billedEntries":  expectedBilled,
	}
	if expectedBilled == 0 {
		// Ledgers written before the marker existed have no field.
		filter["billedEntries"] = bson.M{"$in": bson.A{0, nil}}
	}
	update := bson.M{"$set": bson.M{
		"balance":        corrected,
		"monthlyBalance": corrected,
		"updatedAt":      time.Now().UTC(),
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoLedgerRepository) ListClientIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	findOptions := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	// Only the ids are needed; the histories can be large
	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// updateOne applies an update document or pipeline to one ledger and maps
// a missing ledger to ErrNotFound.
func (r *mongoLedgerRepository) updateOne(ctx context.Context, clientID primitive.ObjectID, update interface{}) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": clientID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
