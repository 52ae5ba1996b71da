package mongo

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const invoiceCollectionName = "monthly_invoices"

// mongoInvoiceRepository implements repository.InvoiceRepository
type mongoInvoiceRepository struct {
	collection *mongo.Collection
}

// NewMongoInvoiceRepository creates a new MonthlyInvoice repository.
// EnsureInvoiceIndexes must have run for Create to detect duplicates.
func NewMongoInvoiceRepository(db *mongo.Database) repository.InvoiceRepository {
	return &mongoInvoiceRepository{
		collection: db.Collection(invoiceCollectionName),
	}
}

// Create inserts a new invoice. A second invoice for the same client and
// month is rejected by the unique index and reported as ErrConflict.
func (r *mongoInvoiceRepository) Create(ctx context.Context, invoice *domain.MonthlyInvoice) (primitive.ObjectID, error) {
	invoice.ID = primitive.NewObjectID()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, invoice)
	if err != nil {
		// uniq_client_month rejected it; the caller re-reads the winner
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}
	// Get the inserted ID
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted invoice ID")
	}
	return insertedID, nil
}

func (r *mongoInvoiceRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.MonthlyInvoice, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoInvoiceRepository) GetByClientAndMonth(ctx context.Context, clientID primitive.ObjectID, month time.Time) (*domain.MonthlyInvoice, error) {
	return r.findOne(ctx, bson.M{"clientId": clientID, "month": month.UTC()})
}

func (r *mongoInvoiceRepository) ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]domain.MonthlyInvoice, error) {
	// Newest month first
	findOptions := options.Find().SetSort(bson.D{{Key: "month", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"clientId": clientID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	// Decode all results; empty slice rather than nil for JSON
	invoices := []domain.MonthlyInvoice{}
	if err = cursor.All(ctx, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// MarkPaid only matches payable invoices. On no match it tells a missing
// invoice apart from one that was already paid.
func (r *mongoInvoiceRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": bson.A{domain.InvoiceUnpaid, domain.InvoiceOverdue}},
	}
	update := bson.M{"$set": bson.M{"status": domain.InvoicePaid, "paidAt": paidAt.UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: absent, or not in a payable status
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *mongoInvoiceRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	// Served by the (status, dueDate) index
	filter := bson.M{
		"status":  domain.InvoiceUnpaid,
		"dueDate": bson.M{"$lt": now.UTC()},
	}
	update := bson.M{"$set": bson.M{"status": domain.InvoiceOverdue}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *mongoInvoiceRepository) SetStatementKey(ctx context.Context, id primitive.ObjectID, key string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"statementKey": key}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoInvoiceRepository) findOne(ctx context.Context, filter bson.M) (*domain.MonthlyInvoice, error) {
	var invoice domain.MonthlyInvoice
	err := r.collection.FindOne(ctx, filter).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// EnsureInvoiceIndexes creates the (clientId, month) uniqueness index and the
// index used by the overdue sweep. Call during startup.
func EnsureInvoiceIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		// One invoice per client and month
		{
			Keys:    bson.D{{Key: "clientId", Value: 1}, {Key: "month", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_client_month"),
		},
		// Overdue sweep
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "dueDate", Value: 1}},
			Options: options.Index(),
		},
	}
	// CreateMany is a no-op for indexes that already exist with the same spec
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes for %s: %w", collection.Name(), err)
	}
	return nil
}
