package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/models"
)

type MongoPaymentRepository struct {
	collection *mongo.Collection
}

func NewMongoPaymentRepository(db *mongo.Database) *MongoPaymentRepository {
	return &MongoPaymentRepository{
		collection: db.Collection(config.PaymentsCollection),
	}
}

func (r *MongoPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoPaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var p models.Payment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MongoPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"orderId": orderID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var payments []*models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *MongoPaymentRepository) Transition(ctx context.Context, id string, expectedVersion int64, change PaymentChange) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	set := bson.M{"updatedAt": change.UpdatedAt}
	if change.Status != nil {
		set["status"] = *change.Status
	}
	if change.GatewayIntentID != nil {
		set["gatewayIntentId"] = *change.GatewayIntentID
	}
	if change.ClientSecret != nil {
		set["clientSecret"] = *change.ClientSecret
	}
	if change.GatewayRefundID != nil {
		set["gatewayRefundId"] = *change.GatewayRefundID
	}
	if change.CompletionApplied != nil {
		set["completionApplied"] = *change.CompletionApplied
	}
	if change.PaidAt != nil {
		set["paidAt"] = *change.PaidAt
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1, "refundedAmount": change.RefundedAmountDelta},
	}
	if change.ClearSlot {
		update["$unset"] = bson.M{"slotKey": ""}
	}

	filter := bson.M{"_id": id, "version": expectedVersion}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Payment
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// distinguish a missing payment from a lost race
		if _, findErr := r.FindByID(ctx, id); errors.Is(findErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoPaymentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := bson.M{
		"status":    models.PaymentStatusPending,
		"kind":      bson.M{"$in": []models.PaymentKind{models.PaymentKindDeposit, models.PaymentKindFinal}},
		"createdAt": bson.M{"$lte": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var payments []*models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *MongoPaymentRepository) CountCompletedFinals(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return r.collection.CountDocuments(ctx, bson.M{
		"userId": userID,
		"kind":   models.PaymentKindFinal,
		"status": bson.M{"$in": []models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusRefunded}},
	})
}
