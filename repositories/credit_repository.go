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

// MongoCreditRepository stores ledger lines in credit_entries and the per-user
// version in credit_accounts. Every write goes through a session transaction.
type MongoCreditRepository struct {
	client   *mongo.Client
	entries  *mongo.Collection
	accounts *mongo.Collection
}

func NewMongoCreditRepository(client *mongo.Client, db *mongo.Database) *MongoCreditRepository {
	return &MongoCreditRepository{
		client:   client,
		entries:  db.Collection(config.CreditEntriesCollection),
		accounts: db.Collection(config.CreditAccountsCollection),
	}
}

func (r *MongoCreditRepository) Insert(ctx context.Context, e *models.CreditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.entries.InsertOne(sc, e); err != nil {
			return nil, err
		}
		_, err := r.accounts.UpdateOne(sc,
			bson.M{"_id": e.UserID},
			bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"updatedAt": e.CreatedAt}},
			options.Update().SetUpsert(true),
		)
		return nil, err
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoCreditRepository) FindByGrantKey(ctx context.Context, key string) (*models.CreditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var e models.CreditEntry
	err := r.entries.FindOne(ctx, bson.M{"grantKey": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *MongoCreditRepository) Snapshot(ctx context.Context, userID string) ([]*models.CreditEntry, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// version first: any commit after this read bumps it and the caller's commit fails
	var account models.CreditAccount
	err := r.accounts.FindOne(ctx, bson.M{"_id": userID}).Decode(&account)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}, {Key: "createdAt", Value: 1}})
	cursor, err := r.entries.Find(ctx, bson.M{"userId": userID, "status": models.CreditStatusActive}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var entries []*models.CreditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}
	return entries, account.Version, nil
}

func (r *MongoCreditRepository) Commit(ctx context.Context, commit models.LedgerCommit) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	now := time.Now()
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// an upsert against a moved version collides on _id
		res, err := r.accounts.UpdateOne(sc,
			bson.M{"_id": commit.UserID, "version": commit.ExpectedVersion},
			bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"updatedAt": now}},
			options.Update().SetUpsert(commit.ExpectedVersion == 0),
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 && res.UpsertedCount == 0 {
			return nil, ErrVersionConflict
		}

		for _, u := range commit.Updates {
			update := bson.M{"$set": bson.M{"amount": u.Amount, "status": u.Status}}
			if u.UsedAt != nil {
				set := update["$set"].(bson.M)
				set["usedAt"] = *u.UsedAt
				set["usedOrderId"] = u.UsedOrderID
				set["usedPaymentId"] = u.UsedPaymentID
			} else {
				update["$unset"] = bson.M{"usedAt": "", "usedOrderId": "", "usedPaymentId": ""}
			}
			if _, err := r.entries.UpdateOne(sc, bson.M{"_id": u.EntryID, "userId": commit.UserID}, update); err != nil {
				return nil, err
			}
		}

		if len(commit.Inserts) > 0 {
			docs := make([]interface{}, 0, len(commit.Inserts))
			for _, e := range commit.Inserts {
				docs = append(docs, e)
			}
			if _, err := r.entries.InsertMany(sc, docs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if errors.Is(err, ErrVersionConflict) || mongo.IsDuplicateKeyError(err) {
		return ErrVersionConflict
	}
	return err
}

func (r *MongoCreditRepository) ListByUser(ctx context.Context, userID string) ([]*models.CreditEntry, error) {
	return r.find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *MongoCreditRepository) ListUsed(ctx context.Context, userID, orderID, paymentID string) ([]*models.CreditEntry, error) {
	filter := bson.M{
		"userId":      userID,
		"usedOrderId": orderID,
		"status":      models.CreditStatusUsed,
	}
	if paymentID != "" {
		filter["usedPaymentId"] = paymentID
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}}))
}

func (r *MongoCreditRepository) UsersWithExpiring(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.CreditStatusActive, "expiresAt": bson.M{"$lte": now}}}},
		{{Key: "$group", Value: bson.M{"_id": "$userId"}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := r.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		UserID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	users := make([]string, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.UserID)
	}
	return users, nil
}

func (r *MongoCreditRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.CreditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*models.CreditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
