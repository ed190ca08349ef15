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

type MongoReferralRepository struct {
	codes         *mongo.Collection
	relationships *mongo.Collection
}

func NewMongoReferralRepository(db *mongo.Database) *MongoReferralRepository {
	return &MongoReferralRepository{
		codes:         db.Collection(config.ReferralCodesCollection),
		relationships: db.Collection(config.ReferralsCollection),
	}
}

func (r *MongoReferralRepository) InsertCode(ctx context.Context, c *models.ReferralCode) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.codes.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoReferralRepository) FindCodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error) {
	return r.findCode(ctx, bson.M{"userId": userID, "isActive": true})
}

func (r *MongoReferralRepository) FindCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	return r.findCode(ctx, bson.M{"code": code})
}

func (r *MongoReferralRepository) findCode(ctx context.Context, filter bson.M) (*models.ReferralCode, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var c models.ReferralCode
	err := r.codes.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MongoReferralRepository) InsertRelationship(ctx context.Context, rel *models.ReferralRelationship) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.relationships.InsertOne(ctx, rel)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoReferralRepository) FindRelationshipByReferee(ctx context.Context, refereeID string) (*models.ReferralRelationship, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var rel models.ReferralRelationship
	err := r.relationships.FindOne(ctx, bson.M{"refereeId": refereeID}).Decode(&rel)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (r *MongoReferralRepository) ListRelationshipsByReferrer(ctx context.Context, referrerID string) ([]*models.ReferralRelationship, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.relationships.Find(ctx, bson.M{"referrerId": referrerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rels []*models.ReferralRelationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

func (r *MongoReferralRepository) CompleteRelationship(ctx context.Context, id, orderID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := r.relationships.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ReferralStatusPending, "rewardGranted": false},
		bson.M{"$set": bson.M{
			"status":        models.ReferralStatusCompleted,
			"rewardGranted": true,
			"firstOrderId":  orderID,
			"completedAt":   at,
			"updatedAt":     at,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoReferralRepository) ExpirePendingBefore(ctx context.Context, cutoff, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := r.relationships.UpdateMany(ctx,
		bson.M{"status": models.ReferralStatusPending, "rewardGranted": false, "createdAt": bson.M{"$lte": cutoff}},
		bson.M{"$set": bson.M{"status": models.ReferralStatusExpired, "updatedAt": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
