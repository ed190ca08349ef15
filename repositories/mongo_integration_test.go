//go:build container
// +build container

package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/logging"
	"github.com/lvanfai123/moving-service-sub001/models"
)

// startMongo runs a single node replica set so session transactions work, and
// returns a fresh database with the production indexes.
func startMongo(t *testing.T) (*mongo.Client, *mongo.Database) {
	t.Helper()
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			Cmd:          []string{"mongod", "--replSet", "rs0", "--bind_ip_all"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s/?directConnection=true", endpoint)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	err = client.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: bson.M{
		"_id":     "rs0",
		"members": bson.A{bson.M{"_id": 0, "host": "localhost:27017"}},
	}}}).Err()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var hello struct {
			IsWritablePrimary bool `bson:"isWritablePrimary"`
		}
		if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
			return false
		}
		return hello.IsWritablePrimary
	}, time.Minute, 500*time.Millisecond)

	db := client.Database("moving_test")
	require.NoError(t, config.SetupCollections(ctx, db, logging.Nop()))
	return client, db
}

func TestMongoIntegration_PaymentTransitionRace(t *testing.T) {
	_, db := startMongo(t)
	repo := NewMongoPaymentRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Create(ctx, pendingPayment("p1", models.PaymentKindDeposit, now)))
	assert.ErrorIs(t, repo.Create(ctx, pendingPayment("p2", models.PaymentKindDeposit, now)), ErrDuplicate)

	paid := models.PaymentStatusPaid
	failed := models.PaymentStatusFailed

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		results []error
	)
	for _, status := range []*models.PaymentStatus{&paid, &failed, &paid, &failed} {
		wg.Add(1)
		go func(status *models.PaymentStatus) {
			defer wg.Done()
			_, err := repo.Transition(ctx, "p1", 0, PaymentChange{Status: status, UpdatedAt: now})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			results = append(results, err)
		}(status)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range results {
		assert.ErrorIs(t, err, ErrVersionConflict)
	}

	stored, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	_, err = repo.Transition(ctx, "missing", 0, PaymentChange{UpdatedAt: now})
	assert.ErrorIs(t, err, ErrNotFound)
}

func creditEntry(id, userID string, amount int64, now time.Time) *models.CreditEntry {
	return &models.CreditEntry{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Type:      models.CreditTypeReferrer,
		Status:    models.CreditStatusActive,
		GrantKey:  "grant:" + id,
		CreatedAt: now,
		ExpiresAt: now.AddDate(1, 0, 0),
	}
}

func TestMongoIntegration_CommitRejectsStaleVersion(t *testing.T) {
	client, db := startMongo(t)
	repo := NewMongoCreditRepository(client, db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Insert(ctx, creditEntry("c1", "u1", 10000, now)))
	dup := creditEntry("c2", "u1", 10000, now)
	dup.GrantKey = "grant:c1"
	assert.ErrorIs(t, repo.Insert(ctx, dup), ErrDuplicate)

	active, version, err := repo.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), version)

	commit := models.LedgerCommit{
		UserID:          "u1",
		ExpectedVersion: version,
		Updates: []models.EntryUpdate{{
			EntryID: "c1", Amount: 10000, Status: models.CreditStatusUsed,
			UsedAt: &now, UsedOrderID: "order-1", UsedPaymentID: "p1",
		}},
	}
	require.NoError(t, repo.Commit(ctx, commit))
	assert.ErrorIs(t, repo.Commit(ctx, commit), ErrVersionConflict)

	used, err := repo.ListUsed(ctx, "u1", "order-1", "p1")
	require.NoError(t, err)
	require.Len(t, used, 1)

	active, version, err = repo.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, int64(2), version)
}

func TestMongoIntegration_FirstCommitOnNewAccountWinsOnce(t *testing.T) {
	client, db := startMongo(t)
	repo := NewMongoCreditRepository(client, db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	// two writers both saw no account row and race the upsert
	first := models.LedgerCommit{UserID: "fresh", ExpectedVersion: 0, Inserts: []*models.CreditEntry{creditEntry("a", "fresh", 500, now)}}
	second := models.LedgerCommit{UserID: "fresh", ExpectedVersion: 0, Inserts: []*models.CreditEntry{creditEntry("b", "fresh", 700, now)}}

	require.NoError(t, repo.Commit(ctx, first))
	assert.ErrorIs(t, repo.Commit(ctx, second), ErrVersionConflict)

	entries, version, err := repo.Snapshot(ctx, "fresh")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, int64(1), version)
}

func TestMongoIntegration_ExpireStampsSweepTime(t *testing.T) {
	_, db := startMongo(t)
	repo := NewMongoReferralRepository(db)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sweepAt := created.AddDate(0, 3, 0)

	require.NoError(t, repo.InsertRelationship(ctx, &models.ReferralRelationship{
		ID: "rel-1", ReferrerID: "alice", RefereeID: "bob",
		Status: models.ReferralStatusPending, CreatedAt: created, UpdatedAt: created,
	}))

	n, err := repo.ExpirePendingBefore(ctx, sweepAt.AddDate(0, -1, 0), sweepAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rel, err := repo.FindRelationshipByReferee(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusExpired, rel.Status)
	assert.True(t, rel.UpdatedAt.Equal(sweepAt))
}
