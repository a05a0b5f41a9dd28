package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the lookup and uniqueness indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	sessionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "deviceKey", Value: 1}, {Key: "status", Value: 1}}},
		{
			// one active session per user/device
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "deviceKey", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_device").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "active"}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastHeartbeatAt", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "startedAt", Value: -1}}},
	}
	if _, err := db.Collection("node_sessions").Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return err
	}

	ledgerIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: 1}}},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
			Options: options.Index().
				SetName("uniq_idempotency_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "sessionId", Value: 1}}},
	}
	if _, err := db.Collection("ledger_entries").Indexes().CreateMany(ctx, ledgerIndexes); err != nil {
		return err
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "walletAddress", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := db.Collection("users").Indexes().CreateMany(ctx, userIndexes)
	return err
}
