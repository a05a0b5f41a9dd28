package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Compile-time check to ensure LedgerRepository implements the interface
var _ repositories.LedgerRepository = (*LedgerRepository)(nil)

// LedgerRepository handles MongoDB operations for ledger entries and user balances
type LedgerRepository struct {
	client   *mongo.Client
	entries  *mongo.Collection
	balances *mongo.Collection
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *mongo.Database) *LedgerRepository {
	return &LedgerRepository{
		client:   db.Client(),
		entries:  db.Collection("ledger_entries"),
		balances: db.Collection("user_balances"),
	}
}

// GetBalance finds the materialized balance of a user
func (r *LedgerRepository) GetBalance(ctx context.Context, userID string) (*models.UserBalance, error) {
	var balance models.UserBalance
	if err := r.balances.FindOne(ctx, bson.M{"_id": userID}).Decode(&balance); err != nil {
		return nil, translateError(err)
	}
	return &balance, nil
}

// FindByIdempotencyKey finds the entry a user already recorded under key
func (r *LedgerRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	filter := bson.M{"userId": userID, "idempotencyKey": key}
	if err := r.entries.FindOne(ctx, filter).Decode(&entry); err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

// Commit writes the entry and the new balance in a single transaction
func (r *LedgerRepository) Commit(ctx context.Context, balance *models.UserBalance, entry *models.LedgerEntry) error {
	expected := balance.Version
	next := *balance
	next.Version = expected + 1

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	session, err := r.client.StartSession()
	if err != nil {
		return translateError(err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if expected == 0 {
			if _, err := r.balances.InsertOne(sc, &next); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return nil, repositories.ErrVersionConflict
				}
				return nil, err
			}
		} else {
			filter := bson.M{"_id": balance.UserID, "version": expected}
			result, err := r.balances.ReplaceOne(sc, filter, &next)
			if err != nil {
				return nil, err
			}
			if result.MatchedCount == 0 {
				return nil, repositories.ErrVersionConflict
			}
		}

		if _, err := r.entries.InsertOne(sc, entry); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: %v", repositories.ErrDuplicateKey, err)
			}
			return nil, err
		}
		return nil, nil
	}, txnOpts)
	if err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) || errors.Is(err, repositories.ErrDuplicateKey) {
			return err
		}
		return translateError(err)
	}

	balance.Version = next.Version
	return nil
}

// FindByUserID finds the user's entries in ledger order. With a positive limit only
// the most recent limit entries are returned, still oldest first.
func (r *LedgerRepository) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	if limit > 0 {
		findOptions = options.Find().SetSort(bson.D{{Key: "sequence", Value: -1}}).SetLimit(int64(limit))
	}

	entries, err := r.find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// FindBySessionID finds all entries tagged with a node session
func (r *LedgerRepository) FindBySessionID(ctx context.Context, sessionID string) ([]*models.LedgerEntry, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return r.find(ctx, bson.M{"sessionId": sessionID}, findOptions)
}

func (r *LedgerRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	cursor, err := r.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateError(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &entries); err != nil {
		return nil, translateError(err)
	}

	// Return empty slice instead of nil if no documents found
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	return entries, nil
}
