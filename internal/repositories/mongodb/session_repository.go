package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure SessionRepository implements the interface
var _ repositories.SessionRepository = (*SessionRepository)(nil)

// SessionRepository handles MongoDB operations for NodeSession
type SessionRepository struct {
	collection *mongo.Collection
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{
		collection: db.Collection("node_sessions"),
	}
}

// Create inserts a new session. A second active session for the same device trips
// the partial unique index and comes back as ErrDuplicateKey.
func (r *SessionRepository) Create(ctx context.Context, session *models.NodeSession) error {
	if session.Version == 0 {
		session.Version = 1
	}
	_, err := r.collection.InsertOne(ctx, session)
	return translateError(err)
}

// FindByID finds a session by ID
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.NodeSession, error) {
	var session models.NodeSession
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, translateError(err)
	}
	return &session, nil
}

// FindActiveByDevice finds active sessions for a user/device pair, oldest first
func (r *SessionRepository) FindActiveByDevice(ctx context.Context, userID, deviceKey string) ([]*models.NodeSession, error) {
	filter := bson.M{"userId": userID, "deviceKey": deviceKey, "status": models.SessionActive}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startedAt", Value: 1}}))
}

// FindActiveByUser finds active sessions of a user across devices, oldest first
func (r *SessionRepository) FindActiveByUser(ctx context.Context, userID string) ([]*models.NodeSession, error) {
	filter := bson.M{"userId": userID, "status": models.SessionActive}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startedAt", Value: 1}}))
}

// FindLatestByUser finds the most recently started session of a user
func (r *SessionRepository) FindLatestByUser(ctx context.Context, userID string) (*models.NodeSession, error) {
	var session models.NodeSession
	opts := options.FindOne().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if err := r.collection.FindOne(ctx, bson.M{"userId": userID}, opts).Decode(&session); err != nil {
		return nil, translateError(err)
	}
	return &session, nil
}

// FindActive finds up to limit active sessions after the cursor, oldest first
func (r *SessionRepository) FindActive(ctx context.Context, after repositories.SessionCursor, limit int) ([]*models.NodeSession, error) {
	filter := bson.M{"status": models.SessionActive}
	if !after.IsZero() {
		filter["$or"] = bson.A{
			bson.M{"startedAt": bson.M{"$gt": after.StartedAt}},
			bson.M{"startedAt": after.StartedAt, "_id": bson.M{"$gt": after.ID}},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

// FindActiveHeartbeatBefore finds active sessions whose last heartbeat is older than cutoff
func (r *SessionRepository) FindActiveHeartbeatBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.NodeSession, error) {
	filter := bson.M{
		"status":          models.SessionActive,
		"lastHeartbeatAt": bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "lastHeartbeatAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

// Update replaces the session if the stored version still matches session.Version
func (r *SessionRepository) Update(ctx context.Context, session *models.NodeSession) error {
	expected := session.Version
	next := *session
	next.Version = expected + 1

	filter := bson.M{"_id": session.ID, "version": expected}
	result, err := r.collection.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrVersionConflict
	}
	session.Version = next.Version
	return nil
}

func (r *SessionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.NodeSession, error) {
	var sessions []*models.NodeSession
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateError(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, translateError(err)
	}
	if sessions == nil {
		sessions = []*models.NodeSession{}
	}
	return sessions, nil
}
