package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
)

// translateError maps driver errors onto the repository error kinds.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repositories.ErrNotFound
	case errors.Is(err, repositories.ErrVersionConflict),
		errors.Is(err, repositories.ErrDuplicateKey),
		errors.Is(err, repositories.ErrNotFound):
		return err
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repositories.ErrDuplicateKey, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", repositories.ErrStorageUnavailable, err)
	}
	return err
}
