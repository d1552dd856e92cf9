// Package relationships persists the directed follow graph.
package relationships

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/microblog/internal/server/models"
)

// ErrSelfFollow is returned when the database refuses an edge from a user
// to themselves.
var ErrSelfFollow = errors.New("cannot follow yourself")

type Repository interface {
	// Follow inserts the edge. It reports false when the edge already existed.
	Follow(ctx context.Context, followerID, followedID string) (bool, error)
	// Unfollow removes the edge. Removing a missing edge is not an error.
	Unfollow(ctx context.Context, followerID, followedID string) error
	Exists(ctx context.Context, followerID, followedID string) (bool, error)
	Following(ctx context.Context, userID string, page models.Page) ([]models.User, error)
	Followers(ctx context.Context, userID string, page models.Page) ([]models.User, error)
	Counts(ctx context.Context, userID string) (following, followers int, err error)
}
