// Package microposts persists microposts and computes the activity feed.
package microposts

import (
	"context"

	"github.com/dmitrijs2005/microblog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, post *models.Micropost) error
	GetByID(ctx context.Context, id string) (*models.Micropost, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// Feed returns the user's own posts and those of everyone they follow,
	// newest first, in a single query.
	Feed(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error)
}
