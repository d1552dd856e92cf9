// Package users persists user accounts and their credential digests.
package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/microblog/internal/server/models"
)

// ErrEmailTaken is returned when the case-insensitive email index rejects
// a write.
var ErrEmailTaken = errors.New("email already taken")

// Repository is the storage contract for users. Lookups that find nothing
// return common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, page models.Page) ([]models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordDigest string) error
	SetRememberDigest(ctx context.Context, id string, digest sql.NullString) error
	SetResetDigest(ctx context.Context, id, digest string, sentAt time.Time) error
	// Activate flips an unactivated user to activated. It reports false when
	// the user was already activated, so only one caller ever wins.
	Activate(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}
