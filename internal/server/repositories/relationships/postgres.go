package relationships

import (
	"context"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/dbx"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/repositories/users"
)

// SelfFollowConstraint is the CHECK constraint forbidding self edges.
const SelfFollowConstraint = "relationships_no_self_follow"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	query :=
		`INSERT INTO relationships (follower_id, followed_id)
		 VALUES ($1, $2)
		 ON CONFLICT (follower_id, followed_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, followerID, followedID)
	if err != nil {
		switch {
		case dbx.IsCheckViolation(err, SelfFollowConstraint):
			return false, ErrSelfFollow
		case dbx.IsForeignKeyViolation(err):
			return false, common.ErrorNotFound
		}
		return false, dbx.Wrap(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.Wrap(err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Unfollow(ctx context.Context, followerID, followedID string) error {
	query := `DELETE FROM relationships WHERE follower_id = $1 AND followed_id = $2`

	if _, err := r.db.ExecContext(ctx, query, followerID, followedID); err != nil {
		return dbx.Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, followerID, followedID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM relationships WHERE follower_id = $1 AND followed_id = $2)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, followerID, followedID).Scan(&ok); err != nil {
		return false, dbx.Wrap(err)
	}
	return ok, nil
}

func (r *PostgresRepository) Following(ctx context.Context, userID string, page models.Page) ([]models.User, error) {
	query := `SELECT ` + users.Columns("u") + ` FROM users u
		 JOIN relationships r ON r.followed_id = u.id
		 WHERE r.follower_id = $1
		 ORDER BY r.created_at DESC, u.id ASC
		 LIMIT $2 OFFSET $3`

	return r.listUsers(ctx, query, userID, page.Limit, page.Offset)
}

func (r *PostgresRepository) Followers(ctx context.Context, userID string, page models.Page) ([]models.User, error) {
	query := `SELECT ` + users.Columns("u") + ` FROM users u
		 JOIN relationships r ON r.follower_id = u.id
		 WHERE r.followed_id = $1
		 ORDER BY r.created_at DESC, u.id ASC
		 LIMIT $2 OFFSET $3`

	return r.listUsers(ctx, query, userID, page.Limit, page.Offset)
}

func (r *PostgresRepository) Counts(ctx context.Context, userID string) (int, int, error) {
	query :=
		`SELECT
		   (SELECT count(*) FROM relationships WHERE follower_id = $1),
		   (SELECT count(*) FROM relationships WHERE followed_id = $1)`

	var following, followers int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&following, &followers); err != nil {
		return 0, 0, dbx.Wrap(err)
	}
	return following, followers, nil
}

func (r *PostgresRepository) listUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Wrap(err)
	}
	defer rows.Close()

	var result []models.User
	for rows.Next() {
		u, err := users.Scan(rows)
		if err != nil {
			return nil, dbx.Wrap(err)
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Wrap(err)
	}
	return result, nil
}
