package microposts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/dbx"
	"github.com/dmitrijs2005/microblog/internal/server/models"
)

const postColumns = `id, user_id, content, picture_key, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Micropost, error) {
	p := &models.Micropost{}
	var picture sql.NullString
	if err := row.Scan(&p.ID, &p.UserID, &p.Content, &picture, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PictureKey = picture.String
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, post *models.Micropost) error {
	query :=
		`INSERT INTO microposts (id, user_id, content, picture_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`

	picture := sql.NullString{String: post.PictureKey, Valid: post.PictureKey != ""}
	_, err := r.db.ExecContext(ctx, query, post.ID, post.UserID, post.Content, picture, post.CreatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrorNotFound
		}
		return dbx.Wrap(err)
	}
	post.UpdatedAt = post.CreatedAt
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Micropost, error) {
	query := `SELECT ` + postColumns + ` FROM microposts WHERE id = $1`

	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.Wrap(err)
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM microposts WHERE id = $1`, id)
	if err != nil {
		return dbx.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.Wrap(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error) {
	query := `SELECT ` + postColumns + ` FROM microposts
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`

	return r.list(ctx, query, userID, page.Limit, page.Offset)
}

func (r *PostgresRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM microposts WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, dbx.Wrap(err)
	}
	return n, nil
}

func (r *PostgresRepository) Feed(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error) {
	query := `SELECT ` + postColumns + ` FROM microposts
		 WHERE user_id IN (SELECT followed_id FROM relationships WHERE follower_id = $1)
		    OR user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`

	return r.list(ctx, query, userID, page.Limit, page.Offset)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.Micropost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Wrap(err)
	}
	defer rows.Close()

	var result []models.Micropost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, dbx.Wrap(err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Wrap(err)
	}
	return result, nil
}
