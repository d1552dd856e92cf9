package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/dbx"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/google/uuid"
)

// EmailConstraint is the unique index on lower(email).
const EmailConstraint = "users_email_lower_key"

var columnNames = []string{"id", "name", "email", "password_digest", "role", "gender",
	"remember_digest", "activated", "activation_digest", "activated_at",
	"reset_digest", "reset_sent_at", "created_at", "updated_at"}

var userColumns = Columns("")

// Columns returns the select list understood by Scan, each column qualified
// with alias when it is non-empty.
func Columns(alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	var b strings.Builder
	for i, c := range columnNames {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(prefix)
		b.WriteString(c)
	}
	return b.String()
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// Scan reads one user selected with Columns.
func Scan(row RowScanner) (*models.User, error) {
	u := &models.User{}
	var role string
	var gender sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordDigest, &role, &gender,
		&u.RememberDigest, &u.Activated, &u.ActivationDigest, &u.ActivatedAt,
		&u.ResetDigest, &u.ResetSentAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Gender = models.Gender(gender.String)
	return u, nil
}

func nullGender(g models.Gender) sql.NullString {
	return sql.NullString{String: string(g), Valid: g != ""}
}

func mapWriteError(err error) error {
	if dbx.IsUniqueViolation(err, EmailConstraint) {
		return ErrEmailTaken
	}
	return dbx.Wrap(err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (id, name, email, password_digest, role, gender,
		 activated, activation_digest, activated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordDigest, string(user.Role), nullGender(user.Gender),
		user.Activated, user.ActivationDigest, user.ActivatedAt, user.CreatedAt).Scan(&user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	return user, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := Scan(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.Wrap(err)
	}
	return user, nil
}

// GetByID loads a user. An id that is not a uuid matches no row and is
// rejected without a round trip.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if uuid.Validate(id) != nil {
		return nil, common.ErrorNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// List returns activated users in creation order.
func (r *PostgresRepository) List(ctx context.Context, page models.Page) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE activated = true
		 ORDER BY created_at ASC, id ASC
		 LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, dbx.Wrap(err)
	}
	defer rows.Close()

	var result []models.User
	for rows.Next() {
		u, err := Scan(rows)
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

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
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

func (r *PostgresRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET name = $2, email = $3, gender = $4, updated_at = now()
		 WHERE id = $1`
	return r.exec(ctx, query, user.ID, user.Name, user.Email, nullGender(user.Gender))
}

// UpdatePassword stores a new password digest and drops any outstanding
// reset and remember digests.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordDigest string) error {
	query :=
		`UPDATE users SET password_digest = $2, reset_digest = NULL, reset_sent_at = NULL,
		 remember_digest = NULL, updated_at = now()
		 WHERE id = $1`
	return r.exec(ctx, query, id, passwordDigest)
}

func (r *PostgresRepository) SetRememberDigest(ctx context.Context, id string, digest sql.NullString) error {
	return r.exec(ctx, `UPDATE users SET remember_digest = $2 WHERE id = $1`, id, digest)
}

func (r *PostgresRepository) SetResetDigest(ctx context.Context, id, digest string, sentAt time.Time) error {
	return r.exec(ctx, `UPDATE users SET reset_digest = $2, reset_sent_at = $3 WHERE id = $1`, id, digest, sentAt)
}

func (r *PostgresRepository) Activate(ctx context.Context, id string, at time.Time) (bool, error) {
	query :=
		`UPDATE users SET activated = true, activation_digest = NULL, activated_at = $2
		 WHERE id = $1 AND activated = false`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, dbx.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.Wrap(err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}
