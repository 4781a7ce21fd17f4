package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// Unique constraints on users, reported through ConflictError.Constraint.
const (
	UsernameConstraint = "users_username_key"
	EmailConstraint    = "users_email_key"
)

// UsersRepository persists registered accounts.
type UsersRepository struct {
	pool *pgxpool.Pool
}

// UserCreateParams bundles the fields required to create a user.
type UserCreateParams struct {
	Username     string
	Email        string
	PasswordHash string
}

const userColumns = `id, username, email, password_hash, created_at`

// Create inserts a user. Duplicate usernames or emails yield a *ConflictError.
func (r *UsersRepository) Create(ctx context.Context, params UserCreateParams) (domain.User, error) {
	query := fmt.Sprintf(`
        INSERT INTO users (username, email, password_hash)
        VALUES ($1,$2,$3)
        RETURNING %s
    `, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, params.Username, params.Email, params.PasswordHash))
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", mapWriteError(err))
	}
	return user, nil
}

// GetByUsername fetches a user by username.
func (r *UsersRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getBy(ctx, "username", username)
}

// GetByEmail fetches a user by email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByID fetches a user by id.
func (r *UsersRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UsersRepository) getBy(ctx context.Context, column string, value any) (domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column)
	user, err := scanUser(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	return user, err
}
