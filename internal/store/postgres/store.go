package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	logger.Info("[PostgresStore] schema applied")
	return nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// mapError turns driver errors into store sentinels.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			logger.Debug("[PostgresStore] unique violation", zap.String("op", op), zap.String("constraint", pgErr.ConstraintName))
			return fmt.Errorf("%s: %w", op, store.ErrConflict)
		}
		logger.Error("[PostgresStore] postgres error",
			zap.String("op", op),
			zap.String("code", pgErr.Code),
			zap.String("message", pgErr.Message),
			zap.String("detail", pgErr.Detail),
		)
	}
	return fmt.Errorf("database error in %s: %w", op, err)
}

// --- Users ---

const userColumns = `id, email, first_name, last_name, friendly_name, hashed_password,
       period_dollar_amount, terms_of_use_displayed, is_guest, auth_provider, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.FriendlyName,
		&u.HashedPassword,
		&u.PeriodDollarAmount,
		&u.TermsOfUseDisplayed,
		&u.IsGuest,
		&u.AuthProvider,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, first_name, last_name, friendly_name, hashed_password,
                   period_dollar_amount, is_guest, auth_provider)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + userColumns

func (s *PostgresStore) CreateUser(ctx context.Context, arg store.CreateUserParams) (*models.User, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	u, err := scanUser(s.db.QueryRow(ctx, createUser,
		arg.ID,
		arg.Email,
		arg.FirstName,
		arg.LastName,
		arg.FriendlyName,
		arg.HashedPassword,
		arg.PeriodDollarAmount,
		arg.IsGuest,
		arg.AuthProvider,
	))
	if err != nil {
		return nil, mapError("CreateUser", err)
	}
	logger.Debug("[PostgresStore] CreateUser: inserted", zap.String("user_id", u.ID.String()))
	return u, nil
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + `
FROM users
WHERE email = $1`

// GetUserByEmail returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, getUserByEmail, email))
	if err != nil {
		return nil, mapError("GetUserByEmail", err)
	}
	return u, nil
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1`

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, getUserByID, id))
	if err != nil {
		return nil, mapError("GetUserByID", err)
	}
	return u, nil
}

// UpdateUser builds the SET clause from the non-nil fields.
func (s *PostgresStore) UpdateUser(ctx context.Context, arg store.UpdateUserParams) (*models.User, error) {
	setClauses := []string{}
	args := []any{}
	argID := 1

	if arg.TermsOfUseDisplayed != nil {
		setClauses = append(setClauses, fmt.Sprintf("terms_of_use_displayed = $%d", argID))
		args = append(args, *arg.TermsOfUseDisplayed)
		argID++
	}
	if arg.PeriodDollarAmount != nil {
		setClauses = append(setClauses, fmt.Sprintf("period_dollar_amount = $%d", argID))
		args = append(args, *arg.PeriodDollarAmount)
		argID++
	}
	if len(setClauses) == 0 {
		return s.GetUserByID(ctx, arg.ID)
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, arg.ID)

	query := fmt.Sprintf(`-- name: UpdateUser :one
UPDATE users SET %s WHERE id = $%d
RETURNING %s`, strings.Join(setClauses, ", "), argID, userColumns)

	u, err := scanUser(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError("UpdateUser", err)
	}
	return u, nil
}

const (
	deleteUserAccess = `-- name: DeleteUserAccess :exec
DELETE FROM access WHERE user_email = $1`
	deleteUser = `-- name: DeleteUser :exec
DELETE FROM users WHERE id = $1`
)

func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var email string
		if err := tx.QueryRow(ctx, `SELECT email FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&email); err != nil {
			return mapError("DeleteUser", err)
		}
		if _, err := tx.Exec(ctx, deleteUserAccess, email); err != nil {
			return mapError("DeleteUser", err)
		}
		if _, err := tx.Exec(ctx, deleteUser, id); err != nil {
			return mapError("DeleteUser", err)
		}
		logger.Info("[PostgresStore] DeleteUser: removed user and access rows", zap.String("user_id", id.String()))
		return nil
	})
}
