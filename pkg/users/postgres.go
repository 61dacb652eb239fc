package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresService implements Service against PostgreSQL.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a Service backed by the given database handle.
func NewPostgresService(db *sql.DB) (*PostgresService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &PostgresService{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure users table: %w", err)
	}

	return s, nil
}

// ensureTable creates the users table if it doesn't exist
func (s *PostgresService) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		organization_id VARCHAR(64) NOT NULL,
		questions_asked INTEGER NOT NULL DEFAULT 0,
		questions_reset_date TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));
	CREATE INDEX IF NOT EXISTS idx_users_organization_id ON users(organization_id);
	`

	_, err := s.db.Exec(query)
	return err
}

const userColumns = `id, email, status, organization_id, questions_asked, questions_reset_date, created_at`

// GetUser returns the active user with the given ID, or ErrUserNotFound.
func (s *PostgresService) GetUser(ctx context.Context, userID string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 AND status = 'active'`, userColumns)
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail returns the active user with the given email, or ErrUserNotFound.
func (s *PostgresService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1) AND status = 'active'`, userColumns)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *PostgresService) scanUser(row *sql.Row) (*User, error) {
	var (
		user      User
		resetDate sql.NullTime
		createdAt sql.NullTime
	)

	err := row.Scan(&user.ID, &user.Email, &user.Status, &user.OrganizationID,
		&user.QuestionsAsked, &resetDate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if resetDate.Valid {
		user.QuestionsResetDate = resetDate.Time
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}

	return &user, nil
}

// UpdateQuota persists the monthly quota fields for a user. Only the quota
// columns are touched.
func (s *PostgresService) UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error {
	query := `
		UPDATE users
		SET questions_asked = $1, questions_reset_date = $2
		WHERE id = $3 AND organization_id = $4
	`

	result, err := s.db.ExecContext(ctx, query, questionsAsked, resetDate, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to update user quota: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}
