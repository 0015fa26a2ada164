// Package postgresdb provides a PostgreSQL-based implementation of the storage
// interface for persisting users and short URL records.
// The quota counter is updated with a single conditional UPDATE, so the
// check-then-increment of the shorten flow stays correct under concurrency.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/user"
)

const uniqueViolationCode = "23505"

// PostgresDB is a PostgreSQL-backed storage.
type PostgresDB struct {
	database       *sql.DB
	requestTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops the whole schema before running migrations.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	requestTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:       database,
		requestTimeout: requestTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("resetting the database: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("setting the goose dialect: %w", err)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return result, nil
}

func (db *PostgresDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.requestTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CreateUser inserts a new user record.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	_, err := db.database.ExecContext(
		ctx,
		`INSERT INTO users (id, tier, request_count, created_at) VALUES ($1, $2, $3, $4)`,
		usr.ID,
		usr.Tier,
		usr.RequestCount,
		usr.CreatedAt,
	)
	if isUniqueViolation(err) {
		return models.ErrDuplicateUser
	}

	return err
}

// GetUserByID fetches a user by its UUID.
// Absence is reported through the boolean, not as an error.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, tier, request_count, created_at FROM users WHERE id = $1`,
		userID,
	)

	usr := user.User{}
	err := row.Scan(&usr.ID, &usr.Tier, &usr.RequestCount, &usr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &usr, true, nil
}

// UserExists checks whether the user record is present.
func (db *PostgresDB) UserExists(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	row := db.database.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}

// ReserveQuotaUnit atomically increments the request counter of the user if
// it is still below maxRequests. It reports whether the unit was charged.
func (db *PostgresDB) ReserveQuotaUnit(ctx context.Context, userID string, maxRequests int) (bool, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE users
				SET request_count = request_count + 1
				WHERE id = $1
					AND request_count < $2
		`,
		userID,
		maxRequests,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ReleaseQuotaUnit gives one previously reserved unit back. It never drives
// the counter below zero.
func (db *PostgresDB) ReleaseQuotaUnit(ctx context.Context, userID string) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	_, err := db.database.ExecContext(
		ctx,
		`
			UPDATE users
				SET request_count = request_count - 1
				WHERE id = $1
					AND request_count > 0
		`,
		userID,
	)

	return err
}

// InsertURLMapping creates a new short URL record. The insert is conditional
// on the short key being absent; a present key yields ErrDuplicateShortKey.
func (db *PostgresDB) InsertURLMapping(ctx context.Context, record models.URLRecord) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	result, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO urls (short_key, original_url, owner_user_id, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (short_key) DO NOTHING
		`,
		record.ShortKey,
		record.OriginalURL,
		record.OwnerUserID,
		record.CreatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return models.ErrDuplicateShortKey
	}

	return nil
}

// FindFullByShort retrieves the original URL associated with the short key.
func (db *PostgresDB) FindFullByShort(ctx context.Context, short string) (string, bool, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	row := db.database.QueryRowContext(
		ctx,
		`SELECT original_url FROM urls WHERE short_key = $1`,
		short,
	)

	var full string
	err := row.Scan(&full)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	return full, true, nil
}

// GetUserUrls returns all records owned by the user, in creation order.
func (db *PostgresDB) GetUserUrls(ctx context.Context, ownerUserID string) (models.UserUrls, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT short_key, original_url, owner_user_id, created_at
				FROM urls
				WHERE owner_user_id = $1
				ORDER BY created_at
		`,
		ownerUserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := models.UserUrls{}
	for rows.Next() {
		record := models.URLRecord{}
		if err := rows.Scan(&record.ShortKey, &record.OriginalURL, &record.OwnerUserID, &record.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Ping verifies connectivity with the database within the request timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	return db.database.PingContext(ctx)
}

// Close closes the database connection.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("dropping the public schema tables: %w", err)
	}

	return nil
}
