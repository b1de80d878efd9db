// Package postgres implements the stores on PostgreSQL. Every call runs in
// a transaction scoped to the acting user so row-level security applies.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store provides Postgres-backed persistence for workouts, favorites,
// profiles, identities and outbox events.
type Store struct {
	pool  *pgxpool.Pool
	role  string
	topic string
}

// Option configures the store.
type Option func(*Store)

// WithRole makes every transaction assume role, so row-level security
// applies even when the pool connects as a superuser.
func WithRole(role string) Option {
	return func(s *Store) {
		s.role = role
	}
}

// WithEventsTopic sets the topic recorded on outbox rows.
func WithEventsTopic(topic string) Option {
	return func(s *Store) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, topic: "workout_events"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inTx runs fn in a transaction on behalf of viewerID. An empty viewer is
// anonymous.
func (s *Store) inTx(ctx context.Context, viewerID string, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if s.role != "" {
		if _, err = tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{s.role}.Sanitize()); err != nil {
			return err
		}
	}
	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", viewerID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// validID filters ids that cannot match a uuid column, which would
// otherwise fail the whole statement.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
