package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the pg_notify channel carrying changed paths
const notifyChannel = "simple_claim_store"

// PostgresStore implements Store on PostgreSQL. Entries live in a single
// store_entry table keyed by path; multi-location writes run in one
// transaction and change notifications ride LISTEN/NOTIFY.
type PostgresStore struct {
	pool     *pgxpool.Pool
	watchers *notifier

	listenOnce   sync.Once
	listenCancel context.CancelFunc
}

// NewPostgresStore creates a PostgreSQL store and ensures its schema exists
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:     pool,
		watchers: newNotifier(),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS store_entry (
			path TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// Get reads the value at path
func (s *PostgresStore) Get(ctx context.Context, path string) (Snapshot, error) {
	path = normalizePath(path)

	rows, err := s.pool.Query(ctx,
		`SELECT path, value FROM store_entry WHERE path = $1 OR path LIKE $1 || '/%'`, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer rows.Close()

	entries := make(map[string]interface{})
	for rows.Next() {
		var entryPath string
		var raw []byte
		if err := rows.Scan(&entryPath, &raw); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan entry: %w", err)
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return Snapshot{}, fmt.Errorf("corrupt entry at %s: %w", entryPath, err)
		}
		entries[entryPath] = value
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Snapshot{Path: path, Value: assemble(path, entries)}, nil
}

// Update applies all entries in one transaction
func (s *PostgresStore) Update(ctx context.Context, updates map[string]interface{}) error {
	return s.updateTx(ctx, "", updates)
}

// UpdateIfAbsent applies updates only when guardPath holds no value. The
// guard row is inserted without upsert semantics, so two racing claimants
// serialize on the primary key and the loser gets ErrPathExists.
func (s *PostgresStore) UpdateIfAbsent(ctx context.Context, guardPath string, updates map[string]interface{}) error {
	return s.updateTx(ctx, normalizePath(guardPath), updates)
}

func (s *PostgresStore) updateTx(ctx context.Context, guardPath string, updates map[string]interface{}) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stamp int64
	if err := tx.QueryRow(ctx,
		`SELECT (extract(epoch FROM now()) * 1000)::bigint`).Scan(&stamp); err != nil {
		return fmt.Errorf("failed to read server clock: %w", err)
	}

	if guardPath != "" {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM store_entry WHERE path = $1 OR path LIKE $1 || '/%')`,
			guardPath).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check guard path: %w", err)
		}
		if exists {
			return ErrPathExists
		}
	}

	changed := make([]string, 0, len(updates))
	for path, value := range updates {
		path = normalizePath(path)
		changed = append(changed, path)

		_, err := tx.Exec(ctx,
			`DELETE FROM store_entry WHERE path = $1 OR path LIKE $1 || '/%'`, path)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", path, err)
		}
		if value == nil {
			continue
		}

		leaves := make(map[string]interface{})
		flatten(path, value, stamp, leaves)
		for leafPath, leafValue := range leaves {
			raw, err := json.Marshal(leafValue)
			if err != nil {
				return fmt.Errorf("failed to encode value at %s: %w", leafPath, err)
			}
			if leafPath == guardPath {
				// plain insert: a concurrent claimant hits the primary key
				_, err = tx.Exec(ctx,
					`INSERT INTO store_entry (path, value) VALUES ($1, $2)`, leafPath, raw)
			} else {
				_, err = tx.Exec(ctx, `
					INSERT INTO store_entry (path, value) VALUES ($1, $2)
					ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
					leafPath, raw)
			}
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return ErrPathExists
				}
				return fmt.Errorf("failed to write %s: %w", leafPath, err)
			}
		}
	}

	for _, path := range changed {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
			return fmt.Errorf("failed to notify change at %s: %w", path, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

// Watch subscribes to changes at path. The first Watch call starts the
// LISTEN loop on a dedicated connection.
func (s *PostgresStore) Watch(ctx context.Context, path string) (*Subscription, error) {
	path = normalizePath(path)

	current, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	var startErr error
	s.listenOnce.Do(func() {
		listenCtx, cancel := context.WithCancel(context.Background())
		s.listenCancel = cancel
		startErr = s.startListener(listenCtx)
	})
	if startErr != nil {
		return nil, fmt.Errorf("failed to start change listener: %w", startErr)
	}

	return s.watchers.subscribe(path, current), nil
}

func (s *PostgresStore) startListener(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return err
	}

	go func() {
		defer conn.Release()
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("Store change listener stopped", "error", err)
				}
				return
			}
			s.dispatch(ctx, notification.Payload)
		}
	}()
	return nil
}

func (s *PostgresStore) dispatch(ctx context.Context, changedPath string) {
	s.watchers.notify([]string{changedPath}, func(path string) Snapshot {
		snap, err := s.Get(ctx, path)
		if err != nil {
			slog.Error("Failed to re-read watched path", "path", path, "error", err)
			return Snapshot{Path: path}
		}
		return snap
	})
}

// Close stops the change listener and detaches all watchers. The pool is
// owned by the caller and is not closed here.
func (s *PostgresStore) Close() error {
	if s.listenCancel != nil {
		s.listenCancel()
	}
	s.watchers.close()
	return nil
}
