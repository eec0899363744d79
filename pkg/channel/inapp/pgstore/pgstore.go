// Package pgstore keeps in-app inboxes in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the inbox table, tracked in its own goose table.
func Migrate(ctx context.Context, db *sql.DB, cfg pg.Config, log *slog.Logger) error {
	cfg.MigrationsTable += "_inbox"
	return pg.Migrate(ctx, db, cfg, migrations, "migrations", log)
}

// Store is an inapp.Store on PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ inapp.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time used to hide expired entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const columns = `id, recipient_id, request_id, type, title, message, link, data, read_at, created_at, expires_at`

func (s *Store) Create(ctx context.Context, n inapp.Notification) error {
	if n.ID == "" || n.RecipientID == "" {
		return fmt.Errorf("%w: id and recipient are required", inapp.ErrInvalidEntry)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	var data []byte
	if n.Data != nil {
		var err error
		if data, err = json.Marshal(n.Data); err != nil {
			return fmt.Errorf("%w: data: %w", inapp.ErrInvalidEntry, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inapp_notifications (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.RecipientID, n.RequestID, n.Type, n.Title, n.Message, n.Link,
		data, n.ReadAt, n.CreatedAt, n.ExpiresAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return inapp.ErrDuplicate
	}
	return err
}

func (s *Store) Get(ctx context.Context, recipientID, id string) (inapp.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM inapp_notifications WHERE recipient_id = $1 AND id = $2`,
		recipientID, id,
	)
	n, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inapp.Notification{}, inapp.ErrNotFound
	}
	return n, err
}

func (s *Store) List(ctx context.Context, recipientID string, opts inapp.ListOptions) ([]inapp.Notification, error) {
	query := `SELECT ` + columns + ` FROM inapp_notifications
		WHERE recipient_id = $1 AND (expires_at IS NULL OR expires_at > $2)`
	args := []any{recipientID, s.now()}

	if opts.OnlyUnread {
		query += ` AND read_at IS NULL`
	}
	if len(opts.Types) > 0 {
		query += ` AND type IN (` + placeholders(len(args)+1, len(opts.Types)) + `)`
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []inapp.Notification{}
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM inapp_notifications
		WHERE recipient_id = $1 AND read_at IS NULL AND (expires_at IS NULL OR expires_at > $2)`,
		recipientID, s.now(),
	).Scan(&n)
	return n, err
}

func (s *Store) MarkRead(ctx context.Context, recipientID string, at time.Time, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{at, recipientID}
	for _, id := range ids {
		args = append(args, id)
	}
	return s.exec(ctx,
		`UPDATE inapp_notifications SET read_at = $1
		WHERE recipient_id = $2 AND read_at IS NULL AND id IN (`+placeholders(3, len(ids))+`)`,
		args...)
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	return s.exec(ctx,
		`UPDATE inapp_notifications SET read_at = $1 WHERE recipient_id = $2 AND read_at IS NULL`,
		at, recipientID)
}

func (s *Store) Delete(ctx context.Context, recipientID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{recipientID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.exec(ctx,
		`DELETE FROM inapp_notifications WHERE recipient_id = $1 AND id IN (`+placeholders(2, len(ids))+`)`,
		args...)
	return err
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return s.exec(ctx, `DELETE FROM inapp_notifications WHERE expires_at <= $1`, now)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (inapp.Notification, error) {
	var (
		n       inapp.Notification
		data    []byte
		readAt  sql.NullTime
		expires sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.RequestID, &n.Type, &n.Title, &n.Message, &n.Link,
		&data, &readAt, &n.CreatedAt, &expires); err != nil {
		return inapp.Notification{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return inapp.Notification{}, fmt.Errorf("pgstore: decode data of %s: %w", n.ID, err)
		}
	}
	if readAt.Valid {
		n.Read = true
		n.ReadAt = &readAt.Time
	}
	if expires.Valid {
		n.ExpiresAt = &expires.Time
	}
	return n, nil
}

// placeholders returns "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(ps, ", ")
}
