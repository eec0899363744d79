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

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/pg"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates or upgrades the tracker tables.
func Migrate(ctx context.Context, db *sql.DB, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, db, cfg, migrations, "migrations", log)
}

// Store is a tracker.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ tracker.Store = (*Store)(nil)

// New returns a Store using db. Run Migrate first.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, idempotency_key, type, template, recipients, channels, context, priority, scheduled_for, state, created_at, updated_at`

const attemptColumns = `request_id, recipient_id, channel, sequence, throttled, state, error_class, last_error, outcome, address, priority, next_attempt_at, lease_until, provider_ref, version, created_at, updated_at`

func (s *Store) CreateRequest(ctx context.Context, req tracker.Request) (tracker.Request, bool, error) {
	recipients, err := json.Marshal(req.Recipients)
	if err != nil {
		return tracker.Request{}, false, err
	}
	channels, err := json.Marshal(nonNil(req.Channels))
	if err != nil {
		return tracker.Request{}, false, err
	}
	data, err := json.Marshal(req.Context)
	if err != nil {
		return tracker.Request{}, false, fmt.Errorf("pgstore: encode context: %w", err)
	}

	// The partial unique index on idempotency_key turns a duplicate active
	// submission into a no-op insert. The conflicting row can finish or go
	// away before it is read back, so the insert is tried once more.
	for try := 0; ; try++ {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO notification_requests (`+requestColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT DO NOTHING`,
			req.ID, req.IdempotencyKey, req.Type, req.Template, recipients, channels, data,
			req.Priority, nullTime(req.ScheduledFor), string(req.State), req.CreatedAt, req.UpdatedAt,
		)
		if err != nil {
			return tracker.Request{}, false, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return req, true, nil
		}

		row := s.db.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM notification_requests
			WHERE id = $1 OR (idempotency_key <> '' AND idempotency_key = $2 AND state IN ('pending', 'processing'))
			ORDER BY created_at DESC LIMIT 1`,
			req.ID, req.IdempotencyKey,
		)
		existing, err := scanRequest(row)
		if errors.Is(err, tracker.ErrRequestNotFound) && try == 0 {
			continue
		}
		if err != nil {
			return tracker.Request{}, false, err
		}
		return existing, false, nil
	}
}

func (s *Store) GetRequest(ctx context.Context, id string) (tracker.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM notification_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (s *Store) SetRequestState(ctx context.Context, id string, to tracker.RequestState, at time.Time, from ...tracker.RequestState) (bool, error) {
	query := `UPDATE notification_requests SET state = $1, updated_at = $2 WHERE id = $3`
	args := []any{string(to), at, id}
	if len(from) > 0 {
		query += ` AND state IN (` + placeholders(len(args)+1, len(from)) + `)`
		for _, f := range from {
			args = append(args, string(f))
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := s.GetRequest(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListRequests(ctx context.Context, states ...tracker.RequestState) ([]tracker.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM notification_requests`
	var args []any
	if len(states) > 0 {
		query += ` WHERE state IN (` + placeholders(1, len(states)) + `)`
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) InsertAttempt(ctx context.Context, a tracker.Attempt, events ...tracker.Event) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		a.Version = 1
		res, err := tx.ExecContext(ctx,
			`INSERT INTO delivery_attempts (`+attemptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT DO NOTHING`,
			attemptArgs(a)...,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return tracker.ErrAttemptExists
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) GetAttempt(ctx context.Context, key tracker.Key) (tracker.Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE request_id = $1 AND recipient_id = $2 AND channel = $3`,
		key.RequestID, key.RecipientID, string(key.Channel),
	)
	return scanAttempt(row)
}

func (s *Store) UpdateAttempt(ctx context.Context, a tracker.Attempt, events ...tracker.Event) (tracker.Attempt, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE delivery_attempts SET
				sequence = $1, throttled = $2, state = $3, error_class = $4, last_error = $5, outcome = $6,
				address = $7, priority = $8, next_attempt_at = $9, lease_until = $10, provider_ref = $11,
				updated_at = $12, version = version + 1
			WHERE request_id = $13 AND recipient_id = $14 AND channel = $15 AND version = $16`,
			a.Sequence, a.Throttled, string(a.State), string(a.ErrorClass), a.LastError, string(a.Outcome),
			a.Address, a.Priority, nullTime(a.NextAttemptAt), nullTime(a.LeaseUntil), a.ProviderRef,
			a.UpdatedAt, a.RequestID, a.RecipientID, string(a.Channel), a.Version,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return tracker.ErrVersionConflict
		}
		return insertEvents(ctx, tx, events)
	})
	if errors.Is(err, tracker.ErrVersionConflict) {
		current, gerr := s.GetAttempt(ctx, a.Key)
		if gerr != nil {
			return tracker.Attempt{}, gerr
		}
		return current, tracker.ErrVersionConflict
	}
	if err != nil {
		return tracker.Attempt{}, err
	}
	a.Version++
	return a, nil
}

func (s *Store) ListAttempts(ctx context.Context, requestID string) ([]tracker.Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE request_id = $1 ORDER BY recipient_id, channel`,
		requestID,
	)
}

func (s *Store) ListAttemptsByState(ctx context.Context, states ...tracker.State) ([]tracker.Attempt, error) {
	if len(states) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(states))
	for _, st := range states {
		args = append(args, string(st))
	}
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE state IN (`+placeholders(1, len(states))+`)
		ORDER BY request_id, recipient_id, channel`,
		args...,
	)
}

func (s *Store) PutOutcome(ctx context.Context, o tracker.Outcome, events ...tracker.Event) (bool, error) {
	stored := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO recipient_outcomes (request_id, recipient_id, channel, kind, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING`,
			o.RequestID, o.RecipientID, string(o.Channel), string(o.Kind), o.Detail, o.At,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		stored = true
		return insertEvents(ctx, tx, events)
	})
	return stored, err
}

func (s *Store) ListOutcomes(ctx context.Context, requestID string) ([]tracker.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, recipient_id, channel, kind, detail, created_at
		FROM recipient_outcomes WHERE request_id = $1 ORDER BY recipient_id, channel`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Outcome
	for rows.Next() {
		var (
			o        tracker.Outcome
			ch, kind string
		)
		if err := rows.Scan(&o.RequestID, &o.RecipientID, &ch, &kind, &o.Detail, &o.At); err != nil {
			return nil, err
		}
		o.Channel = channel.Name(ch)
		o.Kind = tracker.OutcomeKind(kind)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListEvents(ctx context.Context, requestID string) ([]tracker.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, recipient_id, channel, sequence, trigger, from_state, to_state,
			error_class, error, outcome, provider_ref, created_at
		FROM attempt_events WHERE request_id = $1 ORDER BY seq`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Event
	for rows.Next() {
		var (
			ev                                    tracker.Event
			ch, trigger, from, to, class, outcome string
		)
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.RecipientID, &ch, &ev.Sequence, &trigger,
			&from, &to, &class, &ev.Error, &outcome, &ev.ProviderRef, &ev.At); err != nil {
			return nil, err
		}
		ev.Channel = channel.Name(ch)
		ev.Trigger = tracker.Trigger(trigger)
		ev.From = tracker.State(from)
		ev.To = tracker.State(to)
		ev.ErrorClass = channel.ErrorClass(class)
		ev.Outcome = tracker.OutcomeKind(outcome)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...any) ([]tracker.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []tracker.Event) error {
	for _, ev := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attempt_events (id, request_id, recipient_id, channel, sequence, trigger, from_state, to_state,
				error_class, error, outcome, provider_ref, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			ev.ID, ev.RequestID, ev.RecipientID, string(ev.Channel), ev.Sequence, string(ev.Trigger),
			string(ev.From), string(ev.To), string(ev.ErrorClass), ev.Error, string(ev.Outcome), ev.ProviderRef, ev.At,
		)
		if err != nil {
			return fmt.Errorf("pgstore: append event: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (tracker.Request, error) {
	var (
		req                        tracker.Request
		recipients, channels, data []byte
		scheduled                  sql.NullTime
		state                      string
	)
	err := row.Scan(&req.ID, &req.IdempotencyKey, &req.Type, &req.Template, &recipients, &channels, &data,
		&req.Priority, &scheduled, &state, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Request{}, tracker.ErrRequestNotFound
	}
	if err != nil {
		return tracker.Request{}, err
	}
	if err := json.Unmarshal(recipients, &req.Recipients); err != nil {
		return tracker.Request{}, fmt.Errorf("pgstore: decode recipients: %w", err)
	}
	if err := json.Unmarshal(channels, &req.Channels); err != nil {
		return tracker.Request{}, fmt.Errorf("pgstore: decode channels: %w", err)
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &req.Context); err != nil {
			return tracker.Request{}, fmt.Errorf("pgstore: decode context: %w", err)
		}
	}
	if len(req.Channels) == 0 {
		req.Channels = nil
	}
	req.ScheduledFor = scheduled.Time
	req.State = tracker.RequestState(state)
	return req, nil
}

func scanAttempt(row scanner) (tracker.Attempt, error) {
	var (
		a                         tracker.Attempt
		ch, state, class, outcome string
		next, lease               sql.NullTime
	)
	err := row.Scan(&a.RequestID, &a.RecipientID, &ch, &a.Sequence, &a.Throttled, &state, &class, &a.LastError,
		&outcome, &a.Address, &a.Priority, &next, &lease, &a.ProviderRef, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Attempt{}, tracker.ErrAttemptNotFound
	}
	if err != nil {
		return tracker.Attempt{}, err
	}
	a.Channel = channel.Name(ch)
	a.State = tracker.State(state)
	a.ErrorClass = channel.ErrorClass(class)
	a.Outcome = tracker.OutcomeKind(outcome)
	a.NextAttemptAt = next.Time
	a.LeaseUntil = lease.Time
	return a, nil
}

func attemptArgs(a tracker.Attempt) []any {
	return []any{
		a.RequestID, a.RecipientID, string(a.Channel), a.Sequence, a.Throttled, string(a.State),
		string(a.ErrorClass), a.LastError, string(a.Outcome), a.Address, a.Priority,
		nullTime(a.NextAttemptAt), nullTime(a.LeaseUntil), a.ProviderRef, a.Version, a.CreatedAt, a.UpdatedAt,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}
