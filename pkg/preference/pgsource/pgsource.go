// Package pgsource reads recipient preferences from PostgreSQL.
//
// The tables are owned by whatever service manages preferences; the
// dispatcher only reads them. Migrate creates them for deployments where no
// such service exists yet.
package pgsource

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/pg"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the preference tables. Versions are tracked in their own
// goose table so the tracker and preference schemas upgrade independently.
func Migrate(ctx context.Context, db *sql.DB, cfg pg.Config, log *slog.Logger) error {
	cfg.MigrationsTable += "_preferences"
	return pg.Migrate(ctx, db, cfg, migrations, "migrations", log)
}

// Source is a preference.Source over database/sql.
type Source struct {
	db *sql.DB
}

var _ preference.Source = (*Source)(nil)

func New(db *sql.DB) *Source {
	return &Source{db: db}
}

// Preferences merges the recipient's defaults with the overrides for
// notificationType.
func (s *Source) Preferences(ctx context.Context, recipientID, notificationType string) (preference.RecipientPreference, error) {
	pref := preference.RecipientPreference{
		RecipientID: recipientID,
		Channels:    make(map[channel.Name]bool),
	}

	var addresses []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT opted_out, addresses FROM recipient_profiles WHERE recipient_id = $1`,
		recipientID,
	).Scan(&pref.OptOut, &addresses)
	if errors.Is(err, sql.ErrNoRows) {
		return preference.RecipientPreference{}, fmt.Errorf("%w: %s", preference.ErrRecipientNotFound, recipientID)
	}
	if err != nil {
		return preference.RecipientPreference{}, err
	}
	if err := json.Unmarshal(addresses, &pref.Addresses); err != nil {
		return preference.RecipientPreference{}, fmt.Errorf("pgsource: decode addresses of %s: %w", recipientID, err)
	}

	// Defaults sort before the type-specific rows, so overrides win.
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, enabled FROM recipient_channel_preferences
		WHERE recipient_id = $1 AND notification_type IN ('', $2)
		ORDER BY notification_type`,
		recipientID, notificationType,
	)
	if err != nil {
		return preference.RecipientPreference{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ch      string
			enabled bool
		)
		if err := rows.Scan(&ch, &enabled); err != nil {
			return preference.RecipientPreference{}, err
		}
		pref.Channels[channel.Name(ch)] = enabled
	}
	return pref, rows.Err()
}
