package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/dispatchkit/pkg/pg"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	ser := &pgconn.PgError{Code: "40001"}

	assert.True(t, pg.IsDuplicateKeyError(dup))
	assert.False(t, pg.IsDuplicateKeyError(ser))
	assert.False(t, pg.IsDuplicateKeyError(nil))
	assert.True(t, pg.IsSerializationFailure(ser))
	assert.False(t, pg.IsSerializationFailure(errors.New("other")))
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	assert.NoError(t, pg.Healthcheck(fakePinger{})(context.Background()))

	err := pg.Healthcheck(fakePinger{err: errors.New("down")})(context.Background())
	assert.ErrorIs(t, err, pg.ErrHealthcheckFailed)
}

func TestMigrate_RequiresFS(t *testing.T) {
	t.Parallel()
	err := pg.Migrate(context.Background(), nil, pg.Config{}, nil, "migrations", nil)
	assert.ErrorIs(t, err, pg.ErrMigrationsNotProvided)
}

func TestConnect_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := pg.Connect(context.Background(), pg.Config{ConnectionString: "://bad"})
	assert.ErrorIs(t, err, pg.ErrFailedToParseDBConfig)
}
