// Package pg connects to PostgreSQL through pgx and applies goose migrations.
//
// Connect returns a *pgxpool.Pool after a successful ping, retrying transient
// startup failures. OpenDB bridges the pool to database/sql for stores and
// for goose. Migrate runs migrations from any fs.FS, which lets a store ship
// its schema as an embedded directory:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	pool, err := pg.Connect(ctx, cfg)
//	db := pg.OpenDB(pool)
//	err = pg.Migrate(ctx, db, cfg, migrations, "migrations", log)
//
// Healthcheck produces a probe for the HTTP readiness endpoint.
package pg
