package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

// Context bundles the opened workspace: database, repo, engine and the
// active pipeline configuration.
type Context struct {
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Config *config.Pipeline
}

// Open opens the workspace database, applies migrations and ensures a
// pipeline configuration exists, seeding one if missing. A stageline.yml in
// the workspace wins over the built-in default on first run; afterwards the
// stored configuration is authoritative.
func Open(ctx context.Context, workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	cfg, err := r.FetchConfig(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			conn.Close()
			return nil, err
		}
		cfg, err = seedConfig(ctx, workspace, r)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &Context{
		DB:     conn,
		Repo:   r,
		Engine: engine.New(r),
		Config: cfg,
	}, nil
}

func seedConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Pipeline, error) {
	path := config.Path(workspace)
	cfg, err := config.FromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		cfg = config.Default()
	}
	if err := r.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed pipeline config: %w", err)
	}
	return cfg, nil
}

// Close releases the workspace database.
func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
