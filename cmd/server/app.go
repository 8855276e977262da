package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"recordkit/internal/config"
	"recordkit/internal/dsl"
	"recordkit/internal/field"
	"recordkit/internal/logging"
	"recordkit/internal/object"
	"recordkit/internal/pg"
	"recordkit/internal/record"
	"recordkit/internal/reference"
	"recordkit/internal/sqlite"
	"recordkit/internal/store"
)

type backend interface {
	store.Store
	store.Sequencer
}

// app — собранный граф зависимостей для одной команды.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	store   backend
	closer  io.Closer
	objects *object.Catalog
	fields  *field.Catalog
	records *record.Engine
	applier *dsl.Applier
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	enums, err := reference.LoadCatalog(cfg.EnumsDir)
	if err != nil {
		return nil, fmt.Errorf("load option catalogs: %w", err)
	}
	log.Info().Int("catalogs", len(enums)).Str("dir", cfg.EnumsDir).Msg("option catalogs loaded")

	st, closer, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Store.Driver).Msg("store opened")

	fields := field.New(st, field.WithLogger(log), field.WithOptionCatalog(enums))
	objects := object.New(st, fields, object.WithLogger(log))
	if err := objects.EnsureIndexes(ctx); err != nil {
		closer.Close()
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		closer:  closer,
		objects: objects,
		fields:  fields,
		records: record.New(st, st, fields, record.WithLogger(log)),
		applier: dsl.NewApplier(objects, fields, log),
	}, nil
}

func (a *app) Close() error { return a.closer.Close() }

func openStore(ctx context.Context, sc config.Store, log zerolog.Logger) (backend, io.Closer, error) {
	switch sc.Driver {
	case "postgres":
		pool := pg.Pool{MaxOpen: sc.MaxOpenConns, MaxIdle: sc.MaxIdleConns, MaxLifetime: sc.ConnMaxLifetime}
		db, err := pg.Open(ctx, sc.DBURL, pool, log)
		if err != nil {
			return nil, nil, err
		}
		st := pg.New(db, sc.Schema, log)
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return st, st, nil
	case "sqlite":
		st, err := sqlite.Open(ctx, sc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return store.NewMemory(), nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
