package pg

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"recordkit/internal/store/storetest"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("recordkit"),
		postgres.WithUsername("recordkit"),
		postgres.WithPassword("recordkit"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := Open(ctx, url, Pool{MaxOpen: 4}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresContract(t *testing.T) {
	db := startPostgres(t)

	// каждый подтест — в своей схеме
	n := 0
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		n++
		s := New(db, fmt.Sprintf("contract_%d", n), zerolog.Nop())
		require.NoError(t, s.Migrate(context.Background()))
		return s
	})
}
